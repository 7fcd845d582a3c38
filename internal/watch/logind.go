package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"

	"brightd/internal/logging"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = "/org/freedesktop/login1"
	managerIface    = "org.freedesktop.login1.Manager"
	sessionIface    = "org.freedesktop.login1.Session"
	getSessionByPID = managerIface + ".GetSessionByPID"
)

// Logind follows resume-from-sleep and session lock state on the system bus.
type Logind struct {
	notify func(Source)
	logger *slog.Logger

	locked  atomic.Bool
	session dbus.ObjectPath

	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	done    chan struct{}
}

// NewLogind returns an unstarted watcher. notify receives SourcePower on
// resume and SourceSession on unlock.
func NewLogind(notify func(Source), logger *slog.Logger) *Logind {
	return &Logind{
		notify: notify,
		logger: logging.NewComponentLogger(logger, "logind"),
	}
}

// Locked reports whether the session was last seen locked.
func (l *Logind) Locked() bool {
	return l != nil && l.locked.Load()
}

// Start subscribes to logind signals. Failure to reach the bus is logged
// and otherwise ignored.
func (l *Logind) Start(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}

	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		logging.WarnWithContext(l.logger, "system bus unavailable; sleep and lock events ignored", "logind_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run inside a systemd-logind session"),
			logging.String(logging.FieldImpact, "no rescan after resume or unlock"),
		)
		return nil
	}
	if err := subscribe(conn); err != nil {
		_ = conn.Close()
		logging.WarnWithContext(l.logger, "logind signal subscription failed", "logind_subscribe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no rescan after resume or unlock"),
		)
		return nil
	}

	var session dbus.ObjectPath
	obj := conn.Object(logindDest, logindPath)
	if err := obj.CallWithContext(ctx, getSessionByPID, 0, uint32(os.Getpid())).Store(&session); err != nil {
		l.logger.Debug("no logind session for this process; accepting lock signals from any session", logging.Error(err))
	}
	l.session = session

	l.conn = conn
	l.signals = make(chan *dbus.Signal, 16)
	l.done = make(chan struct{})
	conn.Signal(l.signals)
	go l.loop(ctx, l.signals, l.done)

	l.logger.Info("logind watcher started", logging.String(logging.FieldEventType, "logind_started"))
	return nil
}

func subscribe(conn *dbus.Conn) error {
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(managerIface),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		return fmt.Errorf("match PrepareForSleep: %w", err)
	}
	for _, member := range []string{"Lock", "Unlock"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(sessionIface),
			dbus.WithMatchMember(member),
		); err != nil {
			return fmt.Errorf("match %s: %w", member, err)
		}
	}
	return nil
}

// Stop unsubscribes and closes the bus connection.
func (l *Logind) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return
	}
	l.conn.RemoveSignal(l.signals)
	close(l.done)
	_ = l.conn.Close()
	l.conn = nil
}

func (l *Logind) loop(ctx context.Context, signals <-chan *dbus.Signal, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			l.handle(sig)
		}
	}
}

func (l *Logind) handle(sig *dbus.Signal) {
	if sig == nil {
		return
	}
	switch sig.Name {
	case managerIface + ".PrepareForSleep":
		if len(sig.Body) == 0 {
			return
		}
		sleeping, ok := sig.Body[0].(bool)
		if !ok || sleeping {
			return
		}
		l.logger.Info("resumed from sleep", logging.String(logging.FieldEventType, "logind_resume"))
		l.emit(SourcePower)
	case sessionIface + ".Lock":
		if !l.ours(sig.Path) {
			return
		}
		l.locked.Store(true)
		l.logger.Debug("session locked")
	case sessionIface + ".Unlock":
		if !l.ours(sig.Path) {
			return
		}
		l.locked.Store(false)
		l.logger.Debug("session unlocked")
		l.emit(SourceSession)
	}
}

func (l *Logind) ours(p dbus.ObjectPath) bool {
	return l.session == "" || p == l.session
}

func (l *Logind) emit(src Source) {
	if l.notify != nil {
		l.notify(src)
	}
}
