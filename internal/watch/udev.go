package watch

import (
	"context"
	"log/slog"
	"path"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"brightd/internal/backlight"
	"brightd/internal/logging"
	"brightd/internal/native"
)

// BrightnessFunc receives a backlight change made outside brightd. instance
// is the DRM connector when the kernel links one, else the device name.
type BrightnessFunc func(instance string, percent int)

// UdevOptions configure a Udev watcher.
type UdevOptions struct {
	BacklightRoot string
	Notify        func(Source)
	OnBrightness  BrightnessFunc
	Logger        *slog.Logger
}

// Udev listens on the kernel uevent socket for display hot-plug and
// backlight changes.
type Udev struct {
	opts   UdevOptions
	logger *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewUdev returns an unstarted watcher.
func NewUdev(opts UdevOptions) *Udev {
	return &Udev{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "udev"),
	}
}

// Start connects to netlink. A connection failure is logged and otherwise
// ignored; the scheduler's update pass still notices topology changes.
func (u *Udev) Start(ctx context.Context) error {
	if u == nil {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(u.logger, "netlink connect failed; relying on periodic topology checks", "udev_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "hot-plug detected on the next update pass instead of immediately"),
		)
		return nil
	}
	u.conn = conn
	u.quit = make(chan struct{})
	u.running = true

	quit := u.quit
	go u.loop(ctx, conn, quit)

	u.logger.Info("udev watcher started", logging.String(logging.FieldEventType, "udev_started"))
	return nil
}

// Stop closes the netlink socket.
func (u *Udev) Stop() {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return
	}
	close(u.quit)
	u.quit = nil
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
	u.running = false
	u.logger.Info("udev watcher stopped", logging.String(logging.FieldEventType, "udev_stopped"))
}

// Running reports whether the watcher is connected.
func (u *Udev) Running() bool {
	if u == nil {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

func (u *Udev) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			u.handle(ev)
		case err := <-errs:
			logging.WarnWithContext(u.logger, "netlink monitor error", "udev_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hot-plug events may be missed"),
			)
		}
	}
}

// matcher accepts DRM connector changes and backlight value changes.
func matcher() netlink.Matcher {
	drmActions := "change|add|remove"
	backlightActions := "change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &drmActions,
		Env:    map[string]string{"SUBSYSTEM": "drm"},
	})
	rules.AddRule(netlink.RuleDefinition{
		Action: &backlightActions,
		Env:    map[string]string{"SUBSYSTEM": backlight.Subsystem},
	})
	return rules
}

func (u *Udev) handle(ev netlink.UEvent) {
	switch ev.Env["SUBSYSTEM"] {
	case "drm":
		u.logger.Debug("drm uevent",
			logging.String("action", string(ev.Action)),
			logging.String("kobj", ev.KObj),
		)
		if u.opts.Notify != nil {
			u.opts.Notify(SourceDisplay)
		}
	case backlight.Subsystem:
		u.handleBacklight(ev)
	}
}

func (u *Udev) handleBacklight(ev netlink.UEvent) {
	devpath := ev.Env["DEVPATH"]
	if devpath == "" {
		devpath = ev.KObj
	}
	name := path.Base(devpath)
	if name == "" || name == "." || name == "/" {
		return
	}
	rec, err := backlight.Read(u.opts.BacklightRoot, name)
	if err != nil {
		u.logger.Debug("backlight read after uevent failed", logging.String("backlight", name), logging.Error(err))
		return
	}
	instance := rec.Connector
	if instance == "" {
		instance = rec.Name
	}
	percent := native.BacklightRange(rec).Percent()
	u.logger.Debug("backlight changed",
		logging.String("instance", instance),
		logging.Int("percent", percent),
	)
	if u.opts.OnBrightness != nil {
		u.opts.OnBrightness(instance, percent)
	}
}
