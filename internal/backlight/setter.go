package backlight

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/godbus/dbus/v5"

	"brightd/internal/logging"
)

const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = dbus.ObjectPath("/org/freedesktop/login1/session/auto")
	logindMethod = "org.freedesktop.login1.Session.SetBrightness"
)

// Setter writes a raw brightness value to a backlight device.
type Setter interface {
	Set(ctx context.Context, name string, value uint32) error
}

// SysfsSetter writes the brightness attribute directly. Requires write access.
type SysfsSetter struct {
	Root string
}

func (s SysfsSetter) Set(_ context.Context, name string, value uint32) error {
	path := filepath.Join(s.Root, name, "brightness")
	if err := os.WriteFile(path, []byte(strconv.FormatUint(uint64(value), 10)), 0); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LogindSetter calls SetBrightness on the caller's logind session.
type LogindSetter struct {
	obj  dbus.BusObject
	conn *dbus.Conn
}

// NewLogindSetter connects to the system bus.
func NewLogindSetter() (*LogindSetter, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &LogindSetter{conn: conn, obj: conn.Object(logindDest, logindPath)}, nil
}

// NewLogindSetterWithObject uses an existing bus object for the session.
func NewLogindSetterWithObject(obj dbus.BusObject) *LogindSetter {
	return &LogindSetter{obj: obj}
}

func (s *LogindSetter) Set(ctx context.Context, name string, value uint32) error {
	call := s.obj.CallWithContext(ctx, logindMethod, 0, Subsystem, name, value)
	if call.Err != nil {
		return fmt.Errorf("logind SetBrightness %s: %w", name, call.Err)
	}
	return nil
}

// Close releases the bus connection if this setter owns one.
func (s *LogindSetter) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// FallbackSetter tries Primary and falls back to Secondary on error.
type FallbackSetter struct {
	Primary   Setter
	Secondary Setter
	Logger    *slog.Logger
}

func (s FallbackSetter) Set(ctx context.Context, name string, value uint32) error {
	if s.Primary == nil {
		return s.Secondary.Set(ctx, name, value)
	}
	err := s.Primary.Set(ctx, name, value)
	if err == nil || s.Secondary == nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Debug("primary backlight write failed, falling back",
			logging.String("backlight", name),
			logging.Error(err),
		)
	}
	return s.Secondary.Set(ctx, name, value)
}
