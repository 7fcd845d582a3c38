// Package session scopes access to the sub-devices behind one logical display.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"brightd/internal/logging"
	"brightd/internal/native"
)

// Point is a location in the virtual desktop.
type Point struct {
	X, Y int
}

// Opener resolves logical displays and opens their sub-devices.
type Opener interface {
	// DisplayAt returns the id of the display at, or nearest to, p.
	DisplayAt(p Point) (string, bool)
	// Open returns the sub-devices of a display. An unknown id yields no sub-devices.
	Open(ctx context.Context, id string) ([]native.SubDevice, error)
}

// Handle owns the open sub-devices of one display until Release.
type Handle struct {
	id      string
	devices []native.SubDevice
	once    sync.Once
	err     error
}

// ID returns the display id the handle was acquired for.
func (h *Handle) ID() string { return h.id }

// Devices returns the open sub-devices.
func (h *Handle) Devices() []native.SubDevice { return h.devices }

// Release closes every sub-device. Later calls return the first result.
func (h *Handle) Release() error {
	h.once.Do(func() {
		for _, dev := range h.devices {
			h.err = multierr.Append(h.err, dev.Close())
		}
	})
	return h.err
}

// ErrNoDisplay is returned by Opener.Open for an id it does not know.
var ErrNoDisplay = errors.New("session: display not found")

// With acquires id, runs fn, and releases the handle on every exit path.
// When nothing can be acquired fn does not run and the result says why:
// NoLongerExist for a missing display, CapabilitiesUnavailable for a display
// without sub-devices.
func With(ctx context.Context, opener Opener, id string, logger *slog.Logger, fn func(*Handle) native.AccessResult) native.AccessResult {
	h, result := acquire(ctx, opener, id, logger)
	if !result.OK() {
		return result
	}
	defer release(h, logger)
	return fn(h)
}

// Resolve returns the id of the display under p. A point outside every
// display is reported as NoLongerExist so callers rescan.
func Resolve(opener Opener, p Point, logger *slog.Logger) (string, native.AccessResult) {
	id, ok := opener.DisplayAt(p)
	if !ok {
		logging.WarnWithContext(logger, "no display at point", "session_no_display",
			logging.Int("x", p.X),
			logging.Int("y", p.Y),
			logging.String(logging.FieldImpact, "request skipped"),
			logging.String(logging.FieldErrorHint, "rescan displays"),
		)
		return "", native.AccessResult{Status: native.NoLongerExist, Message: "no display at point"}
	}
	return id, native.Success
}

func acquire(ctx context.Context, opener Opener, id string, logger *slog.Logger) (*Handle, native.AccessResult) {
	devices, err := opener.Open(ctx, id)
	if err != nil {
		result := native.ResultOf(err)
		if errors.Is(err, ErrNoDisplay) {
			result.Status = native.NoLongerExist
		}
		logging.WarnWithContext(logger, "display open failed", "session_open_failed",
			logging.DeviceID(id),
			logging.Error(err),
			logging.String(logging.FieldStatus, result.Status.String()),
			logging.String(logging.FieldImpact, "display not controlled this pass"),
			logging.String(logging.FieldErrorHint, "check i2c-dev permissions and that the display is connected"),
		)
		return nil, result
	}
	if len(devices) == 0 {
		logging.WarnWithContext(logger, "display has no controllable sub-devices", "session_empty",
			logging.DeviceID(id),
			logging.String(logging.FieldImpact, "display not controlled this pass"),
			logging.String(logging.FieldErrorHint, "enable DDC/CI in the monitor menu or load i2c-dev"),
		)
		return nil, native.AccessResult{Status: native.CapabilitiesUnavailable, Message: "no sub-devices"}
	}
	return &Handle{id: id, devices: devices}, native.Success
}

func release(h *Handle, logger *slog.Logger) {
	if err := h.Release(); err != nil && logger != nil {
		logger.Debug("sub-device release failed", logging.DeviceID(h.id), logging.Error(err))
	}
}
