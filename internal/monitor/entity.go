package monitor

import (
	"context"
	"log/slog"
	"sync"

	"brightd/internal/logging"
	"brightd/internal/native"
	"brightd/internal/session"
)

// Events receives entity notifications. Implementations must not block.
type Events interface {
	MonitorAccessFailed(id string, result native.AccessResult)
	MonitorsChangeFound()
	ControllabilityChanged(id string, controllable bool)
}

// Status reason codes for entities that are not controllable.
const (
	ReasonDDCFailing    = "ddc-failing"
	ReasonDDCNotEnabled = "ddc-not-enabled"
	ReasonUnreachable   = "unreachable"
)

// Deps are the collaborators an Entity needs.
type Deps struct {
	Opener  session.Opener
	Events  Events
	Adapter native.Options
	Logger  *slog.Logger
}

// Flags are UI-only state that survives descriptor replacement.
type Flags struct {
	// Selected marks the monitor that commands without an explicit id act on.
	Selected bool
	Target   bool
	// ContrastChanging keeps contrast refreshed on every update pass.
	ContrastChanging bool
	// RangeLow and RangeHigh bound the brightness percentages writers may set.
	RangeLow  int
	RangeHigh int
}

// Entity is the stable logical record for one display.
type Entity struct {
	opener  session.Opener
	events  Events
	adapter *native.Adapter
	logger  *slog.Logger

	// io serializes the probe/get/set triad against this display.
	io sync.Mutex

	mu                sync.RWMutex
	desc              Descriptor
	brightness        native.Range
	hasBrightness     bool
	contrast          native.Range
	hasContrast       bool
	contrastSupported bool
	ctrl              Controllability
	flags             Flags
	closed            bool
}

// NewEntity creates an entity for a freshly discovered descriptor.
func NewEntity(desc Descriptor, deps Deps) *Entity {
	opts := deps.Adapter
	if opts.Logger == nil {
		opts.Logger = deps.Logger
	}
	return &Entity{
		opener:  deps.Opener,
		events:  deps.Events,
		adapter: native.NewAdapter(opts),
		logger:  logging.NewComponentLogger(deps.Logger, "monitor").With(logging.DeviceID(desc.DeviceInstanceID)),
		desc:    desc,
		ctrl:    NewControllability(),
		flags:   Flags{RangeLow: 0, RangeHigh: 100},
	}
}

// ID returns the stable device instance id.
func (e *Entity) ID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.desc.DeviceInstanceID
}

// Descriptor returns the current descriptor.
func (e *Entity) Descriptor() Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.desc
}

// Brightness returns the cached brightness percentage, or -1 when unknown.
func (e *Entity) Brightness() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasBrightness {
		return -1
	}
	return e.brightness.Percent()
}

// Contrast returns the cached contrast percentage, or -1 when unknown.
func (e *Entity) Contrast() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.hasContrast {
		return -1
	}
	return e.contrast.Percent()
}

// ContrastSupported reports whether any sub-device exposes contrast.
func (e *Entity) ContrastSupported() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.contrastSupported
}

// Reachable mirrors the current descriptor.
func (e *Entity) Reachable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.desc.Reachable
}

// IsControllable reports whether the entity is treated as controllable.
func (e *Entity) IsControllable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ctrl.IsControllable(e.desc.Reachable)
}

// Status returns a reason code when the entity is not healthy, else "".
func (e *Entity) Status() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ctrl.Healthy(e.desc.Reachable) {
		return ""
	}
	switch {
	case e.desc.Reachable:
		return ReasonDDCFailing
	case !e.desc.Internal:
		return ReasonDDCNotEnabled
	default:
		return ReasonUnreachable
	}
}

// Controllability returns a copy of the hysteresis state.
func (e *Entity) Controllability() Controllability {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ctrl
}

// Flags returns the UI-only flags.
func (e *Entity) Flags() Flags {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f := e.flags
	f.ContrastChanging = f.ContrastChanging && e.contrastSupported
	return f
}

// UpdateFlags applies fn to the UI-only flags under the entity lock.
func (e *Entity) UpdateFlags(fn func(*Flags)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.flags)
}

// SetTarget is shorthand for the flag the scheduler flips most.
func (e *Entity) SetTarget(target bool) {
	e.UpdateFlags(func(f *Flags) { f.Target = target })
}

// IsTarget reports the target flag.
func (e *Entity) IsTarget() bool {
	return e.Flags().Target
}

// IsSelected reports the selection flag.
func (e *Entity) IsSelected() bool {
	return e.Flags().Selected
}

// SetContrastChanging toggles contrast tracking. Switching it on reads the
// contrast right away so the cache is current before the first write.
func (e *Entity) SetContrastChanging(ctx context.Context, on bool) native.AccessResult {
	e.mu.Lock()
	was := e.flags.ContrastChanging
	e.flags.ContrastChanging = on
	e.mu.Unlock()
	if !on || was {
		return native.Success
	}
	return e.UpdateContrast(ctx)
}

// SetRange restricts brightness writes to [low, high] percent.
func (e *Entity) SetRange(low, high int) {
	low, high = clampPercent(low), clampPercent(high)
	if low > high {
		low, high = high, low
	}
	e.UpdateFlags(func(f *Flags) { f.RangeLow, f.RangeHigh = low, high })
}

// UpdateBrightness reads brightness from the hardware into the cache.
func (e *Entity) UpdateBrightness(ctx context.Context) native.AccessResult {
	return e.access(ctx, false, func(devs []native.SubDevice) native.AccessResult {
		r, err := e.adapter.GetBrightness(ctx, devs)
		if err != nil {
			return native.ResultOf(err)
		}
		caps, capsErr := e.adapter.GetCapabilities(ctx, devs)
		e.mu.Lock()
		e.brightness, e.hasBrightness = r, true
		if capsErr == nil {
			e.contrastSupported = caps.Contrast
		} else {
			// A partial union can only add support.
			e.contrastSupported = e.contrastSupported || caps.Contrast
		}
		e.mu.Unlock()
		if capsErr != nil {
			e.logger.Debug("capability lookup failed; keeping contrast support", logging.Error(capsErr))
		}
		return native.Success
	})
}

// SetBrightness writes a brightness percentage, clamped to the entity's
// range (0..100 unless narrowed by SetRange).
func (e *Entity) SetBrightness(ctx context.Context, percent int) native.AccessResult {
	percent = e.withinRange(percent)
	return e.access(ctx, true, func(devs []native.SubDevice) native.AccessResult {
		r, err := e.adapter.SetBrightnessPercent(ctx, devs, percent)
		if err != nil {
			return native.ResultOf(err)
		}
		e.mu.Lock()
		e.brightness, e.hasBrightness = r, true
		e.mu.Unlock()
		return native.Success
	})
}

// ApplyBrightness caches a brightness percentage observed elsewhere, such as
// a hot-key change reported by the kernel. No hardware is touched.
func (e *Entity) ApplyBrightness(percent int) {
	percent = clampPercent(percent)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasBrightness {
		e.brightness = native.Range{Min: 0, Max: 100}
		e.hasBrightness = true
	}
	e.brightness.Current = e.brightness.FromPercent(percent)
}

// UpdateContrast reads contrast from the hardware into the cache.
func (e *Entity) UpdateContrast(ctx context.Context) native.AccessResult {
	return e.access(ctx, false, func(devs []native.SubDevice) native.AccessResult {
		r, err := e.adapter.GetContrast(ctx, devs)
		if err != nil {
			return native.ResultOf(err)
		}
		e.mu.Lock()
		e.contrast, e.hasContrast = r, true
		e.contrastSupported = true
		e.mu.Unlock()
		return native.Success
	})
}

// SetContrast writes a contrast percentage, clamped to 0..100.
func (e *Entity) SetContrast(ctx context.Context, percent int) native.AccessResult {
	percent = clampPercent(percent)
	return e.access(ctx, true, func(devs []native.SubDevice) native.AccessResult {
		r, err := e.adapter.SetContrastPercent(ctx, devs, percent)
		if err != nil {
			return native.ResultOf(err)
		}
		e.mu.Lock()
		e.contrast, e.hasContrast = r, true
		e.mu.Unlock()
		return native.Success
	})
}

// Replace swaps in a newer descriptor for the same id. Cached ranges and
// adapter state are dropped; flags and controllability are kept.
func (e *Entity) Replace(desc Descriptor) {
	e.io.Lock()
	defer e.io.Unlock()
	e.adapter.Reset()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.desc = desc
	e.brightness, e.hasBrightness = native.Range{}, false
	e.contrast, e.hasContrast = native.Range{}, false
	e.contrastSupported = false
}

// Close releases adapter state. Later accesses report NoLongerExist.
func (e *Entity) Close() {
	e.io.Lock()
	defer e.io.Unlock()
	e.adapter.Reset()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Closed reports whether Close has run.
func (e *Entity) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Entity) access(ctx context.Context, write bool, fn func([]native.SubDevice) native.AccessResult) native.AccessResult {
	e.io.Lock()
	e.mu.RLock()
	id, closed := e.desc.DeviceInstanceID, e.closed
	e.mu.RUnlock()
	if closed {
		e.io.Unlock()
		return native.AccessResult{Status: native.NoLongerExist, Message: "entity closed"}
	}
	result := session.With(ctx, e.opener, id, e.logger, func(h *session.Handle) native.AccessResult {
		return fn(h.Devices())
	})
	e.io.Unlock()

	e.settle(id, result, write)
	return result
}

// settle feeds a result into controllability and raises events outside any lock.
func (e *Entity) settle(id string, result native.AccessResult, write bool) {
	e.mu.Lock()
	var notify bool
	if result.OK() {
		notify = e.ctrl.OnSuccess()
	} else {
		notify = e.ctrl.OnFailure()
	}
	controllable := e.ctrl.IsControllable(e.desc.Reachable)
	e.mu.Unlock()

	if !result.OK() {
		e.logger.Debug("monitor access failed",
			logging.String(logging.FieldStatus, result.Status.String()),
			logging.String("reason", result.Message),
		)
		if e.events != nil {
			e.events.MonitorAccessFailed(id, result)
			if changeSuspected(result.Status, write) {
				e.events.MonitorsChangeFound()
			}
		}
	}
	if notify && e.events != nil {
		e.events.ControllabilityChanged(id, controllable)
	}
}

// changeSuspected decides whether a failure hints that the topology changed.
func changeSuspected(status native.Status, write bool) bool {
	switch status {
	case native.NoLongerExist:
		return true
	case native.DdcFailed, native.TransmissionFailed:
		return write
	default:
		return false
	}
}

func (e *Entity) withinRange(percent int) int {
	e.mu.RLock()
	low, high := e.flags.RangeLow, e.flags.RangeHigh
	e.mu.RUnlock()
	if high <= low {
		return clampPercent(percent)
	}
	return min(max(percent, low), high)
}

func clampPercent(v int) int {
	return min(max(v, 0), 100)
}
