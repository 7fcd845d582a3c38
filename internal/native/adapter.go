package native

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"brightd/internal/backlight"
	"brightd/internal/ddc"
	"brightd/internal/logging"
)

// Options selects the control paths an Adapter may use.
type Options struct {
	DDC           bool
	Backlight     bool
	BacklightRoot string
	Setter        backlight.Setter
	Logger        *slog.Logger
}

// Adapter drives brightness and contrast across the sub-devices of one
// display. The backend for each sub-device is probed once and cached until
// Reset.
type Adapter struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	backends map[string]Backend
}

// NewAdapter constructs an Adapter with no cached backends.
func NewAdapter(opts Options) *Adapter {
	if opts.Setter == nil {
		opts.Setter = backlight.SysfsSetter{Root: opts.BacklightRoot}
	}
	return &Adapter{
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "native"),
		backends: map[string]Backend{},
	}
}

// Reset drops every cached backend so the next access probes again.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.backends)
}

// Kinds reports the cached backend kind per sub-device instance.
func (a *Adapter) Kinds() map[string]Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]Kind, len(a.backends))
	for name, b := range a.backends {
		out[name] = b.Kind()
	}
	return out
}

// batch shares one backlight management query across every sub-device of a call.
type batch struct {
	root    string
	queried bool
	records []backlight.Record
	err     error
}

func (q *batch) lookup() ([]backlight.Record, error) {
	if !q.queried {
		q.records, q.err = backlight.Query(q.root)
		q.queried = true
	}
	return q.records, q.err
}

func (a *Adapter) backendFor(ctx context.Context, dev SubDevice, q *batch) (Backend, error) {
	a.mu.Lock()
	cached, ok := a.backends[dev.Instance]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	backend, err := a.probe(ctx, dev, q)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.backends[dev.Instance] = backend
	a.mu.Unlock()
	a.logger.Debug("control path selected",
		logging.String("instance", dev.Instance),
		logging.String("kind", string(backend.Kind())),
		logging.Bool("contrast", backend.SupportsContrast()),
	)
	return backend, nil
}

func (a *Adapter) probe(ctx context.Context, dev SubDevice, q *batch) (Backend, error) {
	if a.opts.DDC && dev.Bus != nil {
		backend, err := probeDDC(ctx, dev.Bus)
		if err != nil && (ddc.IsVanished(err) || ctx.Err() != nil) {
			return nil, err
		}
		if backend != nil {
			return backend, nil
		}
	}
	if a.opts.Backlight {
		records, err := q.lookup()
		if err != nil {
			return nil, fmt.Errorf("backlight query: %w", err)
		}
		if rec, ok := backlight.Match(records, dev.Instance, dev.Internal); ok {
			return &backlightBackend{root: a.opts.BacklightRoot, name: rec.Name, setter: a.opts.Setter}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errUnavailable, dev.Instance)
}

// probeDDC returns a backend when the display advertises or answers VCP 0x10.
// A nil backend with nil error means the display has no DDC brightness.
func probeDDC(ctx context.Context, bus VCPBus) (Backend, error) {
	raw, err := bus.CapabilitiesString(ctx)
	if err == nil {
		if caps, perr := ddc.ParseCapabilities(raw); perr == nil {
			if !caps.Has(ddc.VCPBrightness) {
				return nil, nil
			}
			return &ddcBackend{bus: bus, contrast: caps.Has(ddc.VCPContrast)}, nil
		}
	} else if ddc.IsVanished(err) || ctx.Err() != nil {
		return nil, err
	}
	// Many displays answer VCP reads but return garbage capabilities.
	if _, err := bus.GetVCP(ctx, ddc.VCPBrightness); err != nil {
		return nil, err
	}
	_, cerr := bus.GetVCP(ctx, ddc.VCPContrast)
	return &ddcBackend{bus: bus, contrast: cerr == nil}, nil
}

// each runs fn for every sub-device, never stopping early, and aggregates failures.
func (a *Adapter) each(ctx context.Context, devices []SubDevice, fn func(Backend) error) error {
	if len(devices) == 0 {
		return &AccessError{Status: CapabilitiesUnavailable, Err: errNoDevices}
	}
	q := &batch{root: a.opts.BacklightRoot}
	var errs []error
	for _, dev := range devices {
		if err := a.guard(ctx, dev, q, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dev.Instance, err))
		}
	}
	return aggregate(errs)
}

func (a *Adapter) guard(ctx context.Context, dev SubDevice, q *batch, fn func(Backend) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	backend, err := a.backendFor(ctx, dev, q)
	if err != nil {
		return err
	}
	return fn(backend)
}

func (a *Adapter) read(ctx context.Context, devices []SubDevice, get func(Backend, context.Context) (Range, error)) (Range, error) {
	var first Range
	found := false
	err := a.each(ctx, devices, func(b Backend) error {
		r, err := get(b, ctx)
		if err != nil {
			return err
		}
		if !found {
			first, found = r, true
		}
		return nil
	})
	return first, err
}

// write re-reads each sub-device, resolves the raw target against its range,
// and skips sub-devices already at the target.
func (a *Adapter) write(ctx context.Context, devices []SubDevice, target func(Range) uint32,
	get func(Backend, context.Context) (Range, error),
	set func(Backend, context.Context, uint32) error,
) (Range, error) {
	var first Range
	found := false
	err := a.each(ctx, devices, func(b Backend) error {
		r, err := get(b, ctx)
		if err != nil {
			return err
		}
		want := target(r)
		if want != r.Current {
			if err := set(b, ctx, want); err != nil {
				return err
			}
			r.Current = want
		}
		if !found {
			first, found = r, true
		}
		return nil
	})
	return first, err
}

func clampTo(value int64) func(Range) uint32 {
	return func(r Range) uint32 { return r.Clamp(value) }
}

func percentOf(percent int) func(Range) uint32 {
	return func(r Range) uint32 { return r.FromPercent(percent) }
}

// GetBrightness reads brightness from every sub-device and returns the first range.
func (a *Adapter) GetBrightness(ctx context.Context, devices []SubDevice) (Range, error) {
	return a.read(ctx, devices, Backend.GetBrightness)
}

// SetBrightness writes a raw brightness, clamped into each sub-device's
// [Min, Max], to every sub-device.
func (a *Adapter) SetBrightness(ctx context.Context, devices []SubDevice, value int64) (Range, error) {
	return a.write(ctx, devices, clampTo(value), Backend.GetBrightness, Backend.SetBrightness)
}

// SetBrightnessPercent maps a 0..100 brightness onto each sub-device's range.
// Sub-devices with different ranges end up at the same relative level.
func (a *Adapter) SetBrightnessPercent(ctx context.Context, devices []SubDevice, percent int) (Range, error) {
	return a.write(ctx, devices, percentOf(percent), Backend.GetBrightness, Backend.SetBrightness)
}

// GetContrast reads contrast from every sub-device and returns the first range.
func (a *Adapter) GetContrast(ctx context.Context, devices []SubDevice) (Range, error) {
	return a.read(ctx, devices, Backend.GetContrast)
}

// SetContrast writes a raw contrast, clamped into each sub-device's range.
func (a *Adapter) SetContrast(ctx context.Context, devices []SubDevice, value int64) (Range, error) {
	return a.write(ctx, devices, clampTo(value), Backend.GetContrast, Backend.SetContrast)
}

// SetContrastPercent maps a 0..100 contrast onto each sub-device's range.
func (a *Adapter) SetContrastPercent(ctx context.Context, devices []SubDevice, percent int) (Range, error) {
	return a.write(ctx, devices, percentOf(percent), Backend.GetContrast, Backend.SetContrast)
}

// GetCapabilities probes every sub-device and reports the union of features.
func (a *Adapter) GetCapabilities(ctx context.Context, devices []SubDevice) (Capabilities, error) {
	var caps Capabilities
	err := a.each(ctx, devices, func(b Backend) error {
		caps.Brightness = true
		caps.Contrast = caps.Contrast || b.SupportsContrast()
		return nil
	})
	return caps, err
}
