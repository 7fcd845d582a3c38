package monitor_test

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"brightd/internal/ddc"
	"brightd/internal/monitor"
	"brightd/internal/native"
	"brightd/internal/session"
)

type stubBus struct {
	mu     sync.Mutex
	values map[byte]uint16
	getErr error
	setErr error
	gets   int
	// afterGet runs after every successful read.
	afterGet func()
}

func newStubBus() *stubBus {
	return &stubBus{values: map[byte]uint16{ddc.VCPBrightness: 40, ddc.VCPContrast: 60}}
}

func (b *stubBus) GetVCP(_ context.Context, code byte) (ddc.VCPValue, error) {
	b.mu.Lock()
	if b.getErr != nil {
		b.mu.Unlock()
		return ddc.VCPValue{}, b.getErr
	}
	v, ok := b.values[code]
	b.gets++
	after := b.afterGet
	b.mu.Unlock()
	if !ok {
		return ddc.VCPValue{}, ddc.ErrUnsupportedVCP
	}
	if after != nil {
		after()
	}
	return ddc.VCPValue{Code: code, Max: 100, Current: v}, nil
}

func (b *stubBus) SetVCP(_ context.Context, code byte, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setErr != nil {
		return b.setErr
	}
	b.values[code] = value
	return nil
}

func (b *stubBus) CapabilitiesString(context.Context) (string, error) {
	return "(vcp(10 12))", nil
}

func (b *stubBus) Close() error { return nil }

type stubOpener struct {
	bus     *stubBus
	missing bool
}

func (o *stubOpener) DisplayAt(session.Point) (string, bool) { return "", false }

func (o *stubOpener) Open(_ context.Context, id string) ([]native.SubDevice, error) {
	if o.missing {
		return nil, session.ErrNoDisplay
	}
	return []native.SubDevice{{Instance: id, Bus: o.bus}}, nil
}

type recorder struct {
	mu           sync.Mutex
	failures     []native.Status
	changes      int
	controllable []bool
}

func (r *recorder) MonitorAccessFailed(_ string, result native.AccessResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, result.Status)
}

func (r *recorder) MonitorsChangeFound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes++
}

func (r *recorder) ControllabilityChanged(_ string, controllable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllable = append(r.controllable, controllable)
}

func newEntity(t *testing.T, opener *stubOpener, events monitor.Events) *monitor.Entity {
	t.Helper()
	desc := monitor.Descriptor{
		DeviceInstanceID: "DEL-A0F3-1",
		Description:      "DELL U2720Q",
		Reachable:        true,
		Connector:        "card0-DP-1",
		Bus:              "/dev/i2c-5",
	}
	return monitor.NewEntity(desc, monitor.Deps{
		Opener:  opener,
		Events:  events,
		Adapter: native.Options{DDC: true},
	})
}

func TestEntityBrightnessUnknownUntilRead(t *testing.T) {
	e := newEntity(t, &stubOpener{bus: newStubBus()}, nil)
	if e.Brightness() != -1 || e.Contrast() != -1 {
		t.Fatalf("expected unknown values, got %d/%d", e.Brightness(), e.Contrast())
	}
	if res := e.UpdateBrightness(context.Background()); !res.OK() {
		t.Fatalf("UpdateBrightness: %+v", res)
	}
	if e.Brightness() != 40 {
		t.Fatalf("brightness = %d, want 40", e.Brightness())
	}
	if !e.ContrastSupported() {
		t.Fatal("expected contrast support from capabilities")
	}
	if res := e.UpdateContrast(context.Background()); !res.OK() || e.Contrast() != 60 {
		t.Fatalf("UpdateContrast: %+v contrast=%d", res, e.Contrast())
	}
}

func TestEntitySetBrightnessClamps(t *testing.T) {
	bus := newStubBus()
	e := newEntity(t, &stubOpener{bus: bus}, nil)
	tests := []struct {
		request int
		want    int
	}{
		{150, 100},
		{-10, 0},
		{33, 33},
	}
	for _, tt := range tests {
		if res := e.SetBrightness(context.Background(), tt.request); !res.OK() {
			t.Fatalf("SetBrightness(%d): %+v", tt.request, res)
		}
		if e.Brightness() != tt.want {
			t.Fatalf("SetBrightness(%d) cached %d, want %d", tt.request, e.Brightness(), tt.want)
		}
		if got := bus.values[ddc.VCPBrightness]; int(got) != tt.want {
			t.Fatalf("SetBrightness(%d) wrote %d, want %d", tt.request, got, tt.want)
		}
	}
}

func TestEntityApplyBrightnessTouchesNoHardware(t *testing.T) {
	bus := newStubBus()
	e := newEntity(t, &stubOpener{bus: bus}, nil)
	e.ApplyBrightness(120)
	if e.Brightness() != 100 {
		t.Fatalf("brightness = %d, want 100", e.Brightness())
	}
	if bus.values[ddc.VCPBrightness] != 40 {
		t.Fatalf("hardware changed to %d", bus.values[ddc.VCPBrightness])
	}
}

func TestEntityFailuresRaiseEvents(t *testing.T) {
	bus := newStubBus()
	bus.getErr = unix.EIO
	events := &recorder{}
	e := newEntity(t, &stubOpener{bus: bus}, events)

	for i := 0; i < monitor.InitialCount; i++ {
		res := e.UpdateBrightness(context.Background())
		if res.OK() {
			t.Fatal("expected failure")
		}
	}
	if len(events.failures) != monitor.InitialCount {
		t.Fatalf("failures reported = %d, want %d", len(events.failures), monitor.InitialCount)
	}
	if events.changes != 0 {
		t.Fatalf("read failures should not suspect a topology change, got %d", events.changes)
	}
	if len(events.controllable) != 1 || events.controllable[0] {
		t.Fatalf("expected single loss-of-control notification, got %v", events.controllable)
	}
	if e.IsControllable() {
		t.Fatal("expected entity to be non-controllable")
	}
	if e.Status() != monitor.ReasonDDCFailing {
		t.Fatalf("status = %q", e.Status())
	}

	bus.mu.Lock()
	bus.getErr = nil
	bus.mu.Unlock()
	if res := e.UpdateBrightness(context.Background()); !res.OK() {
		t.Fatalf("recovery read: %+v", res)
	}
	if len(events.controllable) != 2 || !events.controllable[1] {
		t.Fatalf("expected recovery notification, got %v", events.controllable)
	}
	if e.Status() != "" {
		t.Fatalf("status after recovery = %q", e.Status())
	}
}

func TestEntityWriteFailureSuspectsTopologyChange(t *testing.T) {
	bus := newStubBus()
	bus.setErr = unix.EIO
	events := &recorder{}
	e := newEntity(t, &stubOpener{bus: bus}, events)

	res := e.SetBrightness(context.Background(), 90)
	if res.Status != native.TransmissionFailed {
		t.Fatalf("status = %s", res.Status)
	}
	if events.changes != 1 {
		t.Fatalf("change signals = %d, want 1", events.changes)
	}
}

func TestEntityMissingDisplayReportsNoLongerExist(t *testing.T) {
	events := &recorder{}
	e := newEntity(t, &stubOpener{missing: true}, events)

	res := e.UpdateBrightness(context.Background())
	if res.Status != native.NoLongerExist {
		t.Fatalf("status = %s", res.Status)
	}
	if events.changes != 1 {
		t.Fatalf("change signals = %d, want 1", events.changes)
	}
}

func TestEntityReplaceKeepsFlagsAndClearsCache(t *testing.T) {
	e := newEntity(t, &stubOpener{bus: newStubBus()}, nil)
	if res := e.UpdateBrightness(context.Background()); !res.OK() {
		t.Fatalf("UpdateBrightness: %+v", res)
	}
	e.UpdateFlags(func(f *monitor.Flags) {
		f.Selected = true
		f.RangeHigh = 80
	})
	e.SetTarget(true)

	next := e.Descriptor()
	next.DeviceInstanceID = "del-a0f3-1"
	next.Rect = monitor.Rect{X: 1920, Width: 2560, Height: 1440}
	e.Replace(next)

	flags := e.Flags()
	if !flags.Selected || !flags.Target || flags.RangeHigh != 80 {
		t.Fatalf("flags lost: %+v", flags)
	}
	if e.Brightness() != -1 {
		t.Fatalf("expected cache cleared, got %d", e.Brightness())
	}
	if e.Descriptor().Rect.X != 1920 {
		t.Fatalf("descriptor not replaced: %+v", e.Descriptor())
	}
	if !e.Controllability().Confirmed() {
		t.Fatal("controllability should survive replacement")
	}
}

func TestEntityStatusReasons(t *testing.T) {
	tests := []struct {
		name      string
		reachable bool
		internal  bool
		want      string
	}{
		{"reachable healthy", true, false, ""},
		{"external unreachable", false, false, monitor.ReasonDDCNotEnabled},
		{"internal unreachable", false, true, monitor.ReasonUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := monitor.NewEntity(monitor.Descriptor{
				DeviceInstanceID: "X",
				Reachable:        tt.reachable,
				Internal:         tt.internal,
			}, monitor.Deps{Opener: &stubOpener{bus: newStubBus()}})
			if got := e.Status(); got != tt.want {
				t.Fatalf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEntityClosedReportsNoLongerExist(t *testing.T) {
	e := newEntity(t, &stubOpener{bus: newStubBus()}, nil)
	e.Close()
	if res := e.SetBrightness(context.Background(), 10); res.Status != native.NoLongerExist {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestEntityCapabilityFailureKeepsContrastSupport(t *testing.T) {
	bus := newStubBus()
	e := newEntity(t, &stubOpener{bus: bus}, nil)
	if res := e.UpdateBrightness(context.Background()); !res.OK() || !e.ContrastSupported() {
		t.Fatalf("UpdateBrightness: %+v supported=%v", res, e.ContrastSupported())
	}

	// The deadline runs out between the brightness read and the capability
	// lookup, so the lookup fails while the read itself succeeded.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.mu.Lock()
	bus.afterGet = cancel
	bus.mu.Unlock()

	if res := e.UpdateBrightness(ctx); !res.OK() {
		t.Fatalf("UpdateBrightness: %+v", res)
	}
	if !e.ContrastSupported() {
		t.Fatal("failed capability lookup cleared contrast support")
	}
}

func TestEntitySetContrastChangingReadsContrast(t *testing.T) {
	bus := newStubBus()
	e := newEntity(t, &stubOpener{bus: bus}, nil)

	if res := e.SetContrastChanging(context.Background(), true); !res.OK() {
		t.Fatalf("SetContrastChanging: %+v", res)
	}
	if e.Contrast() != 60 {
		t.Fatalf("contrast = %d, want 60 read on enable", e.Contrast())
	}
	if !e.Flags().ContrastChanging {
		t.Fatal("expected contrast changing flag")
	}

	bus.mu.Lock()
	before := bus.gets
	bus.mu.Unlock()
	if res := e.SetContrastChanging(context.Background(), true); !res.OK() {
		t.Fatalf("SetContrastChanging again: %+v", res)
	}
	bus.mu.Lock()
	after := bus.gets
	bus.mu.Unlock()
	if after != before {
		t.Fatalf("re-enabling read the hardware again (%d -> %d gets)", before, after)
	}

	if res := e.SetContrastChanging(context.Background(), false); !res.OK() {
		t.Fatalf("SetContrastChanging off: %+v", res)
	}
	if e.Flags().ContrastChanging {
		t.Fatal("expected flag cleared")
	}
}

func TestEntityContrastChangingHiddenWithoutSupport(t *testing.T) {
	bus := newStubBus()
	delete(bus.values, ddc.VCPContrast)
	e := newEntity(t, &stubOpener{bus: bus}, nil)

	if res := e.SetContrastChanging(context.Background(), true); res.OK() {
		t.Fatalf("expected contrast read to fail, got %+v", res)
	}
	if e.Flags().ContrastChanging {
		t.Fatal("contrast changing reported for a display without contrast")
	}
}

func TestEntitySetBrightnessHonoursRange(t *testing.T) {
	bus := newStubBus()
	e := newEntity(t, &stubOpener{bus: bus}, nil)
	e.SetRange(80, 20)

	flags := e.Flags()
	if flags.RangeLow != 20 || flags.RangeHigh != 80 {
		t.Fatalf("range = %d..%d, want 20..80", flags.RangeLow, flags.RangeHigh)
	}
	tests := []struct {
		request int
		want    int
	}{
		{10, 20},
		{50, 50},
		{95, 80},
	}
	for _, tt := range tests {
		if res := e.SetBrightness(context.Background(), tt.request); !res.OK() {
			t.Fatalf("SetBrightness(%d): %+v", tt.request, res)
		}
		if got := bus.values[ddc.VCPBrightness]; int(got) != tt.want {
			t.Fatalf("SetBrightness(%d) wrote %d, want %d", tt.request, got, tt.want)
		}
	}

	next := e.Descriptor()
	next.Rect = monitor.Rect{X: 1920}
	e.Replace(next)
	if flags := e.Flags(); flags.RangeLow != 20 || flags.RangeHigh != 80 {
		t.Fatalf("range lost on replace: %+v", flags)
	}
}
