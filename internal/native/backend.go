package native

import (
	"context"
	"fmt"

	"brightd/internal/backlight"
	"brightd/internal/ddc"
)

// Kind tags the control path a backend speaks.
type Kind string

const (
	KindDDC       Kind = "ddc"
	KindBacklight Kind = "backlight"
)

// Backend controls one sub-device over one protocol. Values are raw.
type Backend interface {
	Kind() Kind
	GetBrightness(ctx context.Context) (Range, error)
	SetBrightness(ctx context.Context, value uint32) error
	GetContrast(ctx context.Context) (Range, error)
	SetContrast(ctx context.Context, value uint32) error
	SupportsContrast() bool
}

// VCPBus is the DDC/CI surface the direct backend needs. *ddc.Bus implements it.
type VCPBus interface {
	GetVCP(ctx context.Context, code byte) (ddc.VCPValue, error)
	SetVCP(ctx context.Context, code byte, value uint16) error
	CapabilitiesString(ctx context.Context) (string, error)
	Close() error
}

// SubDevice is one physical control target behind a logical display.
type SubDevice struct {
	// Instance names the sub-device for backlight matching (a DRM connector).
	Instance string
	Internal bool
	// Bus is nil when the connector has no DDC channel.
	Bus VCPBus
}

// Close releases the sub-device's OS handle.
func (s SubDevice) Close() error {
	if s.Bus == nil {
		return nil
	}
	return s.Bus.Close()
}

type ddcBackend struct {
	bus      VCPBus
	contrast bool
}

func (b *ddcBackend) Kind() Kind             { return KindDDC }
func (b *ddcBackend) SupportsContrast() bool { return b.contrast }

func (b *ddcBackend) read(ctx context.Context, code byte) (Range, error) {
	v, err := b.bus.GetVCP(ctx, code)
	if err != nil {
		return Range{}, err
	}
	maxValue := uint32(v.Max)
	return Range{Min: 0, Max: maxValue, Current: min(uint32(v.Current), maxValue)}, nil
}

func (b *ddcBackend) write(ctx context.Context, code byte, value uint32) error {
	if value > 0xFFFF {
		return fmt.Errorf("%w: value %d exceeds vcp width", ddc.ErrInvalidReply, value)
	}
	return b.bus.SetVCP(ctx, code, uint16(value))
}

func (b *ddcBackend) GetBrightness(ctx context.Context) (Range, error) {
	return b.read(ctx, ddc.VCPBrightness)
}

func (b *ddcBackend) SetBrightness(ctx context.Context, value uint32) error {
	return b.write(ctx, ddc.VCPBrightness, value)
}

func (b *ddcBackend) GetContrast(ctx context.Context) (Range, error) {
	if !b.contrast {
		return Range{}, errNotSupported
	}
	return b.read(ctx, ddc.VCPContrast)
}

func (b *ddcBackend) SetContrast(ctx context.Context, value uint32) error {
	if !b.contrast {
		return errNotSupported
	}
	return b.write(ctx, ddc.VCPContrast, value)
}

// backlightMin keeps panels from switching fully off.
const backlightMin = 1

type backlightBackend struct {
	root   string
	name   string
	setter backlight.Setter
}

func (b *backlightBackend) Kind() Kind             { return KindBacklight }
func (b *backlightBackend) SupportsContrast() bool { return false }

func (b *backlightBackend) GetBrightness(_ context.Context) (Range, error) {
	rec, err := backlight.Read(b.root, b.name)
	if err != nil {
		return Range{}, err
	}
	return BacklightRange(rec), nil
}

// BacklightRange is the range a backlight record exposes to callers.
func BacklightRange(rec backlight.Record) Range {
	lo := uint32(min(backlightMin, rec.Max))
	return Range{Min: lo, Max: rec.Max, Current: max(rec.Current, lo)}
}

func (b *backlightBackend) SetBrightness(ctx context.Context, value uint32) error {
	return b.setter.Set(ctx, b.name, value)
}

func (b *backlightBackend) GetContrast(context.Context) (Range, error) {
	return Range{}, errNotSupported
}

func (b *backlightBackend) SetContrast(context.Context, uint32) error {
	return errNotSupported
}
