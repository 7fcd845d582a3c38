package native

import "math"

// Range is a raw hardware value range. Min <= Current <= Max after a successful read.
type Range struct {
	Min     uint32
	Max     uint32
	Current uint32
}

// Clamp bounds a raw value into [Min, Max].
func (r Range) Clamp(v int64) uint32 {
	switch {
	case v < int64(r.Min):
		return r.Min
	case v > int64(r.Max):
		return r.Max
	default:
		return uint32(v)
	}
}

// FromPercent maps a percentage, clamped to 0..100, onto the raw range.
func (r Range) FromPercent(percent int) uint32 {
	percent = min(max(percent, 0), 100)
	if r.Max <= r.Min {
		return r.Min
	}
	span := float64(r.Max - r.Min)
	return r.Clamp(int64(r.Min) + int64(math.Round(float64(percent)*span/100)))
}

// Percent expresses Current as a percentage of the range.
func (r Range) Percent() int {
	if r.Max <= r.Min {
		return 0
	}
	cur := min(max(r.Current, r.Min), r.Max)
	return int(math.Round(float64(cur-r.Min) * 100 / float64(r.Max-r.Min)))
}

// Capabilities reports which features a set of sub-devices can control.
type Capabilities struct {
	Brightness bool
	Contrast   bool
}
