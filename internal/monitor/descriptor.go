package monitor

import "strings"

// Rect is a display's bounding rectangle in the virtual desktop.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Contains reports whether (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Descriptor is an immutable snapshot of one display from a single enumeration.
type Descriptor struct {
	// DeviceInstanceID is the stable natural key, compared case-insensitively.
	DeviceInstanceID string
	DisplayIndex     int
	MonitorIndex     int
	Rect             Rect
	Description      string
	Reachable        bool

	// Connector is the DRM connector, e.g. card0-DP-1.
	Connector string
	// Internal marks built-in panels (eDP, LVDS, DSI).
	Internal bool
	// Bus is the i2c-dev node of the DDC channel, empty when there is none.
	Bus string
}

// SameID compares instance ids case-insensitively.
func SameID(a, b string) bool {
	return strings.EqualFold(a, b)
}
