// Package backlight queries the kernel backlight class and writes brightness
// through logind or sysfs.
//
// Query returns one Record per /sys/class/backlight entry; Match picks the
// record that belongs to a display connector. Writes go through a Setter:
// LogindSetter invokes org.freedesktop.login1.Session.SetBrightness so no root
// is needed, SysfsSetter writes the brightness attribute directly, and
// FallbackSetter tries the first and falls back to the second.
package backlight
