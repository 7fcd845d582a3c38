// Package ddc speaks VESA DDC/CI to external monitors over Linux i2c-dev.
//
// Bus wraps one /dev/i2c-N adapter and issues Get VCP, Set VCP and
// Capabilities requests at slave address 0x37, honouring the inter-command
// delays monitors need. The codec functions are exported so callers and tests
// can build and decode frames without hardware. ParseCapabilities and
// ParseEDID decode the capability string and the 128-byte EDID base block.
//
// Protocol faults surface as the package sentinels (ErrChecksum,
// ErrUnsupportedVCP, ErrShortReply); transport faults keep their errno so
// IsVanished and IsTransmission can classify them.
package ddc
