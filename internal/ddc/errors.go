package ddc

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var (
	ErrChecksum       = errors.New("ddc: checksum mismatch")
	ErrUnsupportedVCP = errors.New("ddc: unsupported vcp code")
	ErrShortReply     = errors.New("ddc: short reply")
	ErrInvalidReply   = errors.New("ddc: invalid reply")
	ErrInvalidEDID    = errors.New("ddc: invalid edid")
	ErrClosed         = errors.New("ddc: bus closed")
	ErrBusy           = errors.New("ddc: bus held by another process")
)

// IsProtocol reports whether err is a DDC/CI protocol fault as opposed to a
// transport fault.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrChecksum) ||
		errors.Is(err, ErrUnsupportedVCP) ||
		errors.Is(err, ErrShortReply) ||
		errors.Is(err, ErrInvalidReply)
}

// IsVanished reports whether err means the adapter or the display is gone.
func IsVanished(err error) bool {
	return errors.Is(err, unix.ENODEV) ||
		errors.Is(err, unix.ENXIO) ||
		errors.Is(err, unix.ENOENT) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, ErrClosed)
}

// IsTransmission reports whether err is an I2C transfer failure.
func IsTransmission(err error) bool {
	return errors.Is(err, unix.EIO) ||
		errors.Is(err, unix.EREMOTEIO) ||
		errors.Is(err, unix.ETIMEDOUT) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, ErrBusy)
}
