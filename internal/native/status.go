package native

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"brightd/internal/backlight"
	"brightd/internal/ddc"
)

// Status classifies the outcome of a hardware access.
type Status int

const (
	Succeeded Status = iota
	DdcFailed
	TransmissionFailed
	NoLongerExist
	CapabilitiesUnavailable
	NotSupported
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case DdcFailed:
		return "ddc_failed"
	case TransmissionFailed:
		return "transmission_failed"
	case NoLongerExist:
		return "no_longer_exist"
	case CapabilitiesUnavailable:
		return "capabilities_unavailable"
	case NotSupported:
		return "not_supported"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// AccessResult is returned by every entity-level hardware read or write.
type AccessResult struct {
	Status  Status
	Message string
}

// Success is the result of an access that needed no further attention.
var Success = AccessResult{Status: Succeeded}

// OK reports whether the access succeeded.
func (r AccessResult) OK() bool { return r.Status == Succeeded }

var (
	errUnavailable  = errors.New("native: no control path for sub-device")
	errNotSupported = errors.New("native: feature not supported by backend")
	errNoDevices    = errors.New("native: no sub-devices")
	errPanic        = errors.New("native: backend panic")
)

// AccessError aggregates the per-sub-device failures of one batch.
type AccessError struct {
	Status Status
	Err    error
}

func (e *AccessError) Error() string {
	errs := multierr.Errors(e.Err)
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Status, strings.Join(msgs, "; "))
}

func (e *AccessError) Unwrap() []error { return multierr.Errors(e.Err) }

// Errors returns the individual sub-device failures.
func (e *AccessError) Errors() []error { return multierr.Errors(e.Err) }

// ResultOf converts a batch error into an AccessResult.
func ResultOf(err error) AccessResult {
	if err == nil {
		return Success
	}
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return AccessResult{Status: accessErr.Status, Message: accessErr.Error()}
	}
	return AccessResult{Status: classify(err), Message: err.Error()}
}

func classify(err error) Status {
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, errUnavailable), errors.Is(err, errNoDevices):
		return CapabilitiesUnavailable
	case errors.Is(err, errNotSupported), errors.Is(err, ddc.ErrUnsupportedVCP):
		return NotSupported
	case ddc.IsVanished(err), errors.Is(err, backlight.ErrNotFound):
		return NoLongerExist
	case ddc.IsProtocol(err):
		return DdcFailed
	default:
		// I/O errno, timeouts, and failed logind or sysfs writes.
		return TransmissionFailed
	}
}

// aggregate folds per-device errors into one AccessError. A vanished
// sub-device dominates; otherwise the first failure decides the status.
func aggregate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	status := classify(errs[0])
	for _, err := range errs {
		if classify(err) == NoLongerExist {
			status = NoLongerExist
			break
		}
	}
	return &AccessError{Status: status, Err: multierr.Combine(errs...)}
}
