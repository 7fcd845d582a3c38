package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldDeviceID is the structured logging key for monitor device instance ids.
	FieldDeviceID = "device_id"
	// FieldScanID is the structured logging key correlating the lines of one scan pass.
	FieldScanID = "scan_id"
	// FieldEventType is the structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the structured logging key for operator guidance on failures.
	FieldErrorHint = "error_hint"
	// FieldImpact is the structured logging key for the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldStatus carries an access status or controllability reason.
	FieldStatus = "status"
	FieldAlert  = "alert"
)

type scanIDKey struct{}

// WithScanID returns a context carrying the scan correlation id.
func WithScanID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, scanIDKey{}, id)
}

// ScanIDFromContext returns the scan correlation id, if any.
func ScanIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(scanIDKey{}).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if id, ok := ScanIDFromContext(ctx); ok {
		return []slog.Attr{slog.String(FieldScanID, id)}
	}
	return nil
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
