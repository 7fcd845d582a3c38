// Package logging assembles the structured slog loggers used by the brightd
// daemon and CLI.
//
// It owns the console and JSON handlers, the level and output plumbing, and the
// standard field names (component, device_id, scan_id, event_type, error_hint,
// impact). Warnings are expected to carry cause, impact, and a next step;
// WarnWithContext fills in whichever of those the caller omitted.
//
// A no-op logger is provided for tests and for wiring that must not fail.
package logging
