// Package preflight provides readiness checks for the kernel interfaces and
// directories brightd depends on.
//
// The CLI "brightd doctor" command runs RunAll and prints one row per check.
// Each check is gated by its config toggle; a disabled control path is
// skipped rather than reported as failing.
package preflight
