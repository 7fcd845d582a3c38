// Package monitor holds the long-lived logical record for one physical display.
//
// An Entity keeps a stable device instance id across rescans while its
// Descriptor, cached ranges, and per-entity adapter state are replaced. Each
// hardware access feeds the entity's Controllability, a hysteresis counter
// that keeps transient DDC/CI failures from flapping visible state.
package monitor
