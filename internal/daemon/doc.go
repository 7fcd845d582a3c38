// Package daemon wires the monitor directory, scheduler, topology, watchers,
// and failure journal into one lifecycle.
//
// A flock in the state directory keeps a single instance running. The daemon
// is the sink for entity events: failures are logged and journaled, and
// suspected topology changes become scan requests. Commands that only need a
// one-off view (list, set) build a Daemon without starting it and call
// Refresh.
package daemon
