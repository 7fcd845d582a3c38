// Package scheduler drives scans and periodic update passes over the monitor
// directory.
//
// A scan enumerates displays, reconciles the directory, and refreshes
// brightness for up to MaxMonitors reachable entities on a bounded worker
// pool. Entities that answer become targets. When no entity answers, every
// non-controllable entity is targeted so the user can still try it.
//
// Update passes run on a ticker. Each first asks the topology whether
// anything changed and requests a scan if so; otherwise it refreshes the
// current targets. Scans and updates are each single-flight, and an update
// never overlaps a scan.
package scheduler
