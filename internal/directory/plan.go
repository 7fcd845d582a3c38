// Package directory keeps the ordered set of monitor entities in step with
// what enumeration reports.
//
// Reconcile matches fresh descriptors against known entities by instance id,
// case-insensitively. Matched entities keep their position and are updated in
// place. Unmatched known entities are closed and removed. New descriptors are
// appended.
package directory

import "brightd/internal/monitor"

// Match pairs a known entity position with the fresh descriptor that claimed it.
type Match struct {
	Index      int
	Descriptor monitor.Descriptor
}

// Plan is the diff between the known entities and one enumeration.
type Plan struct {
	Matched []Match
	// Removed holds known positions no descriptor claimed, highest first.
	Removed []int
	Added   []monitor.Descriptor
}

// Diff computes a Plan. Each known id can be claimed at most once; the
// first fresh descriptor with a matching id wins.
func Diff(knownIDs []string, fresh []monitor.Descriptor) Plan {
	pool := make([]bool, len(knownIDs))
	var plan Plan
	for _, desc := range fresh {
		idx := -1
		for i, id := range knownIDs {
			if !pool[i] && monitor.SameID(id, desc.DeviceInstanceID) {
				idx = i
				break
			}
		}
		if idx < 0 {
			plan.Added = append(plan.Added, desc)
			continue
		}
		pool[idx] = true
		plan.Matched = append(plan.Matched, Match{Index: idx, Descriptor: desc})
	}
	for i := len(knownIDs) - 1; i >= 0; i-- {
		if !pool[i] {
			plan.Removed = append(plan.Removed, i)
		}
	}
	return plan
}
