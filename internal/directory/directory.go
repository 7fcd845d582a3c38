package directory

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"brightd/internal/logging"
	"brightd/internal/monitor"
)

// Factory builds an entity for a descriptor seen for the first time.
type Factory func(monitor.Descriptor) *monitor.Entity

// Result lists the ids touched by one Reconcile.
type Result struct {
	Unchanged []string
	Updated   []string
	Added     []string
	Removed   []string
}

// Changed reports whether the entity set or any descriptor changed.
func (r Result) Changed() bool {
	return len(r.Updated) > 0 || len(r.Added) > 0 || len(r.Removed) > 0
}

// Directory is the ordered, mutex-guarded set of entities.
type Directory struct {
	factory Factory
	logger  *slog.Logger

	mu       sync.RWMutex
	entities []*monitor.Entity
}

// New returns an empty directory.
func New(factory Factory, logger *slog.Logger) *Directory {
	return &Directory{
		factory: factory,
		logger:  logging.NewComponentLogger(logger, "directory"),
	}
}

// Reconcile applies one enumeration. The diff is computed from a snapshot
// outside the lock; only the structural swap happens under it.
func (d *Directory) Reconcile(fresh []monitor.Descriptor) Result {
	known := d.Snapshot()
	ids := make([]string, len(known))
	for i, e := range known {
		ids[i] = e.ID()
	}
	plan := Diff(ids, fresh)

	var result Result
	for _, m := range plan.Matched {
		e := known[m.Index]
		if e.Descriptor() == m.Descriptor {
			result.Unchanged = append(result.Unchanged, e.ID())
			continue
		}
		e.Replace(m.Descriptor)
		result.Updated = append(result.Updated, e.ID())
	}

	removed := make([]*monitor.Entity, 0, len(plan.Removed))
	for _, idx := range plan.Removed {
		removed = append(removed, known[idx])
	}
	added := make([]*monitor.Entity, 0, len(plan.Added))
	for _, desc := range plan.Added {
		added = append(added, d.factory(desc))
	}

	d.mu.Lock()
	for _, e := range removed {
		if i := slices.Index(d.entities, e); i >= 0 {
			d.entities = slices.Delete(d.entities, i, i+1)
		}
	}
	d.entities = append(d.entities, added...)
	d.mu.Unlock()

	for _, e := range removed {
		e.Close()
		result.Removed = append(result.Removed, e.ID())
	}
	for _, e := range added {
		result.Added = append(result.Added, e.ID())
	}

	if result.Changed() {
		d.logger.Info("monitor directory reconciled",
			logging.Int("unchanged", len(result.Unchanged)),
			logging.Int("updated", len(result.Updated)),
			logging.Int("added", len(result.Added)),
			logging.Int("removed", len(result.Removed)),
		)
	}
	return result
}

// Snapshot returns the entities in directory order.
func (d *Directory) Snapshot() []*monitor.Entity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.entities)
}

// Len returns the number of entities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entities)
}

// Find looks an entity up by instance id.
func (d *Directory) Find(id string) (*monitor.Entity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.entities {
		if monitor.SameID(e.ID(), id) {
			return e, true
		}
	}
	return nil, false
}

// FindByInstancePrefix returns the entity whose id or connector is a prefix
// of instance. Backlight events name devices this way.
func (d *Directory) FindByInstancePrefix(instance string) (*monitor.Entity, bool) {
	instance = strings.ToLower(strings.TrimSpace(instance))
	if instance == "" {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.entities {
		desc := e.Descriptor()
		for _, key := range []string{desc.DeviceInstanceID, desc.Connector} {
			if key != "" && strings.HasPrefix(instance, strings.ToLower(key)) {
				return e, true
			}
		}
	}
	return nil, false
}

// Close closes and drops every entity.
func (d *Directory) Close() {
	d.mu.Lock()
	entities := d.entities
	d.entities = nil
	d.mu.Unlock()
	for _, e := range entities {
		e.Close()
	}
}
