package daemon

import (
	"sort"

	"brightd/internal/monitor"
)

// MonitorStatus is a point-in-time view of one directory entity.
type MonitorStatus struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	Connector    string `json:"connector"`
	Internal     bool   `json:"internal"`
	Reachable    bool   `json:"reachable"`
	Controllable bool   `json:"controllable"`
	Target       bool   `json:"target"`
	Selected     bool   `json:"selected"`
	Brightness   int    `json:"brightness"`
	Contrast     int    `json:"contrast"`
	// Reason is empty for healthy monitors.
	Reason string `json:"reason,omitempty"`
}

// Snapshot lists every monitor in the directory, ordered by connector.
func (d *Daemon) Snapshot() []MonitorStatus {
	entities := d.dir.Snapshot()
	out := make([]MonitorStatus, 0, len(entities))
	for _, e := range entities {
		out = append(out, statusOf(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Connector < out[j].Connector
	})
	return out
}

// Status returns the point-in-time view of one monitor.
func (d *Daemon) Status(id string) (MonitorStatus, bool) {
	e, ok := d.dir.Find(id)
	if !ok {
		return MonitorStatus{}, false
	}
	return statusOf(e), true
}

func statusOf(e *monitor.Entity) MonitorStatus {
	desc := e.Descriptor()
	return MonitorStatus{
		ID:           desc.DeviceInstanceID,
		Description:  desc.Description,
		Connector:    desc.Connector,
		Internal:     desc.Internal,
		Reachable:    desc.Reachable,
		Controllable: e.IsControllable(),
		Target:       e.IsTarget(),
		Selected:     e.IsSelected(),
		Brightness:   e.Brightness(),
		Contrast:     e.Contrast(),
		Reason:       e.Status(),
	}
}
