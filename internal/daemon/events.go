package daemon

import (
	"context"
	"time"

	"brightd/internal/directory"
	"brightd/internal/journal"
	"brightd/internal/logging"
	"brightd/internal/native"
)

const journalTimeout = 2 * time.Second

// MonitorAccessFailed logs and journals one failed hardware access.
func (d *Daemon) MonitorAccessFailed(id string, result native.AccessResult) {
	d.logger.Debug("monitor access failed",
		logging.DeviceID(id),
		logging.String(logging.FieldStatus, result.Status.String()),
		logging.String("reason", result.Message),
	)
	if d.journal == nil {
		return
	}
	var scanID string
	if s := d.lastScan.Load(); s != nil {
		scanID = s.ScanID
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if _, err := d.journal.Record(ctx, journal.Failure{
		DeviceID: id,
		Status:   result.Status.String(),
		Message:  result.Message,
		ScanID:   scanID,
	}); err != nil {
		d.logger.Debug("journal write failed", logging.Error(err))
	}
}

// MonitorsChangeFound turns a suspected topology change into a scan request.
func (d *Daemon) MonitorsChangeFound() {
	d.logger.Debug("topology change suspected; requesting scan")
	d.sched.RequestScan()
}

// ControllabilityChanged reports a monitor gaining or losing control.
func (d *Daemon) ControllabilityChanged(id string, controllable bool) {
	if controllable {
		d.logger.Info("monitor controllable again",
			logging.DeviceID(id),
			logging.String(logging.FieldEventType, "monitor_recovered"),
		)
		return
	}
	logging.WarnWithContext(d.logger, "monitor no longer controllable", "monitor_uncontrollable",
		logging.DeviceID(id),
		logging.String(logging.FieldImpact, "brightness changes to this monitor are skipped"),
		logging.String(logging.FieldErrorHint, "enable DDC/CI in the monitor's on-screen menu or check the cable"),
	)
}

// ScanningChanged tracks scan state for status reporting.
func (d *Daemon) ScanningChanged(scanning bool) {
	d.scanning.Store(scanning)
}

// ScanCompleted remembers the latest scan.
func (d *Daemon) ScanCompleted(scanID string, result directory.Result) {
	d.lastScan.Store(&ScanSummary{ScanID: scanID, Finished: time.Now(), Result: result})
}
