package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateDDC(); err != nil {
		return err
	}
	if err := c.validateControlPaths(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	if err := c.validateMonitors(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.MaxMonitors < 1 || c.Scheduler.MaxMonitors > maxMonitorsUpperBound {
		return fmt.Errorf("scheduler.max_monitors must be between 1 and %d", maxMonitorsUpperBound)
	}
	if c.Scheduler.Workers > maxWorkersUpperBound {
		return fmt.Errorf("scheduler.workers must be at most %d", maxWorkersUpperBound)
	}
	if c.Scheduler.UpdateInterval < minUpdateIntervalSeconds {
		return errors.New("scheduler.update_interval must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateDDC() error {
	if c.DDC.Retries > maxDDCRetriesUpperBound {
		return fmt.Errorf("ddc.retries must be at most %d", maxDDCRetriesUpperBound)
	}
	return nil
}

func (c *Config) validateControlPaths() error {
	if !c.DDC.Enabled && !c.Backlight.Enabled {
		return errors.New("at least one of ddc.enabled or backlight.enabled must be true")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if c.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	return nil
}

func (c *Config) validateMonitors() error {
	selected := ""
	for id, m := range c.Monitors {
		if m.RangeLow < 0 || m.RangeHigh > 100 || m.RangeLow >= m.RangeHigh {
			return fmt.Errorf("monitors.%q: range_low and range_high must satisfy 0 <= low < high <= 100", id)
		}
		if m.Selected {
			if selected != "" {
				return fmt.Errorf("monitors: both %q and %q are selected", selected, id)
			}
			selected = id
		}
	}
	return nil
}
