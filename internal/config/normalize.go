package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSysfs(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeDDC()
	c.normalizeWatch()
	c.normalizeLogging()
	c.normalizeMonitors()
	return nil
}

func (c *Config) normalizeMonitors() {
	for id, m := range c.Monitors {
		if m.RangeHigh == 0 && m.RangeLow == 0 {
			m.RangeHigh = 100
		}
		c.Monitors[id] = m
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSysfs() error {
	var err error
	if strings.TrimSpace(c.Sysfs.DRMDir) == "" {
		c.Sysfs.DRMDir = defaultDRMDir
	}
	if c.Sysfs.DRMDir, err = expandPath(c.Sysfs.DRMDir); err != nil {
		return fmt.Errorf("sysfs.drm_dir: %w", err)
	}
	if strings.TrimSpace(c.Sysfs.BacklightDir) == "" {
		c.Sysfs.BacklightDir = defaultBacklightDir
	}
	if c.Sysfs.BacklightDir, err = expandPath(c.Sysfs.BacklightDir); err != nil {
		return fmt.Errorf("sysfs.backlight_dir: %w", err)
	}
	if strings.TrimSpace(c.Sysfs.DevDir) == "" {
		c.Sysfs.DevDir = defaultDevDir
	}
	if c.Sysfs.DevDir, err = expandPath(c.Sysfs.DevDir); err != nil {
		return fmt.Errorf("sysfs.dev_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = defaultWorkers
	}
	if c.Scheduler.SettleDelay < 0 {
		c.Scheduler.SettleDelay = 0
	}
	if c.Scheduler.CallTimeout <= 0 {
		c.Scheduler.CallTimeout = defaultCallTimeout
	}
}

func (c *Config) normalizeDDC() {
	if c.DDC.WriteDelayMS < 0 {
		c.DDC.WriteDelayMS = 0
	}
	if c.DDC.ReplyDelayMS < 0 {
		c.DDC.ReplyDelayMS = 0
	}
	if c.DDC.Retries <= 0 {
		c.DDC.Retries = 1
	}
	if c.DDC.LockTimeoutMS < 0 {
		c.DDC.LockTimeoutMS = 0
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.CoalesceWindowMS <= 0 {
		c.Watch.CoalesceWindowMS = defaultCoalesceWindowMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	if value, ok := os.LookupEnv("BRIGHTD_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
