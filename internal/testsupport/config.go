package testsupport

import (
	"path/filepath"
	"testing"

	"brightd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose state, log, and sysfs roots live under a
// per-test temp directory. Watchers and the logind write path are off so
// tests never touch the real kernel or system bus.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Sysfs.DRMDir = filepath.Join(base, "sys", "class", "drm")
	cfgVal.Sysfs.BacklightDir = filepath.Join(base, "sys", "class", "backlight")
	cfgVal.Sysfs.DevDir = filepath.Join(base, "dev")
	cfgVal.Scheduler.SettleDelay = 0
	cfgVal.Backlight.UseLogind = false
	cfgVal.Watch.Udev = false
	cfgVal.Watch.Logind = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithMaxMonitors overrides the scan cap.
func WithMaxMonitors(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.MaxMonitors = n
	}
}

// WithoutJournal disables the access-failure journal.
func WithoutJournal() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Journal.Enabled = false
	}
}

// WithMonitor adds per-display overrides for id.
func WithMonitor(id string, m config.Monitor) ConfigOption {
	return func(b *configBuilder) {
		if m.RangeLow == 0 && m.RangeHigh == 0 {
			m.RangeHigh = 100
		}
		if b.cfg.Monitors == nil {
			b.cfg.Monitors = map[string]config.Monitor{}
		}
		b.cfg.Monitors[id] = m
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
