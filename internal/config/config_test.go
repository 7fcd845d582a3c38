package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"brightd/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "brightd")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.LockPath() != filepath.Join(wantState, "brightd.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
	if cfg.JournalPath() != filepath.Join(wantState, "journal.db") {
		t.Fatalf("unexpected journal path: %q", cfg.JournalPath())
	}
	if cfg.Scheduler.MaxMonitors != 4 {
		t.Fatalf("expected max_monitors default 4, got %d", cfg.Scheduler.MaxMonitors)
	}
	if cfg.SettleDelay() != 3*time.Second {
		t.Fatalf("expected 3s settle delay, got %s", cfg.SettleDelay())
	}
	if cfg.UpdateInterval() != 10*time.Second {
		t.Fatalf("unexpected update interval: %s", cfg.UpdateInterval())
	}
	if !cfg.DDC.Enabled || !cfg.Backlight.Enabled {
		t.Fatal("expected both control paths enabled by default")
	}
	if cfg.Sysfs.DRMDir != "/sys/class/drm" {
		t.Fatalf("unexpected drm dir: %q", cfg.Sysfs.DRMDir)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
state_dir = "~/state"

[scheduler]
max_monitors = 2
workers = 0
update_interval = 30
settle_delay_ms = -5

[ddc]
retries = 0

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Scheduler.MaxMonitors != 2 {
		t.Fatalf("expected max_monitors 2, got %d", cfg.Scheduler.MaxMonitors)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Fatalf("expected workers normalized to default, got %d", cfg.Scheduler.Workers)
	}
	if cfg.Scheduler.SettleDelay != 0 {
		t.Fatalf("expected negative settle delay clamped to 0, got %d", cfg.Scheduler.SettleDelay)
	}
	if cfg.DDC.Retries != 1 {
		t.Fatalf("expected retries normalized to 1, got %d", cfg.DDC.Retries)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
}

func TestLoadMonitorOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[monitors."DEL-A0F3-0000ABCD"]
selected = true
range_low = 10
range_high = 90
track_contrast = true

[monitors."card0-eDP-1"]
track_contrast = true
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	m, ok := cfg.MonitorOverride("del-a0f3-0000abcd")
	if !ok {
		t.Fatal("expected case-insensitive override lookup")
	}
	if !m.Selected || !m.TrackContrast || m.RangeLow != 10 || m.RangeHigh != 90 {
		t.Fatalf("unexpected override: %+v", m)
	}
	internal, ok := cfg.MonitorOverride("card0-eDP-1")
	if !ok || internal.RangeLow != 0 || internal.RangeHigh != 100 {
		t.Fatalf("expected unset range to default to 0..100, got %+v", internal)
	}
	if _, ok := cfg.MonitorOverride("GSM-5B7F-1"); ok {
		t.Fatal("unexpected override for unknown id")
	}
}

func TestLogLevelEnvironmentOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("BRIGHTD_LOG_LEVEL", " Warn ")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env override, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "max monitors zero",
			mutate: func(c *config.Config) { c.Scheduler.MaxMonitors = 0 },
			want:   "scheduler.max_monitors",
		},
		{
			name:   "too many workers",
			mutate: func(c *config.Config) { c.Scheduler.Workers = 99 },
			want:   "scheduler.workers",
		},
		{
			name:   "update interval zero",
			mutate: func(c *config.Config) { c.Scheduler.UpdateInterval = 0 },
			want:   "scheduler.update_interval",
		},
		{
			name: "no control path",
			mutate: func(c *config.Config) {
				c.DDC.Enabled = false
				c.Backlight.Enabled = false
			},
			want: "at least one of",
		},
		{
			name:   "negative retention",
			mutate: func(c *config.Config) { c.Journal.RetentionDays = -1 },
			want:   "journal.retention_days",
		},
		{
			name: "inverted monitor range",
			mutate: func(c *config.Config) {
				c.Monitors = map[string]config.Monitor{"A": {RangeLow: 80, RangeHigh: 20}}
			},
			want: "range_low and range_high",
		},
		{
			name: "two selected monitors",
			mutate: func(c *config.Config) {
				c.Monitors = map[string]config.Monitor{
					"A": {Selected: true, RangeHigh: 100},
					"B": {Selected: true, RangeHigh: 100},
				}
			},
			want: "are selected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if parsed.Scheduler.MaxMonitors != config.Default().Scheduler.MaxMonitors {
		t.Fatalf("sample max_monitors drifted from default: %d", parsed.Scheduler.MaxMonitors)
	}

	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("Load(sample) exists=%v err=%v", exists, err)
	}
}
