package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Scheduler contains scan and update pass timing.
type Scheduler struct {
	// MaxMonitors caps how many reachable monitors are refreshed during a scan.
	MaxMonitors int `toml:"max_monitors"`
	// Workers bounds concurrent hardware calls in a fan-out.
	Workers int `toml:"workers"`
	// UpdateInterval is the periodic update pass interval in seconds.
	UpdateInterval int `toml:"update_interval"`
	// SettleDelay is how long a change signal waits before enumerating, in milliseconds.
	SettleDelay int `toml:"settle_delay_ms"`
	// CallTimeout bounds a single refresh fan-out, in seconds.
	CallTimeout int `toml:"call_timeout"`
}

// DDC contains DDC/CI transport tuning.
type DDC struct {
	Enabled      bool `toml:"enabled"`
	WriteDelayMS int  `toml:"write_delay_ms"`
	ReplyDelayMS int  `toml:"reply_delay_ms"`
	Retries      int  `toml:"retries"`
	// LockTimeoutMS bounds the wait for another process holding an i2c node.
	LockTimeoutMS int `toml:"lock_timeout_ms"`
}

// Sysfs contains kernel interface roots. Overridable for tests and containers.
type Sysfs struct {
	DRMDir       string `toml:"drm_dir"`
	BacklightDir string `toml:"backlight_dir"`
	DevDir       string `toml:"dev_dir"`
}

// Backlight contains settings for the backlight control path.
type Backlight struct {
	Enabled bool `toml:"enabled"`
	// UseLogind routes writes through logind's SetBrightness method before falling back to sysfs.
	UseLogind bool `toml:"use_logind"`
}

// Watch contains change-signal source settings.
type Watch struct {
	Udev             bool `toml:"udev"`
	Logind           bool `toml:"logind"`
	CoalesceWindowMS int  `toml:"coalesce_window_ms"`
}

// Journal contains settings for the access-failure journal.
type Journal struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Monitor holds overrides for one display, keyed by device instance id.
type Monitor struct {
	// Selected makes this display the target of commands given no id.
	Selected bool `toml:"selected"`
	// RangeLow and RangeHigh bound the brightness percentages that may be written.
	RangeLow  int `toml:"range_low"`
	RangeHigh int `toml:"range_high"`
	// TrackContrast refreshes contrast on every update pass.
	TrackContrast bool `toml:"track_contrast"`
}

// Config encapsulates all configuration values for brightd.
//
// Configuration sections by subsystem:
//   - Paths: state (lock, journal) and log directories
//   - Scheduler: scan cap, worker pool size, update interval, settle delay
//   - DDC: DDC/CI transport timing
//   - Sysfs: kernel interface roots
//   - Backlight: backlight control path
//   - Watch: udev and logind change sources
//   - Journal: access-failure journal
//   - Logging: log format and level
//   - Monitors: per-display overrides
type Config struct {
	Paths     Paths              `toml:"paths"`
	Scheduler Scheduler          `toml:"scheduler"`
	DDC       DDC                `toml:"ddc"`
	Sysfs     Sysfs              `toml:"sysfs"`
	Backlight Backlight          `toml:"backlight"`
	Watch     Watch              `toml:"watch"`
	Journal   Journal            `toml:"journal"`
	Logging   Logging            `toml:"logging"`
	Monitors  map[string]Monitor `toml:"monitors"`
}

// MonitorOverride returns the overrides for a device instance id. Ids compare
// case-insensitively, as the kernel and EDID spell them inconsistently.
func (c *Config) MonitorOverride(id string) (Monitor, bool) {
	if m, ok := c.Monitors[id]; ok {
		return m, true
	}
	for key, m := range c.Monitors {
		if strings.EqualFold(key, id) {
			return m, true
		}
	}
	return Monitor{}, false
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/brightd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("brightd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the access-failure journal database location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "brightd.lock")
}

// UpdateInterval returns the periodic update pass interval.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Scheduler.UpdateInterval) * time.Second
}

// SettleDelay returns the delay between a change signal and enumeration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Scheduler.SettleDelay) * time.Millisecond
}

// CallTimeout returns the bound on one refresh fan-out.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Scheduler.CallTimeout) * time.Second
}

// CoalesceWindow returns the window used to batch raw change events into one signal.
func (c *Config) CoalesceWindow() time.Duration {
	return time.Duration(c.Watch.CoalesceWindowMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
