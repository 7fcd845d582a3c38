package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"brightd/internal/config"
	"brightd/internal/daemon"
	"brightd/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t, opts...)
	testsupport.AddConnector(t, cfg, testsupport.Connector{Name: "card0-eDP-1", Mode: "1920x1200"})
	testsupport.AddBacklight(t, cfg, testsupport.Backlight{
		Name:      "intel_backlight",
		Max:       1000,
		Current:   400,
		Connector: "card0-eDP-1",
	})

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestListRendersTable(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"list"}, env.configPath)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "card0-eDP-1")
	requireContains(t, out, "BRIGHTNESS")
	requireContains(t, out, "OK")
}

func TestListJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var monitors []daemon.MonitorStatus
	if err := json.Unmarshal([]byte(out), &monitors); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, out)
	}
	if len(monitors) != 1 {
		t.Fatalf("expected one monitor, got %d", len(monitors))
	}
	if !monitors[0].Target || !monitors[0].Internal {
		t.Fatalf("unexpected monitor: %+v", monitors[0])
	}
}

func TestSetBrightnessClampsAndWrites(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"set", "card0-eDP-1", "150"}, env.configPath)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	requireContains(t, out, "Set brightness of card0-eDP-1 to 100%")
	if v := testsupport.ReadBacklight(t, env.cfg, "intel_backlight"); v <= 400 {
		t.Fatalf("expected backlight raised, got %d", v)
	}
}

func TestSetWithoutIDUsesSelectedDisplay(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithMonitor("card0-eDP-1", config.Monitor{
		Selected:  true,
		RangeLow:  10,
		RangeHigh: 50,
	}))

	out, _, err := runCLI(t, []string{"set", "80"}, env.configPath)
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	requireContains(t, out, "Set brightness of card0-eDP-1 to 50%")
	if v := testsupport.ReadBacklight(t, env.cfg, "intel_backlight"); v != 501 {
		t.Fatalf("expected brightness capped at raw 501, got %d", v)
	}
}

func TestSetAtPointWritesDisplayUnderPoint(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"set", "--at", "100,200", "25"}, env.configPath)
	if err != nil {
		t.Fatalf("set --at: %v", err)
	}
	requireContains(t, out, "Set brightness of card0-eDP-1 to 25%")
	if v := testsupport.ReadBacklight(t, env.cfg, "intel_backlight"); v >= 400 {
		t.Fatalf("expected backlight lowered, got %d", v)
	}
}

func TestSetRejectsBadInput(t *testing.T) {
	env := setupCLITestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown id", args: []string{"set", "DEL-0000", "50"}, want: "no display with id"},
		{name: "bad percent", args: []string{"set", "card0-eDP-1", "bright"}, want: "invalid percent"},
		{name: "no selection", args: []string{"set", "50"}, want: "no display is selected"},
		{name: "bad point", args: []string{"set", "--at", "10", "50"}, want: "invalid point"},
		{name: "point with id", args: []string{"set", "--at", "10,10", "card0-eDP-1", "50"}, want: "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args, env.configPath)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFailuresEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"failures"}, env.configPath)
	if err != nil {
		t.Fatalf("failures: %v", err)
	}
	requireContains(t, out, "No access failures recorded")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"", "OK"},
		{"ddc-failing", "DDC Failing"},
		{"ddc-not-enabled", "DDC Not Enabled"},
		{"unreachable", "Unreachable"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.reason, false); got != tt.want {
			t.Fatalf("statusLabel(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}

func TestDoctorReportsChecks(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.DDC.Enabled = false
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "State directory")
	requireContains(t, out, "intel_backlight")
}
