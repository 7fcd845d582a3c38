package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"brightd/internal/config"
	"brightd/internal/logging"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "debug"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("scan complete", logging.Int("added", 2))

	matches, err := filepath.Glob(filepath.Join(cfg.Paths.LogDir, "brightd-*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one log file, got %v (err=%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, data)
	}
	if line["msg"] != "scan complete" {
		t.Fatalf("unexpected msg: %v", line["msg"])
	}
	if line["level"] != "info" {
		t.Fatalf("unexpected level: %v", line["level"])
	}
}

func TestConsoleHandlerHeaderAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "scheduler")
	logger.Info("brightness refreshed",
		logging.DeviceID("DEL-A0F3-1"),
		logging.Int("brightness", 40),
		logging.Bool("controllable", true),
		logging.String(logging.FieldScanID, "3f2a9c1e-77b0-4c55-9d61-0a5e2f1b8c44"),
	)

	out := buf.String()
	if !strings.Contains(out, "[scheduler#3f2a9c1e] DEL-A0F3-1: brightness refreshed") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "- Brightness: 40") {
		t.Fatalf("expected brightness field, got %q", out)
	}
	if !strings.Contains(out, "- Controllable: yes") {
		t.Fatalf("expected friendly bool, got %q", out)
	}
	if strings.Contains(out, "77b0") {
		t.Fatalf("expected scan id shortened to its tag, got %q", out)
	}
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller at info level, got %q", out)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.WarnWithContext(logger, "ddc read failed", "ddc_read_failed",
		logging.Error(errors.New("remote I/O error")),
		logging.String(logging.FieldImpact, "brightness not refreshed"),
	)

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line[logging.FieldEventType] != "ddc_read_failed" {
		t.Fatalf("missing event type: %v", line)
	}
	if line[logging.FieldErrorHint] != "check logs for details" {
		t.Fatalf("missing default hint: %v", line)
	}
	if line[logging.FieldImpact] != "brightness not refreshed" {
		t.Fatalf("caller impact overwritten: %v", line)
	}
}

func TestWithContextAddsScanID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := logging.WithScanID(context.Background(), "scan-1")
	logging.WithContext(ctx, logger).Info("scan started")
	if !strings.Contains(buf.String(), `"scan_id":"scan-1"`) {
		t.Fatalf("expected scan id, got %q", buf.String())
	}
	if _, ok := logging.ScanIDFromContext(context.Background()); ok {
		t.Fatal("expected no scan id on bare context")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestPruneLogFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "brightd-20200101T000000.log")
	current := filepath.Join(dir, "brightd-20200102T000000.log")
	fresh := filepath.Join(dir, "brightd-20991231T000000.log")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, current, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().AddDate(0, 0, -30)
	for _, p := range []string{old, current, other} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	removed := logging.PruneLogFiles(logging.NewNop(), dir, current, 7)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, err=%v", err)
	}
	for _, p := range []string{current, fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}
