package topology

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"brightd/internal/ddc"
	"brightd/internal/session"
	"brightd/internal/testsupport"
)

type fixture struct {
	drm, dev, backlight string
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		drm:       filepath.Join(root, "drm"),
		dev:       filepath.Join(root, "dev"),
		backlight: filepath.Join(root, "backlight"),
	}

	dp := filepath.Join(f.drm, "card0-DP-1")
	writeFile(t, filepath.Join(dp, "status"), []byte("connected\n"))
	writeFile(t, filepath.Join(dp, "modes"), []byte("2560x1440\n1920x1080\n"))
	writeFile(t, filepath.Join(dp, "edid"), testsupport.EDID("U2720Q", 0xABCD))
	if err := os.Symlink("../../i2c-5", filepath.Join(dp, "ddc")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(f.dev, "i2c-5"), nil)

	writeFile(t, filepath.Join(f.drm, "card0-HDMI-A-1", "status"), []byte("disconnected\n"))

	edp := filepath.Join(f.drm, "card0-eDP-1")
	writeFile(t, filepath.Join(edp, "status"), []byte("connected\n"))
	writeFile(t, filepath.Join(edp, "modes"), []byte("1920x1200\n"))
	writeFile(t, filepath.Join(f.drm, "card0", "dev"), []byte("226:0\n"))

	bl := filepath.Join(f.backlight, "intel_backlight")
	writeFile(t, filepath.Join(bl, "max_brightness"), []byte("1000\n"))
	writeFile(t, filepath.Join(bl, "actual_brightness"), []byte("400\n"))
	writeFile(t, filepath.Join(bl, "type"), []byte("raw\n"))
	if err := os.Symlink("../../card0-eDP-1", filepath.Join(bl, "device")); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f fixture) topology() *Topology {
	return New(Options{
		DRMDir:        f.drm,
		DevDir:        f.dev,
		BacklightRoot: f.backlight,
		DDC:           true,
		Backlight:     true,
		DDCOptions:    ddc.DefaultOptions(),
	})
}

func TestEnumerate(t *testing.T) {
	f := newFixture(t)
	topo := f.topology()

	descs, err := topo.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(descs) != 2 {
		t.Fatalf("expected 2 connected displays, got %+v", descs)
	}

	ext := descs[0]
	if ext.DeviceInstanceID != "DEL-A0F3-0000ABCD" || ext.Description != "U2720Q" {
		t.Fatalf("external identity: %+v", ext)
	}
	if ext.Bus != filepath.Join(f.dev, "i2c-5") || !ext.Reachable || ext.Internal {
		t.Fatalf("external control path: %+v", ext)
	}
	if ext.Rect.X != 0 || ext.Rect.Width != 2560 || ext.Rect.Height != 1440 {
		t.Fatalf("external rect: %+v", ext.Rect)
	}

	panel := descs[1]
	if panel.DeviceInstanceID != "card0-eDP-1" || !panel.Internal {
		t.Fatalf("panel identity: %+v", panel)
	}
	if panel.Bus != "" || !panel.Reachable {
		t.Fatalf("panel should be reachable through its backlight: %+v", panel)
	}
	if panel.Rect.X != 2560 || panel.Rect.Width != 1920 || panel.MonitorIndex != 1 {
		t.Fatalf("panel layout: %+v", panel)
	}
}

func TestEnumerateWithoutBacklightLeavesPanelUnreachable(t *testing.T) {
	f := newFixture(t)
	topo := New(Options{DRMDir: f.drm, DevDir: f.dev, BacklightRoot: f.backlight, DDC: true})
	descs, err := topo.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if descs[1].Reachable {
		t.Fatalf("panel has no control path: %+v", descs[1])
	}
}

func TestCheckChanged(t *testing.T) {
	f := newFixture(t)
	topo := f.topology()
	if changed, _ := topo.CheckChanged(context.Background()); !changed {
		t.Fatal("expected change before the first enumeration")
	}
	if _, err := topo.Enumerate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if changed, _ := topo.CheckChanged(context.Background()); changed {
		t.Fatal("unexpected change right after enumeration")
	}
	writeFile(t, filepath.Join(f.drm, "card0-HDMI-A-1", "status"), []byte("connected\n"))
	if changed, _ := topo.CheckChanged(context.Background()); !changed {
		t.Fatal("expected change after hot-plug")
	}
}

func TestDisplayAt(t *testing.T) {
	topo := newFixture(t).topology()
	if _, err := topo.Enumerate(context.Background()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		p    session.Point
		want string
	}{
		{session.Point{X: 100, Y: 100}, "DEL-A0F3-0000ABCD"},
		{session.Point{X: 3000, Y: 10}, "card0-eDP-1"},
		{session.Point{X: 10000, Y: 0}, "card0-eDP-1"},
		{session.Point{X: -50, Y: 2000}, "DEL-A0F3-0000ABCD"},
	}
	for _, tt := range tests {
		got, ok := topo.DisplayAt(tt.p)
		if !ok || got != tt.want {
			t.Fatalf("DisplayAt(%+v) = %q %v, want %q", tt.p, got, ok, tt.want)
		}
	}
}

func TestOpen(t *testing.T) {
	topo := newFixture(t).topology()
	if _, err := topo.Enumerate(context.Background()); err != nil {
		t.Fatal(err)
	}

	devs, err := topo.Open(context.Background(), "del-a0f3-0000abcd")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(devs) != 1 || devs[0].Bus == nil || devs[0].Instance != "card0-DP-1" {
		t.Fatalf("unexpected sub-devices: %+v", devs)
	}
	if err := devs[0].Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	devs, err = topo.Open(context.Background(), "card0-eDP-1")
	if err != nil || len(devs) != 1 || devs[0].Bus != nil || !devs[0].Internal {
		t.Fatalf("panel sub-devices: %+v err=%v", devs, err)
	}

	if _, err := topo.Open(context.Background(), "missing"); !errors.Is(err, session.ErrNoDisplay) {
		t.Fatalf("expected ErrNoDisplay, got %v", err)
	}
}

func TestEnumerateMissingRoot(t *testing.T) {
	topo := New(Options{DRMDir: filepath.Join(t.TempDir(), "absent")})
	descs, err := topo.Enumerate(context.Background())
	if err != nil || len(descs) != 0 {
		t.Fatalf("descs=%v err=%v", descs, err)
	}
}
