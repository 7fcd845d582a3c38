package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"brightd/internal/config"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Connector describes a fake DRM connector.
type Connector struct {
	Name   string // e.g. card0-DP-1
	Status string // defaults to connected
	EDID   []byte
	Mode   string // first line of modes, e.g. 2560x1440
	// I2C names an i2c-dev node such as i2c-5. The node is created as a
	// regular file under the config's dev dir.
	I2C string
}

// AddConnector materializes c under cfg.Sysfs.DRMDir.
func AddConnector(t testing.TB, cfg *config.Config, c Connector) {
	t.Helper()
	dir := filepath.Join(cfg.Sysfs.DRMDir, c.Name)
	status := c.Status
	if status == "" {
		status = "connected"
	}
	WriteFile(t, filepath.Join(dir, "status"), []byte(status+"\n"))
	if c.Mode != "" {
		WriteFile(t, filepath.Join(dir, "modes"), []byte(c.Mode+"\n"))
	}
	if len(c.EDID) > 0 {
		WriteFile(t, filepath.Join(dir, "edid"), c.EDID)
	}
	if c.I2C != "" {
		if err := os.Symlink(filepath.Join("..", "..", c.I2C), filepath.Join(dir, "ddc")); err != nil {
			t.Fatalf("link ddc for %s: %v", c.Name, err)
		}
		WriteFile(t, filepath.Join(cfg.Sysfs.DevDir, c.I2C), nil)
	}
}

// SetConnectorStatus rewrites a connector's status file.
func SetConnectorStatus(t testing.TB, cfg *config.Config, name, status string) {
	t.Helper()
	WriteFile(t, filepath.Join(cfg.Sysfs.DRMDir, name, "status"), []byte(status+"\n"))
}

// RemoveConnector deletes a connector directory.
func RemoveConnector(t testing.TB, cfg *config.Config, name string) {
	t.Helper()
	if err := os.RemoveAll(filepath.Join(cfg.Sysfs.DRMDir, name)); err != nil {
		t.Fatalf("remove %s: %v", name, err)
	}
}

// Backlight describes a fake backlight class device.
type Backlight struct {
	Name      string
	Type      string
	Max       uint32
	Current   uint32
	Connector string // optional DRM connector the device links to
}

// AddBacklight materializes b under cfg.Sysfs.BacklightDir.
func AddBacklight(t testing.TB, cfg *config.Config, b Backlight) {
	t.Helper()
	dir := filepath.Join(cfg.Sysfs.BacklightDir, b.Name)
	kind := b.Type
	if kind == "" {
		kind = "raw"
	}
	WriteFile(t, filepath.Join(dir, "type"), []byte(kind+"\n"))
	WriteFile(t, filepath.Join(dir, "max_brightness"), []byte(strconv.FormatUint(uint64(b.Max), 10)+"\n"))
	WriteFile(t, filepath.Join(dir, "actual_brightness"), []byte(strconv.FormatUint(uint64(b.Current), 10)+"\n"))
	WriteFile(t, filepath.Join(dir, "brightness"), []byte(strconv.FormatUint(uint64(b.Current), 10)+"\n"))
	if b.Connector != "" {
		if err := os.Symlink(filepath.Join("..", "..", b.Connector), filepath.Join(dir, "device")); err != nil {
			t.Fatalf("link device for %s: %v", b.Name, err)
		}
	}
}

// ReadBacklight returns the value last written to a fake backlight device.
func ReadBacklight(t testing.TB, cfg *config.Config, name string) uint32 {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Sysfs.BacklightDir, name, "brightness"))
	if err != nil {
		t.Fatalf("read backlight %s: %v", name, err)
	}
	v, err := strconv.ParseUint(string(trimNewline(data)), 10, 32)
	if err != nil {
		t.Fatalf("parse backlight %s: %v", name, err)
	}
	return uint32(v)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == ' ') {
		b = b[:len(b)-1]
	}
	return b
}

// EDID builds a valid 128-byte EDID base block for manufacturer DEL with the
// given monitor name and numeric serial.
func EDID(name string, serial uint32) []byte {
	b := make([]byte, 128)
	copy(b, []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00})
	b[8], b[9] = 0x10, 0xAC
	b[10], b[11] = 0xF3, 0xA0
	b[12], b[13], b[14], b[15] = byte(serial), byte(serial>>8), byte(serial>>16), byte(serial>>24)
	b[75] = 0xFC
	field := b[77:90]
	for i := range field {
		field[i] = ' '
	}
	if n := copy(field, name); n < len(field) {
		field[n] = 0x0A
	}
	var sum byte
	for _, v := range b[:127] {
		sum += v
	}
	b[127] = byte(0 - int(sum))
	return b
}
