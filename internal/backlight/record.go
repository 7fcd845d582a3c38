package backlight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Subsystem is the sysfs class name logind expects.
const Subsystem = "backlight"

var ErrNotFound = errors.New("backlight: record not found")

var connectorPattern = regexp.MustCompile(`^card\d+-`)

// Record is one backlight class device.
type Record struct {
	Name      string
	Type      string
	Connector string
	Max       uint32
	Current   uint32
}

// Query enumerates every backlight device under root. A missing root yields no records.
func Query(root string) ([]Record, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		rec, err := Read(root, entry.Name())
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Read loads a single backlight device by instance name.
func Read(root, name string) (Record, error) {
	dir := filepath.Join(root, name)
	maxValue, err := readUint(filepath.Join(dir, "max_brightness"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
		}
		return Record{}, err
	}
	if maxValue == 0 {
		return Record{}, fmt.Errorf("%s: max_brightness is zero", name)
	}
	current, err := readUint(filepath.Join(dir, "actual_brightness"))
	if err != nil {
		current, err = readUint(filepath.Join(dir, "brightness"))
		if err != nil {
			return Record{}, err
		}
	}
	rec := Record{
		Name:    name,
		Type:    readString(filepath.Join(dir, "type")),
		Max:     maxValue,
		Current: min(current, maxValue),
	}
	if target, err := os.Readlink(filepath.Join(dir, "device")); err == nil {
		if base := filepath.Base(target); connectorPattern.MatchString(base) {
			rec.Connector = base
		}
	}
	return rec, nil
}

// Match selects the record controlling a display. An exact connector link wins;
// internal panels otherwise take the best unlinked record.
func Match(records []Record, connector string, internal bool) (Record, bool) {
	for _, rec := range records {
		if rec.Connector != "" && strings.EqualFold(rec.Connector, connector) {
			return rec, true
		}
	}
	if !internal {
		return Record{}, false
	}
	best := -1
	for i, rec := range records {
		if rec.Connector != "" {
			continue
		}
		if best < 0 || typeRank(rec.Type) > typeRank(records[best].Type) {
			best = i
		}
	}
	if best < 0 {
		return Record{}, false
	}
	return records[best], true
}

func typeRank(kind string) int {
	switch kind {
	case "firmware":
		return 3
	case "platform":
		return 2
	case "raw":
		return 1
	default:
		return 0
	}
}

func readUint(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return uint32(v), nil
}

func readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
