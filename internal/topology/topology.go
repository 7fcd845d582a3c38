// Package topology enumerates connected displays from DRM sysfs and opens
// their control channels.
package topology

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"brightd/internal/backlight"
	"brightd/internal/ddc"
	"brightd/internal/logging"
	"brightd/internal/monitor"
	"brightd/internal/native"
	"brightd/internal/session"
)

var (
	connectorName = regexp.MustCompile(`^card(\d+)-(.+)$`)
	i2cName       = regexp.MustCompile(`^i2c-\d+$`)
	modeLine      = regexp.MustCompile(`^(\d+)x(\d+)`)
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

// Options locate the kernel interfaces and select control paths.
type Options struct {
	DRMDir        string
	DevDir        string
	BacklightRoot string
	DDC           bool
	Backlight     bool
	DDCOptions    ddc.Options
	Logger        *slog.Logger
}

// Topology enumerates displays and implements session.Opener over the last
// enumeration.
type Topology struct {
	opts   Options
	logger *slog.Logger

	mu          sync.RWMutex
	last        []monitor.Descriptor
	fingerprint string
}

// New returns a Topology with nothing enumerated yet.
func New(opts Options) *Topology {
	if opts.DRMDir == "" {
		opts.DRMDir = "/sys/class/drm"
	}
	if opts.DevDir == "" {
		opts.DevDir = "/dev"
	}
	if opts.BacklightRoot == "" {
		opts.BacklightRoot = "/sys/class/backlight"
	}
	return &Topology{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "topology")}
}

type connector struct {
	name   string
	card   int
	kind   string
	dir    string
	status string
}

func (t *Topology) connectors() ([]connector, error) {
	entries, err := os.ReadDir(t.opts.DRMDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", t.opts.DRMDir, err)
	}
	var out []connector
	for _, entry := range entries {
		m := connectorName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		card, _ := strconv.Atoi(m[1])
		dir := filepath.Join(t.opts.DRMDir, entry.Name())
		out = append(out, connector{
			name:   entry.Name(),
			card:   card,
			kind:   m[2],
			dir:    dir,
			status: readTrimmed(filepath.Join(dir, "status")),
		})
	}
	slices.SortFunc(out, func(a, b connector) int {
		if a.card != b.card {
			return a.card - b.card
		}
		return strings.Compare(a.name, b.name)
	})
	return out, nil
}

func fingerprintOf(conns []connector) string {
	var b strings.Builder
	for _, c := range conns {
		b.WriteString(c.name)
		b.WriteByte('=')
		b.WriteString(c.status)
		b.WriteByte(';')
	}
	return b.String()
}

// Enumerate lists connected displays, laid out left to right.
func (t *Topology) Enumerate(ctx context.Context) ([]monitor.Descriptor, error) {
	conns, err := t.connectors()
	if err != nil {
		return nil, err
	}
	var records []backlight.Record
	if t.opts.Backlight {
		if records, err = backlight.Query(t.opts.BacklightRoot); err != nil {
			t.logger.Debug("backlight query failed", logging.Error(err))
		}
	}

	var descs []monitor.Descriptor
	seen := map[string]bool{}
	ordinal := map[int]int{}
	x := 0
	for _, c := range conns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.status != "connected" {
			continue
		}
		desc := t.describe(ctx, c, records)
		desc.MonitorIndex = ordinal[c.card]
		ordinal[c.card]++
		key := strings.ToLower(desc.DeviceInstanceID)
		if seen[key] {
			desc.DeviceInstanceID += "/" + c.name
			key = strings.ToLower(desc.DeviceInstanceID)
		}
		seen[key] = true
		desc.Rect.X = x
		x += desc.Rect.Width
		descs = append(descs, desc)
	}

	t.mu.Lock()
	t.last = descs
	t.fingerprint = fingerprintOf(conns)
	t.mu.Unlock()

	t.logger.Debug("displays enumerated", logging.Int("count", len(descs)))
	return descs, nil
}

func (t *Topology) describe(ctx context.Context, c connector, records []backlight.Record) monitor.Descriptor {
	desc := monitor.Descriptor{
		DeviceInstanceID: c.name,
		DisplayIndex:     c.card,
		Description:      c.name,
		Connector:        c.name,
		Internal:         isInternal(c.kind),
		Rect:             monitor.Rect{Width: defaultWidth, Height: defaultHeight},
	}
	if w, h, ok := firstMode(filepath.Join(c.dir, "modes")); ok {
		desc.Rect.Width, desc.Rect.Height = w, h
	}
	if t.opts.DDC {
		desc.Bus = t.busFor(c.dir)
	}

	raw, _ := os.ReadFile(filepath.Join(c.dir, "edid"))
	if len(raw) == 0 && desc.Bus != "" {
		raw = t.edidFromBus(ctx, desc.Bus)
	}
	if len(raw) > 0 {
		if edid, err := ddc.ParseEDID(raw); err == nil {
			desc.DeviceInstanceID = edid.ID()
			if edid.Name != "" {
				desc.Description = edid.Name
			}
		} else {
			t.logger.Debug("edid unreadable; using connector name", logging.String("connector", c.name), logging.Error(err))
		}
	}

	_, hasBacklight := backlight.Match(records, c.name, desc.Internal)
	desc.Reachable = desc.Bus != "" || (t.opts.Backlight && hasBacklight)
	return desc
}

func (t *Topology) edidFromBus(ctx context.Context, path string) []byte {
	bus, err := ddc.Open(ctx, path, t.opts.DDCOptions)
	if err != nil {
		return nil
	}
	defer bus.Close()
	raw, err := bus.ReadEDID(ctx)
	if err != nil {
		return nil
	}
	return raw
}

// busFor returns the i2c-dev node of a connector's DDC channel, if present.
func (t *Topology) busFor(dir string) string {
	var name string
	if target, err := os.Readlink(filepath.Join(dir, "ddc")); err == nil {
		name = filepath.Base(target)
	} else if entries, err := os.ReadDir(dir); err == nil {
		for _, entry := range entries {
			if i2cName.MatchString(entry.Name()) {
				name = entry.Name()
				break
			}
		}
	}
	if !i2cName.MatchString(name) {
		return ""
	}
	node := filepath.Join(t.opts.DevDir, name)
	if _, err := os.Stat(node); err != nil {
		return ""
	}
	return node
}

// CheckChanged reports whether connectors or their status differ from the
// last enumeration.
func (t *Topology) CheckChanged(context.Context) (bool, error) {
	conns, err := t.connectors()
	if err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fingerprintOf(conns) != t.fingerprint, nil
}

// Last returns the most recent enumeration.
func (t *Topology) Last() []monitor.Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.last)
}

// DisplayAt returns the display containing p, or the nearest one.
func (t *Topology) DisplayAt(p session.Point) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	best, bestDist := "", math.MaxFloat64
	for _, d := range t.last {
		if d.Rect.Contains(p.X, p.Y) {
			return d.DeviceInstanceID, true
		}
		if dist := distance(d.Rect, p); dist < bestDist {
			best, bestDist = d.DeviceInstanceID, dist
		}
	}
	return best, best != ""
}

// Open returns the sub-devices of a display. The DDC bus is opened when the
// display has one; otherwise the sub-device relies on the backlight path.
func (t *Topology) Open(ctx context.Context, id string) ([]native.SubDevice, error) {
	t.mu.RLock()
	var desc monitor.Descriptor
	found := false
	for _, d := range t.last {
		if monitor.SameID(d.DeviceInstanceID, id) {
			desc, found = d, true
			break
		}
	}
	t.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: %s", session.ErrNoDisplay, id)
	}

	sub := native.SubDevice{Instance: desc.Connector, Internal: desc.Internal}
	if t.opts.DDC && desc.Bus != "" {
		bus, err := ddc.Open(ctx, desc.Bus, t.opts.DDCOptions)
		switch {
		case err == nil:
			sub.Bus = bus
		case ddc.IsVanished(err), errors.Is(err, ddc.ErrBusy):
			return nil, err
		default:
			t.logger.Debug("ddc bus open failed; trying backlight",
				logging.DeviceID(id),
				logging.String("bus", desc.Bus),
				logging.Error(err),
			)
		}
	}
	if sub.Bus == nil && !t.opts.Backlight {
		return nil, nil
	}
	return []native.SubDevice{sub}, nil
}

func isInternal(kind string) bool {
	for _, prefix := range []string{"eDP", "LVDS", "DSI"} {
		if strings.HasPrefix(kind, prefix) {
			return true
		}
	}
	return false
}

func firstMode(path string) (int, int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, false
	}
	m := modeLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
	if m == nil {
		return 0, 0, false
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	return w, h, w > 0 && h > 0
}

func distance(r monitor.Rect, p session.Point) float64 {
	dx := max(r.X-p.X, 0, p.X-(r.X+r.Width-1))
	dy := max(r.Y-p.Y, 0, p.Y-(r.Y+r.Height-1))
	return math.Hypot(float64(dx), float64(dy))
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
