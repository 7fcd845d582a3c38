package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"brightd/internal/directory"
	"brightd/internal/logging"
	"brightd/internal/monitor"
	"brightd/internal/watch"
)

// Enumerator reports the displays currently attached.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]monitor.Descriptor, error)
	// CheckChanged reports whether the topology differs from the last Enumerate.
	CheckChanged(ctx context.Context) (bool, error)
}

// Observer is told about scan lifecycle. Calls are synchronous.
type Observer interface {
	ScanningChanged(scanning bool)
	ScanCompleted(scanID string, result directory.Result)
}

// Options tune a Scheduler.
type Options struct {
	MaxMonitors    int
	Workers        int
	UpdateInterval time.Duration
	SettleDelay    time.Duration
	CallTimeout    time.Duration
	Observer       Observer
	// Locked reports whether the user session is locked. Hot-key brightness
	// changes are ignored while it returns true.
	Locked func() bool
	Logger *slog.Logger
}

// ScanOptions tune one scan.
type ScanOptions struct {
	// Settle delays enumeration so a burst of hardware changes can finish.
	Settle time.Duration
	// MinDuration keeps the scan reported as running for at least this long.
	MinDuration time.Duration
}

// Scheduler coordinates scans and updates. The zero value is not usable.
type Scheduler struct {
	dir    *directory.Directory
	enum   Enumerator
	opts   Options
	logger *slog.Logger

	scanning atomic.Int32
	updating atomic.Int32
	scans    atomic.Int64

	requests chan struct{}
	wg       sync.WaitGroup
}

// New returns a Scheduler over dir.
func New(dir *directory.Directory, enum Enumerator, opts Options) *Scheduler {
	if opts.MaxMonitors <= 0 {
		opts.MaxMonitors = 4
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = 10 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 20 * time.Second
	}
	return &Scheduler{
		dir:      dir,
		enum:     enum,
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "scheduler"),
		requests: make(chan struct{}, 1),
	}
}

// Scanning reports whether a scan is in flight.
func (s *Scheduler) Scanning() bool {
	return s.scanning.Load() > 0
}

// ScanCount returns how many scans have run to completion of reconciliation.
func (s *Scheduler) ScanCount() int64 {
	return s.scans.Load()
}

// Scan runs one scan. It returns false without doing anything when another
// scan is already in flight.
func (s *Scheduler) Scan(ctx context.Context, opts ScanOptions) (directory.Result, bool) {
	if s.scanning.Add(1) != 1 {
		return directory.Result{}, false
	}
	defer s.scanning.Store(0)

	scanID := uuid.NewString()
	ctx = logging.WithScanID(ctx, scanID)
	logger := logging.WithContext(ctx, s.logger)

	s.notifyScanning(true)
	defer s.notifyScanning(false)

	minDone := make(chan struct{})
	go func() {
		defer close(minDone)
		sleep(ctx, opts.MinDuration)
	}()
	defer func() { <-minDone }()

	if !sleep(ctx, opts.Settle) {
		return directory.Result{}, true
	}

	started := time.Now()
	descs, err := s.enum.Enumerate(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "display enumeration failed", "scan_enumerate_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "monitor list not refreshed"),
			logging.String(logging.FieldErrorHint, "check that /sys/class/drm is readable"),
		)
		return directory.Result{}, true
	}
	result := s.dir.Reconcile(descs)
	s.scans.Add(1)

	s.refreshTargets(ctx)

	logger.Info("scan complete",
		logging.Int("monitors", s.dir.Len()),
		logging.Int("added", len(result.Added)),
		logging.Int("removed", len(result.Removed)),
		logging.Duration("elapsed", time.Since(started)),
	)
	if s.opts.Observer != nil {
		s.opts.Observer.ScanCompleted(scanID, result)
	}
	return result, true
}

// refreshTargets reads brightness from the first MaxMonitors reachable
// entities and then applies the targeting fallback.
func (s *Scheduler) refreshTargets(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	entities := s.dir.Snapshot()
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	var controllable atomic.Bool
	reachable := 0
	for _, e := range entities {
		if !e.Reachable() {
			continue
		}
		if reachable >= s.opts.MaxMonitors {
			e.SetTarget(false)
			continue
		}
		reachable++
		g.Go(func() error {
			if e.UpdateBrightness(ctx).OK() {
				e.SetTarget(true)
			}
			if e.IsControllable() {
				controllable.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	fallback := !controllable.Load()
	for _, e := range entities {
		if !e.IsControllable() {
			e.SetTarget(fallback)
		}
	}
}

// Update runs one periodic pass. It is a no-op while a scan or another
// update is in flight.
func (s *Scheduler) Update(ctx context.Context) {
	if s.Scanning() {
		return
	}
	if s.updating.Add(1) != 1 {
		return
	}
	defer s.updating.Store(0)

	changed, err := s.enum.CheckChanged(ctx)
	if err != nil {
		s.logger.Debug("topology probe failed", logging.Error(err))
	}
	if changed {
		s.logger.Info("display topology changed", logging.String(logging.FieldEventType, "topology_changed"))
		s.RequestScan()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for _, e := range s.dir.Snapshot() {
		if !e.IsTarget() {
			continue
		}
		g.Go(func() error {
			e.UpdateBrightness(ctx)
			return nil
		})
		if e.Flags().ContrastChanging {
			g.Go(func() error {
				e.UpdateContrast(ctx)
				return nil
			})
		}
	}
	_ = g.Wait()
}

// RequestScan asks Run for a settled scan. Requests coalesce and are
// ignored while the directory is empty.
func (s *Scheduler) RequestScan() {
	if s.dir.Len() == 0 {
		return
	}
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// ApplyBrightness records a brightness change made outside brightd, such as
// a hot-key handled by firmware.
func (s *Scheduler) ApplyBrightness(instance string, percent int) bool {
	if s.opts.Locked != nil && s.opts.Locked() {
		return false
	}
	e, ok := s.dir.FindByInstancePrefix(instance)
	if !ok {
		e, ok = s.soleInternal()
	}
	if !ok {
		s.logger.Debug("brightness change for unknown instance", logging.String("instance", instance))
		return false
	}
	e.ApplyBrightness(percent)
	return true
}

// soleInternal returns the only built-in panel. Firmware backlights without
// a connector link belong to it.
func (s *Scheduler) soleInternal() (*monitor.Entity, bool) {
	var found *monitor.Entity
	for _, e := range s.dir.Snapshot() {
		if !e.Descriptor().Internal {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = e
	}
	return found, found != nil
}

// Run scans once, then serves ticks, change signals, and scan requests
// until ctx ends. It waits for in-flight passes before returning.
func (s *Scheduler) Run(ctx context.Context, signals <-chan watch.Signal) {
	s.spawn(func() { s.Scan(ctx, ScanOptions{}) })

	ticker := time.NewTicker(s.opts.UpdateInterval)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.spawn(func() { s.Update(ctx) })
		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			if sig.Count == 0 {
				continue
			}
			s.logger.Debug("change signal received",
				logging.String("source", string(sig.Source)),
				logging.Int("count", sig.Count),
			)
			s.spawn(func() { s.Scan(ctx, ScanOptions{Settle: s.opts.SettleDelay}) })
		case <-s.requests:
			s.spawn(func() { s.Scan(ctx, ScanOptions{Settle: s.opts.SettleDelay}) })
		}
	}
}

func (s *Scheduler) spawn(fn func()) {
	s.wg.Go(fn)
}

func (s *Scheduler) notifyScanning(scanning bool) {
	if s.opts.Observer != nil {
		s.opts.Observer.ScanningChanged(scanning)
	}
}

// sleep waits for d or ctx, returning false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
