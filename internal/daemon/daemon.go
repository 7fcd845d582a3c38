package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/multierr"

	"brightd/internal/backlight"
	"brightd/internal/config"
	"brightd/internal/ddc"
	"brightd/internal/directory"
	"brightd/internal/journal"
	"brightd/internal/logging"
	"brightd/internal/monitor"
	"brightd/internal/native"
	"brightd/internal/scheduler"
	"brightd/internal/session"
	"brightd/internal/topology"
	"brightd/internal/watch"
)

// ErrUnknownMonitor is returned for ids the directory does not hold.
var ErrUnknownMonitor = errors.New("daemon: unknown monitor")

// Daemon owns every long-lived component.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	topo      *topology.Topology
	dir       *directory.Directory
	sched     *scheduler.Scheduler
	coalescer *watch.Coalescer
	udev      *watch.Udev
	logind    *watch.Logind
	journal   *journal.Store
	logindSet *backlight.LogindSetter

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	scanning atomic.Bool
	lastScan atomic.Pointer[ScanSummary]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ScanSummary describes the most recent completed scan.
type ScanSummary struct {
	ScanID   string
	Finished time.Time
	Result   directory.Result
}

// New builds a daemon from configuration. Nothing touches hardware until
// Start or Refresh.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.JournalPath())
		if err != nil {
			logging.WarnWithContext(d.logger, "failure journal unavailable", "journal_open_failed",
				logging.Error(err),
				logging.String("journal_path", cfg.JournalPath()),
				logging.String(logging.FieldImpact, "access failures are logged but not journaled"),
				logging.String(logging.FieldErrorHint, "delete the journal file if its schema is outdated"),
			)
		} else {
			d.journal = store
		}
	}

	var setter backlight.Setter = backlight.SysfsSetter{Root: cfg.Sysfs.BacklightDir}
	if cfg.Backlight.Enabled && cfg.Backlight.UseLogind {
		ls, err := backlight.NewLogindSetter()
		if err != nil {
			d.logger.Info("logind brightness path unavailable; writing sysfs directly", logging.Error(err))
		} else {
			d.logindSet = ls
			setter = backlight.FallbackSetter{Primary: ls, Secondary: setter, Logger: d.logger}
		}
	}

	d.topo = topology.New(topology.Options{
		DRMDir:        cfg.Sysfs.DRMDir,
		DevDir:        cfg.Sysfs.DevDir,
		BacklightRoot: cfg.Sysfs.BacklightDir,
		DDC:           cfg.DDC.Enabled,
		Backlight:     cfg.Backlight.Enabled,
		DDCOptions: ddc.Options{
			WriteDelay:  time.Duration(cfg.DDC.WriteDelayMS) * time.Millisecond,
			ReplyDelay:  time.Duration(cfg.DDC.ReplyDelayMS) * time.Millisecond,
			Retries:     cfg.DDC.Retries,
			LockTimeout: time.Duration(cfg.DDC.LockTimeoutMS) * time.Millisecond,
		},
		Logger: logger,
	})

	adapter := native.Options{
		DDC:           cfg.DDC.Enabled,
		Backlight:     cfg.Backlight.Enabled,
		BacklightRoot: cfg.Sysfs.BacklightDir,
		Setter:        setter,
		Logger:        logger,
	}
	d.dir = directory.New(func(desc monitor.Descriptor) *monitor.Entity {
		e := monitor.NewEntity(desc, monitor.Deps{
			Opener:  d.topo,
			Events:  d,
			Adapter: adapter,
			Logger:  logger,
		})
		d.applyOverride(e)
		return e
	}, logger)

	d.coalescer = watch.NewCoalescer(cfg.CoalesceWindow())
	if cfg.Watch.Logind {
		d.logind = watch.NewLogind(d.coalescer.Notify, logger)
	}
	d.sched = scheduler.New(d.dir, d.topo, scheduler.Options{
		MaxMonitors:    cfg.Scheduler.MaxMonitors,
		Workers:        cfg.Scheduler.Workers,
		UpdateInterval: cfg.UpdateInterval(),
		SettleDelay:    cfg.SettleDelay(),
		CallTimeout:    cfg.CallTimeout(),
		Observer:       d,
		Locked:         d.logind.Locked,
		Logger:         logger,
	})
	if cfg.Watch.Udev {
		d.udev = watch.NewUdev(watch.UdevOptions{
			BacklightRoot: cfg.Sysfs.BacklightDir,
			Notify:        d.coalescer.Notify,
			OnBrightness: func(instance string, percent int) {
				d.sched.ApplyBrightness(instance, percent)
			},
			Logger: logger,
		})
	}
	return d, nil
}

// Start acquires the instance lock and launches the scheduler and watchers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another brightd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.prune(runCtx)

	if err := d.udev.Start(runCtx); err != nil {
		d.logger.Debug("udev start failed", logging.Error(err))
	}
	if err := d.logind.Start(runCtx); err != nil {
		d.logger.Debug("logind start failed", logging.Error(err))
	}

	d.wg.Go(func() { d.coalescer.Run(runCtx) })
	d.wg.Go(func() { d.sched.Run(runCtx, d.coalescer.Signals()) })

	d.running.Store(true)
	d.logger.Info("brightd started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Bool("udev", d.udev.Running()),
	)
	return nil
}

// Stop halts background work and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.udev.Stop()
	d.logind.Stop()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release instance lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report a running instance"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no brightd is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("brightd stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases every resource.
func (d *Daemon) Close() error {
	d.Stop()
	d.dir.Close()
	var err error
	if d.logindSet != nil {
		err = multierr.Append(err, d.logindSet.Close())
	}
	if d.journal != nil {
		err = multierr.Append(err, d.journal.Close())
	}
	return err
}

// Running reports whether Start has succeeded and Stop has not run.
func (d *Daemon) Running() bool { return d.running.Load() }

// Refresh runs one scan synchronously. It is how one-shot commands populate
// the directory without starting the daemon.
func (d *Daemon) Refresh(ctx context.Context) (directory.Result, error) {
	result, ran := d.sched.Scan(ctx, scheduler.ScanOptions{})
	if !ran {
		return result, errors.New("scan already in progress")
	}
	return result, ctx.Err()
}

// SetBrightness writes a 0..100 brightness to one monitor.
func (d *Daemon) SetBrightness(ctx context.Context, id string, percent int) (native.AccessResult, error) {
	e, ok := d.dir.Find(id)
	if !ok {
		return native.AccessResult{}, fmt.Errorf("%w: %s", ErrUnknownMonitor, id)
	}
	return e.SetBrightness(ctx, percent), nil
}

// SetBrightnessAt writes brightness to the display under p and returns its id.
func (d *Daemon) SetBrightnessAt(ctx context.Context, p session.Point, percent int) (string, native.AccessResult, error) {
	id, result := session.Resolve(d.topo, p, d.logger)
	if !result.OK() {
		return "", result, nil
	}
	result, err := d.SetBrightness(ctx, id, percent)
	return id, result, err
}

// SetContrast writes a 0..100 contrast to one monitor. The monitor starts
// tracking contrast, so its current value is read before the write.
func (d *Daemon) SetContrast(ctx context.Context, id string, percent int) (native.AccessResult, error) {
	e, ok := d.dir.Find(id)
	if !ok {
		return native.AccessResult{}, fmt.Errorf("%w: %s", ErrUnknownMonitor, id)
	}
	if result := e.SetContrastChanging(ctx, true); !result.OK() {
		return result, nil
	}
	return e.SetContrast(ctx, percent), nil
}

// Selected returns the id of the selected monitor, if one is present.
func (d *Daemon) Selected() (string, bool) {
	for _, e := range d.dir.Snapshot() {
		if e.IsSelected() {
			return e.ID(), true
		}
	}
	return "", false
}

func (d *Daemon) applyOverride(e *monitor.Entity) {
	m, ok := d.cfg.MonitorOverride(e.ID())
	if !ok {
		return
	}
	e.SetRange(m.RangeLow, m.RangeHigh)
	e.UpdateFlags(func(f *monitor.Flags) {
		f.Selected = m.Selected
		f.ContrastChanging = m.TrackContrast
	})
}

// Failures returns recent journaled access failures.
func (d *Daemon) Failures(ctx context.Context, n int) ([]journal.Failure, error) {
	if d.journal == nil {
		return nil, errors.New("failure journal disabled")
	}
	return d.journal.Recent(ctx, n)
}

// LastScan returns the most recent completed scan, if any.
func (d *Daemon) LastScan() (ScanSummary, bool) {
	s := d.lastScan.Load()
	if s == nil {
		return ScanSummary{}, false
	}
	return *s, true
}

// Scanning reports whether a scan is in flight.
func (d *Daemon) Scanning() bool { return d.scanning.Load() }

func (d *Daemon) prune(ctx context.Context) {
	days := d.cfg.Journal.RetentionDays
	if removed := logging.PruneLogFiles(d.logger, d.cfg.Paths.LogDir, "", days); removed > 0 {
		d.logger.Info("old log files pruned", logging.Int("removed", removed))
	}
	if d.journal == nil || days <= 0 {
		return
	}
	removed, err := d.journal.Prune(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		d.logger.Debug("journal prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		d.logger.Info("old access failures pruned", logging.Int("removed", int(removed)))
	}
}
