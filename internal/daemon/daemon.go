package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"orchestra/internal/config"
	"orchestra/internal/logging"
	"orchestra/internal/workflow"
)

// Runner executes one lifecycle pass.
type Runner interface {
	RunPass(ctx context.Context) (workflow.Summary, error)
}

// Daemon coordinates repeated passes and enforces single-instance execution.
type Daemon struct {
	runner       Runner
	logger       *slog.Logger
	lockPath     string
	lock         *flock.Flock
	queuedDir    string
	pollInterval time.Duration
	watch        bool
	debounce     time.Duration

	trigger chan struct{}
	changed chan struct{}
	busy    atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc
	wg      *conc.WaitGroup

	mu     sync.Mutex
	status Status
	// seen and passEnd describe the last pass; see hasNewWork.
	seen    map[string]struct{}
	passEnd time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Passes       int
	LastPass     time.Time
	LastSummary  workflow.Summary
	LastError    string
	LockFilePath string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithDebounce overrides the delay between a directory event and the pass
// it triggers.
func WithDebounce(d time.Duration) Option {
	return func(dm *Daemon) {
		if d > 0 {
			dm.debounce = d
		}
	}
}

// WithPollInterval overrides the configured poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(dm *Daemon) {
		if d > 0 {
			dm.pollInterval = d
		}
	}
}

// New constructs a daemon for cfg.
func New(cfg *config.Config, runner Runner, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || runner == nil {
		return nil, errors.New("daemon requires config and runner")
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		runner:       runner,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		lockPath:     lockPath,
		queuedDir:    cfg.Paths.QueuedDir,
		pollInterval: cfg.PollInterval(),
		watch:        cfg.Workflow.Watch,
		debounce:     250 * time.Millisecond,
		trigger:      make(chan struct{}, 1),
		changed:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the lock and launches the pass loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	lock, err := AcquireLock(d.lockPath)
	if err != nil {
		return err
	}
	d.lock = lock

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg = conc.NewWaitGroup()
	d.running.Store(true)
	d.setRunning(true)

	if d.watch {
		watcher, err := newQueueWatcher(d.queuedDir, d.debounce, d.notifyChanged, d.logger)
		if err != nil {
			logging.WarnWithContext(d.logger, "directory watch unavailable; polling only", "watch_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new tasks wait for the next poll tick"),
			)
		} else {
			d.wg.Go(func() { watcher.run(runCtx) })
		}
	}
	d.wg.Go(func() { d.tick(runCtx) })
	d.wg.Go(func() { d.loop(runCtx) })

	d.notify()
	d.logger.Info("orchestra daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("poll_interval", d.pollInterval),
		logging.Bool("watch", d.watch),
	)
	return nil
}

// Stop cancels the loop, waits for the current pass, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.setRunning(false)
	d.logger.Info("orchestra daemon stopped")
}

// Run starts the daemon, blocks until ctx is done, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := d.status
	status.LockFilePath = d.lockPath
	return status
}

// notify requests a pass. Requests made while a pass runs are dropped: the
// pass itself rewrites files in the queued directory.
func (d *Daemon) notify() {
	if d.busy.Load() {
		return
	}
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// notifyChanged records a directory event. The loop decides whether it
// warrants a pass.
func (d *Daemon) notifyChanged() {
	select {
	case d.changed <- struct{}{}:
	default:
	}
}

func (d *Daemon) tick(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.notify()
		}
	}
}

func (d *Daemon) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.trigger:
		case <-d.changed:
			if !d.hasNewWork() {
				continue
			}
		}
		d.busy.Store(true)
		summary, err := d.safePass(ctx)
		d.busy.Store(false)
		select {
		case <-d.trigger:
		default:
		}
		d.recordPass(summary, err)
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(d.logger, "pass failed", "pass_failed",
				append(logging.ErrorAttrs(err),
					logging.String(logging.FieldErrorHint, "check the queued directory and the log above"))...,
			)
		}
	}
}

// safePass runs one pass and converts a panic into an error so the loop
// survives it.
func (d *Daemon) safePass(ctx context.Context) (workflow.Summary, error) {
	var (
		catcher panics.Catcher
		summary workflow.Summary
		err     error
	)
	catcher.Try(func() {
		summary, err = d.runner.RunPass(ctx)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		return summary, recovered.AsError()
	}
	return summary, err
}

func (d *Daemon) recordPass(summary workflow.Summary, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Passes++
	d.status.LastPass = time.Now()
	d.status.LastSummary = summary
	d.status.LastError = ""
	if err != nil {
		d.status.LastError = err.Error()
	}
	d.passEnd = d.status.LastPass
	d.seen = make(map[string]struct{}, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		d.seen[o.TaskID] = struct{}{}
	}
}

func (d *Daemon) setRunning(running bool) {
	d.mu.Lock()
	d.status.Running = running
	d.mu.Unlock()
}
