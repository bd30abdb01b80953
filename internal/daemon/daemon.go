package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"trustwatch/internal/config"
	"trustwatch/internal/logging"
	"trustwatch/internal/metrics"
	"trustwatch/internal/preflight"
	"trustwatch/internal/snapshot"
	"trustwatch/internal/watch"
)

// Options carries optional collaborators for the daemon.
type Options struct {
	// Store is checked during preflight and described in status output.
	Store   snapshot.Store
	Metrics *metrics.Metrics
	// SkipPreflight disables the startup checks that reach the network.
	SkipPreflight bool
}

// Daemon coordinates the watch loop and API server and enforces
// single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	watcher *watch.Watcher
	store   snapshot.Store
	metrics *metrics.Metrics
	opts    Options

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.RWMutex
	startedAt time.Time
	checks    []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    time.Time          `json:"startedAt,omitzero"`
	LockFilePath string             `json:"lockFilePath"`
	Snapshot     string             `json:"snapshot,omitempty"`
	Watcher      watch.Status       `json:"watcher"`
	Preflight    []preflight.Result `json:"preflight,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, watcher *watch.Watcher, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || watcher == nil {
		return nil, errors.New("daemon requires config and watcher")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		watcher:  watcher,
		store:    opts.Store,
		metrics:  opts.Metrics,
		opts:     opts,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg.Server.Bind, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, binds the API
// server, and launches the watch loop. A bind failure is fatal.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another trustwatch daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.runPreflight(d.ctx)

	if err := d.api.start(d.ctx); err != nil {
		d.abortStart()
		return err
	}
	if err := d.watcher.Start(d.ctx); err != nil {
		d.api.stop()
		d.abortStart()
		return fmt.Errorf("start watcher: %w", err)
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("trustwatch daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops the watch loop and API server and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.watcher.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("trustwatch daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the snapshot store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddress returns the bound API address, or the configured bind before
// Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	checks := append([]preflight.Result(nil), d.checks...)
	startedAt := d.startedAt
	d.mu.RUnlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    startedAt,
		LockFilePath: d.lockPath,
		Watcher:      d.watcher.Status(),
		Preflight:    checks,
	}
	if d.store != nil {
		status.Snapshot = d.store.Describe()
	}
	return status
}

func (d *Daemon) runPreflight(ctx context.Context) {
	if d.opts.SkipPreflight {
		return
	}
	results := preflight.RunAll(ctx, d.cfg)
	if d.store != nil {
		results = append(results, preflight.CheckStore(ctx, d.store))
	}
	for _, r := range results {
		if r.Passed {
			d.logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "the daemon continues; affected operations may fail"),
		)
	}
	d.mu.Lock()
	d.checks = results
	d.mu.Unlock()
}
