package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trustwatch/internal/logging"
	"trustwatch/internal/metrics"
	"trustwatch/internal/notifications"
	"trustwatch/internal/snapshot"
	"trustwatch/internal/trust"
)

// State is the watcher's coarse lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateScanning State = "scanning"
	StateWatching State = "watching"
)

// ErrScanRunning is returned by RequestScan when a scan is already in flight.
var ErrScanRunning = errors.New("scan already running")

// Source is the read side of the snapshot store.
type Source interface {
	Load(ctx context.Context) (trust.Snapshot, error)
	Version(ctx context.Context) (snapshot.Version, error)
}

// Options tunes the watcher.
type Options struct {
	ScanInterval time.Duration
	PollInterval time.Duration
	// DiffScanResults notifies changes produced by a scan itself instead of
	// silently adopting them as the new baseline.
	DiffScanResults bool
	Metrics         *metrics.Metrics
}

// Watcher schedules scans and reports snapshot changes.
type Watcher struct {
	source   Source
	runner   Runner
	notifier notifications.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     Options

	mu            sync.RWMutex
	running       bool
	runCtx        context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	state         State
	scanRunning   bool
	scanCompleted bool
	current       trust.Snapshot
	previous      trust.Snapshot
	lastVersion   snapshot.Version
	// baselineGen moves whenever previous/current are replaced, so a change
	// check that read the store before a newer baseline landed can back off.
	baselineGen   uint64
	lastDiff      trust.Diff
	lastScanStart time.Time
	lastScanEnd   time.Time
	lastScanErr   error
	lastRunID     string
	lastChange    time.Time
	scansDone     int
}

// New constructs a watcher. Zero intervals fall back to 10 minutes between
// scans and 1 second between change checks.
func New(source Source, runner Runner, notifier notifications.Service, logger *slog.Logger, opts Options) *Watcher {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = 10 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Watcher{
		source:   source,
		runner:   runner,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		metrics:  opts.Metrics,
		opts:     opts,
		state:    StateIdle,
		current:  trust.NewSnapshot(),
		previous: trust.NewSnapshot(),
		lastDiff: trust.NewDiff(),
	}
}

// Start loads the previous snapshot as the baseline, launches the first scan,
// and begins the scan schedule and change poller.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.runCtx = runCtx
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	w.loadBaseline(runCtx)

	w.wg.Add(2)
	go w.scheduleLoop(runCtx)
	go w.pollLoop(runCtx)

	w.TriggerScan()
	return nil
}

// Stop cancels the loops and any in-flight scan and waits for them to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.mu.Lock()
	w.state = StateIdle
	w.mu.Unlock()
}

// TriggerScan starts a scan unless one is already running. It reports
// whether a scan was started.
func (w *Watcher) TriggerScan() bool {
	return w.RequestScan() == nil
}

// RequestScan is TriggerScan with a reason: ErrScanRunning when a scan is in
// flight, or an error when the watcher is not started.
func (w *Watcher) RequestScan() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return errors.New("watcher not running")
	}
	if w.scanRunning {
		w.mu.Unlock()
		w.logger.Info("scan already running, skipping",
			logging.String(logging.FieldEventType, "scan_skipped"),
		)
		return ErrScanRunning
	}
	w.scanRunning = true
	w.state = StateScanning
	w.lastScanStart = time.Now()
	ctx := w.runCtx
	w.wg.Add(1)
	w.mu.Unlock()

	w.metrics.SetScanRunning(true)
	go w.runScan(ctx)
	return nil
}

func (w *Watcher) loadBaseline(ctx context.Context) {
	snap, err := w.source.Load(ctx)
	if err != nil {
		logging.WarnWithContext(w.logger, "previous snapshot unreadable; starting from empty baseline", "baseline_load_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "first detected change may report every member as added"),
		)
		snap = trust.NewSnapshot()
	}
	version, verErr := w.source.Version(ctx)

	w.mu.Lock()
	w.current = snap
	w.previous = snap.Clone()
	if verErr == nil {
		w.lastVersion = version
	}
	w.mu.Unlock()

	totals := snap.Totals()
	w.logger.Info("baseline loaded",
		logging.String(logging.FieldEventType, "baseline_loaded"),
		logging.Int(string(trust.GroupPrimary), totals[trust.GroupPrimary]),
		logging.Int(string(trust.GroupSecondary), totals[trust.GroupSecondary]),
	)
}

func (w *Watcher) runScan(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("scan triggered", logging.String(logging.FieldEventType, "scan_triggered"))

	runID, err := w.runner.RunScan(ctx)
	if err != nil && ctx.Err() == nil {
		attrs := []logging.Attr{
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next scheduled scan will retry"),
		}
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			attrs = append(attrs, logging.Int("exit_code", exitErr.Code))
		}
		logging.ErrorWithContext(w.logger, "scan failed", "scan_failed", attrs...)
	}
	w.completeScan(ctx, runID, err)
}

func (w *Watcher) completeScan(ctx context.Context, runID string, scanErr error) {
	if ctx.Err() != nil {
		w.mu.Lock()
		w.scanRunning = false
		w.lastScanEnd = time.Now()
		w.mu.Unlock()
		w.metrics.SetScanRunning(false)
		return
	}

	snap, loadErr := w.source.Load(ctx)
	version, verErr := w.source.Version(ctx)

	w.mu.Lock()
	w.scanRunning = false
	w.scanCompleted = true
	w.state = StateWatching
	w.lastScanEnd = time.Now()
	w.lastScanErr = scanErr
	w.lastRunID = runID
	w.scansDone++
	w.baselineGen++
	var diff trust.Diff
	notify := false
	if loadErr == nil {
		if w.opts.DiffScanResults {
			diff = trust.Compare(w.previous, snap)
			w.lastDiff = diff
			notify = !diff.Empty()
			if notify {
				w.lastChange = time.Now()
			}
		}
		w.current = snap
		w.previous = snap.Clone()
	}
	if verErr == nil {
		w.lastVersion = version
	}
	w.mu.Unlock()
	w.metrics.SetScanRunning(false)

	if loadErr != nil {
		logging.WarnWithContext(w.logger, "snapshot reload after scan failed; keeping previous baseline", "baseline_reload_failed",
			logging.Error(loadErr),
		)
		return
	}
	w.recordTotals(snap)
	if notify {
		w.emit(ctx, diff)
	}
}

func (w *Watcher) scheduleLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.TriggerScan()
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CheckForChange(ctx)
		}
	}
}

// CheckForChange compares the stored snapshot against the baseline when its
// version moved. Checks are skipped while a scan runs and before the first
// scan completes. It reports whether a change was processed.
func (w *Watcher) CheckForChange(ctx context.Context) bool {
	w.mu.RLock()
	skip := w.scanRunning || !w.scanCompleted
	lastVersion := w.lastVersion
	gen := w.baselineGen
	w.mu.RUnlock()
	if skip {
		return false
	}

	version, err := w.source.Version(ctx)
	if err != nil {
		w.logger.Debug("snapshot version check failed", logging.Error(err))
		return false
	}
	if version == lastVersion {
		return false
	}

	snap, err := w.source.Load(ctx)
	if err != nil {
		logging.WarnWithContext(w.logger, "changed snapshot unreadable; skipping", "snapshot_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "baseline unchanged; the next modification is retried"),
		)
		w.mu.Lock()
		if !w.scanRunning && w.baselineGen == gen {
			w.lastVersion = version
		}
		w.mu.Unlock()
		return false
	}

	w.mu.Lock()
	if w.scanRunning || w.baselineGen != gen {
		w.mu.Unlock()
		w.logger.Debug("baseline replaced during change check; discarding read")
		return false
	}
	diff := trust.Compare(w.previous, snap)
	w.previous = snap.Clone()
	w.current = snap
	w.lastDiff = diff
	w.lastVersion = version
	w.baselineGen++
	if !diff.Empty() {
		w.lastChange = time.Now()
	}
	w.mu.Unlock()

	w.logger.Info("snapshot change detected",
		logging.String(logging.FieldEventType, "snapshot_changed"),
		logging.Int("events", diff.Count()),
	)
	w.recordTotals(snap)
	w.emit(ctx, diff)
	return true
}

func (w *Watcher) emit(ctx context.Context, diff trust.Diff) {
	for _, event := range diff.Events() {
		w.logger.Info("membership changed",
			logging.String(logging.FieldEventType, "membership_"+string(event.Direction)),
			logging.GroupName(string(event.Group)),
			logging.UserID(int(event.ID)),
			logging.String("label", event.Label),
		)
		w.metrics.IncDiffEvent(string(event.Group), string(event.Direction))
		if err := w.notifier.NotifyChange(ctx, event); err != nil {
			w.metrics.IncNotification(false)
			logging.WarnWithContext(w.logger, "notification delivery failed", "notification_failed",
				logging.Error(err),
				logging.UserID(int(event.ID)),
				logging.String(logging.FieldErrorHint, "check the Slack token, channel, and bot membership"),
				logging.String(logging.FieldImpact, "this change will not be re-sent"),
			)
			continue
		}
		w.metrics.IncNotification(true)
	}
}

func (w *Watcher) recordTotals(snap trust.Snapshot) {
	totals := snap.Totals()
	for _, group := range trust.Groups {
		w.metrics.SetGroupSize(string(group), totals[group])
	}
}
