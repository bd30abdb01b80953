package watch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustwatch/internal/scan"
	"trustwatch/internal/snapshot"
	"trustwatch/internal/trust"
	"trustwatch/internal/watch"
)

// memStore is an in-memory snapshot source with a version counter.
type memStore struct {
	mu      sync.Mutex
	snap    trust.Snapshot
	version snapshot.Version
	loadErr error
}

func (m *memStore) Load(context.Context) (trust.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return trust.NewSnapshot(), m.loadErr
	}
	return m.snap.Clone(), nil
}

func (m *memStore) Version(context.Context) (snapshot.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, nil
}

func (m *memStore) Save(_ context.Context, snap trust.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	m.loadErr = nil
	m.version++
	return nil
}

func (m *memStore) corrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = snapshot.ErrMalformed
	m.version++
}

// gatedRunner writes next into the store when released.
type gatedRunner struct {
	store   *memStore
	next    func() trust.Snapshot
	release chan struct{}
	calls   atomic.Int32
	err     error
}

func (r *gatedRunner) RunScan(ctx context.Context) (string, error) {
	r.calls.Add(1)
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.err != nil {
		return "", r.err
	}
	if r.next != nil {
		if err := r.store.Save(ctx, r.next()); err != nil {
			return "", err
		}
	}
	return "run-test", nil
}

// stallingSource blocks the first Load after arm until released, returning
// the document as it was when Load began.
type stallingSource struct {
	*memStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *stallingSource) arm() {
	s.entered = make(chan struct{})
	s.release = make(chan struct{})
	s.armed.Store(true)
}

func (s *stallingSource) Load(ctx context.Context) (trust.Snapshot, error) {
	if !s.armed.CompareAndSwap(true, false) {
		return s.memStore.Load(ctx)
	}
	snap, err := s.memStore.Load(ctx)
	close(s.entered)
	<-s.release
	return snap, err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []trust.Event
	err    error
}

func (n *recordingNotifier) NotifyChange(_ context.Context, event trust.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) snapshot() []trust.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]trust.Event(nil), n.events...)
}

func snapOf(primary, secondary map[trust.ID]string) trust.Snapshot {
	s := trust.NewSnapshot()
	for id, label := range primary {
		s.Set(trust.GroupPrimary, id, label)
	}
	for id, label := range secondary {
		s.Set(trust.GroupSecondary, id, label)
	}
	return s
}

func startWatcher(t *testing.T, store *memStore, runner watch.Runner, notifier *recordingNotifier, diffScan bool) *watch.Watcher {
	t.Helper()
	w := watch.New(store, runner, notifier, nil, watch.Options{
		ScanInterval:    time.Hour,
		PollInterval:    5 * time.Millisecond,
		DiffScanResults: diffScan,
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func waitForScan(t *testing.T, w *watch.Watcher, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := w.Status()
		return st.ScansCompleted >= n && !st.ScanRunning
	}, 2*time.Second, 2*time.Millisecond)
}

func TestScanResultsBecomeBaselineSilently(t *testing.T) {
	store := &memStore{snap: snapOf(map[trust.ID]string{1: "a"}, nil), version: 1}
	runner := &gatedRunner{store: store, next: func() trust.Snapshot {
		return snapOf(map[trust.ID]string{1: "a", 2: "b"}, map[trust.ID]string{3: "c"})
	}}
	notifier := &recordingNotifier{}
	w := startWatcher(t, store, runner, notifier, false)

	waitForScan(t, w, 1)
	time.Sleep(30 * time.Millisecond)

	st := w.Status()
	assert.Equal(t, watch.StateWatching, st.State)
	assert.Equal(t, "run-test", st.LastRunID)
	assert.Equal(t, map[trust.Group]int{trust.GroupPrimary: 2, trust.GroupSecondary: 1}, st.Totals)
	assert.Empty(t, notifier.snapshot(), "scan output must not be reported as changes")
}

func TestTriggerWhileRunningIsNoop(t *testing.T) {
	store := &memStore{snap: trust.NewSnapshot()}
	runner := &gatedRunner{store: store, release: make(chan struct{})}
	w := startWatcher(t, store, runner, &recordingNotifier{}, false)

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, w.Status().ScanRunning)
	assert.Equal(t, watch.StateScanning, w.Status().State)

	assert.False(t, w.TriggerScan())
	assert.ErrorIs(t, w.RequestScan(), watch.ErrScanRunning)
	assert.True(t, w.Status().ScanRunning)

	close(runner.release)
	waitForScan(t, w, 1)
	assert.Equal(t, int32(1), runner.calls.Load(), "no second run may start")

	assert.True(t, w.TriggerScan(), "a new scan may start once the first completes")
	waitForScan(t, w, 2)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestExternalChangeEmitsOrderedEvents(t *testing.T) {
	store := &memStore{}
	runner := &gatedRunner{store: store, next: func() trust.Snapshot {
		return snapOf(map[trust.ID]string{1: "a", 2: "b"}, map[trust.ID]string{5: "e"})
	}}
	notifier := &recordingNotifier{}
	w := startWatcher(t, store, runner, notifier, false)
	waitForScan(t, w, 1)

	require.NoError(t, store.Save(context.Background(),
		snapOf(map[trust.ID]string{2: "b", 3: "c"}, map[trust.ID]string{4: "d", 5: "e"})))

	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 3 }, 2*time.Second, 2*time.Millisecond)
	want := []trust.Event{
		{Direction: trust.DirectionAdded, Group: trust.GroupPrimary, ID: 3, Label: "c"},
		{Direction: trust.DirectionRemoved, Group: trust.GroupPrimary, ID: 1, Label: "a"},
		{Direction: trust.DirectionAdded, Group: trust.GroupSecondary, ID: 4, Label: "d"},
	}
	assert.Equal(t, want, notifier.snapshot())

	st := w.Status()
	assert.Equal(t, map[trust.ID]string{3: "c"}, st.LastDiff.Added[trust.GroupPrimary])
	assert.Equal(t, map[trust.ID]string{1: "a"}, st.LastDiff.Removed[trust.GroupPrimary])
	assert.False(t, st.LastChange.IsZero())

	// Baseline advanced: rewriting the same content yields no further events.
	require.NoError(t, store.Save(context.Background(),
		snapOf(map[trust.ID]string{2: "renamed", 3: "c"}, map[trust.ID]string{4: "d", 5: "e"})))
	require.Eventually(t, func() bool {
		return w.Status().LastDiff.Empty()
	}, 2*time.Second, 2*time.Millisecond)
	assert.Len(t, notifier.snapshot(), 3)
}

func TestMalformedSnapshotIsSkipped(t *testing.T) {
	store := &memStore{}
	runner := &gatedRunner{store: store, next: func() trust.Snapshot {
		return snapOf(map[trust.ID]string{1: "a"}, nil)
	}}
	notifier := &recordingNotifier{}
	w := startWatcher(t, store, runner, notifier, false)
	waitForScan(t, w, 1)

	store.corrupt()
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, notifier.snapshot())
	assert.Equal(t, 1, w.Status().Totals[trust.GroupPrimary], "baseline must be unchanged")

	require.NoError(t, store.Save(context.Background(), snapOf(map[trust.ID]string{2: "b"}, nil)))
	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 2 }, 2*time.Second, 2*time.Millisecond)
	events := notifier.snapshot()
	assert.Equal(t, trust.Event{Direction: trust.DirectionAdded, Group: trust.GroupPrimary, ID: 2, Label: "b"}, events[0])
	assert.Equal(t, trust.Event{Direction: trust.DirectionRemoved, Group: trust.GroupPrimary, ID: 1, Label: "a"}, events[1])
}

func TestStaleChangeReadDiscardedAfterScan(t *testing.T) {
	store := &memStore{}
	source := &stallingSource{memStore: store}
	var scans atomic.Int32
	runner := &gatedRunner{store: store, next: func() trust.Snapshot {
		if scans.Add(1) == 1 {
			return snapOf(map[trust.ID]string{1: "a"}, nil)
		}
		return snapOf(map[trust.ID]string{1: "a", 2: "b", 4: "d"}, nil)
	}}
	notifier := &recordingNotifier{}
	w := watch.New(source, runner, notifier, nil, watch.Options{
		ScanInterval: time.Hour,
		PollInterval: time.Hour,
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	waitForScan(t, w, 1)

	require.NoError(t, store.Save(context.Background(), snapOf(map[trust.ID]string{1: "a", 2: "b"}, nil)))
	source.arm()
	checked := make(chan bool)
	go func() { checked <- w.CheckForChange(context.Background()) }()
	<-source.entered

	require.True(t, w.TriggerScan())
	waitForScan(t, w, 2)
	close(source.release)

	assert.False(t, <-checked, "read taken before the scan must be discarded")
	assert.False(t, w.CheckForChange(context.Background()), "scan version must remain the last seen version")
	assert.Empty(t, notifier.snapshot())
	assert.Equal(t, 3, w.Status().Totals[trust.GroupPrimary])
}

func TestChangesIgnoredBeforeFirstScanCompletes(t *testing.T) {
	store := &memStore{snap: snapOf(map[trust.ID]string{1: "a"}, nil), version: 1}
	runner := &gatedRunner{store: store, release: make(chan struct{}), next: func() trust.Snapshot {
		return snapOf(map[trust.ID]string{9: "z"}, nil)
	}}
	notifier := &recordingNotifier{}
	w := startWatcher(t, store, runner, notifier, false)

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, store.Save(context.Background(), snapOf(map[trust.ID]string{7: "q"}, nil)))
	assert.False(t, w.CheckForChange(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, notifier.snapshot())

	close(runner.release)
	waitForScan(t, w, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, notifier.snapshot())
	assert.Equal(t, map[trust.Group]int{trust.GroupPrimary: 1, trust.GroupSecondary: 0}, w.Status().Totals)
}

func TestDiffScanResultsNotifiesScanChanges(t *testing.T) {
	store := &memStore{snap: snapOf(nil, map[trust.ID]string{1: "a"}), version: 1}
	runner := &gatedRunner{store: store, next: func() trust.Snapshot {
		return snapOf(nil, map[trust.ID]string{2: "b"})
	}}
	notifier := &recordingNotifier{}
	startWatcher(t, store, runner, notifier, true)

	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 2 }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, trust.DirectionAdded, notifier.snapshot()[0].Direction)
	assert.Equal(t, trust.ID(2), notifier.snapshot()[0].ID)
	assert.Equal(t, trust.DirectionRemoved, notifier.snapshot()[1].Direction)
}

func TestScanFailureKeepsLoopAlive(t *testing.T) {
	store := &memStore{}
	runner := &gatedRunner{store: store, err: &watch.ExitError{Code: 3}}
	w := startWatcher(t, store, runner, &recordingNotifier{}, false)

	waitForScan(t, w, 1)
	st := w.Status()
	assert.Equal(t, watch.StateWatching, st.State)
	assert.Contains(t, st.LastScanError, "code 3")
	assert.True(t, w.TriggerScan())
	waitForScan(t, w, 2)
}

func TestNotifierFailureDoesNotStopEmission(t *testing.T) {
	store := &memStore{}
	runner := &gatedRunner{store: store}
	notifier := &recordingNotifier{err: errors.New("slack down")}
	w := startWatcher(t, store, runner, notifier, false)
	waitForScan(t, w, 1)

	require.NoError(t, store.Save(context.Background(), snapOf(map[trust.ID]string{1: "a", 2: "b"}, nil)))
	require.Eventually(t, func() bool { return len(notifier.snapshot()) == 2 }, 2*time.Second, 2*time.Millisecond)
}

func TestStopCancelsInFlightScan(t *testing.T) {
	store := &memStore{}
	runner := &gatedRunner{store: store, release: make(chan struct{})}
	w := watch.New(store, runner, &recordingNotifier{}, nil, watch.Options{ScanInterval: time.Hour, PollInterval: time.Millisecond})
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, watch.StateIdle, w.Status().State)
	assert.Error(t, w.RequestScan())
}

type panickyScanner struct{}

func (panickyScanner) Run(context.Context) (scan.Result, error) { panic("boom") }

type okScanner struct{}

func (okScanner) Run(context.Context) (scan.Result, error) {
	return scan.Result{RunID: "abc"}, nil
}

func TestInlineRunnerRecoversPanics(t *testing.T) {
	_, err := watch.InlineRunner{Scanner: panickyScanner{}}.RunScan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	id, err := watch.InlineRunner{Scanner: okScanner{}}.RunScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}
