package daemon_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"trustwatch/internal/daemon"
	"trustwatch/internal/logging"
	"trustwatch/internal/metrics"
	"trustwatch/internal/notifications"
	"trustwatch/internal/testsupport"
	"trustwatch/internal/trust"
	"trustwatch/internal/watch"
)

type noopRunner struct{}

func (noopRunner) RunScan(context.Context) (string, error) { return "run-1", nil }

func newDaemon(t *testing.T, bind string) (*daemon.Daemon, *watch.Watcher) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if bind != "" {
		cfg.Server.Bind = bind
	}
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteSnapshot(t, cfg.Snapshot.Path, testsupport.Snapshot(
		map[trust.ID]string{1: "alice"},
		map[trust.ID]string{2: "bob", 3: "carol"},
	))

	logger := logging.NewNop()
	m := metrics.New()
	w := watch.New(store, noopRunner{}, notifications.NewService(cfg, logger), logger, watch.Options{
		ScanInterval: time.Hour,
		PollInterval: 10 * time.Millisecond,
		Metrics:      m,
	})
	d, err := daemon.New(cfg, w, logger, daemon.Options{Store: store, Metrics: m, SkipPreflight: true})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, w
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath == "" || !strings.HasPrefix(status.Snapshot, "file:") {
		t.Fatalf("unexpected status: %+v", status)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	build := func() *daemon.Daemon {
		w := watch.New(store, noopRunner{}, notifications.NewService(cfg, logger), logger, watch.Options{ScanInterval: time.Hour})
		d, err := daemon.New(cfg, w, logger, daemon.Options{SkipPreflight: true})
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		t.Cleanup(d.Stop)
		return d
	}

	first := build()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second := build()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to be rejected by the lock")
	}
}

func TestDaemonBindFailureIsFatal(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()

	d, w := newDaemon(t, occupied.Addr().String())
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected bind failure")
	}
	if d.Status().Running {
		t.Fatal("daemon must not report running after bind failure")
	}
	if w.Status().Running {
		t.Fatal("watcher must not start after bind failure")
	}

	// The lock was released: a fresh start on a free port succeeds.
	occupied.Close()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart after bind failure: %v", err)
	}
}

func TestDaemonHealthEndpoint(t *testing.T) {
	d, w := newDaemon(t, "")
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for w.Status().ScansCompleted == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + d.APIAddress() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status      string         `json:"status"`
		ScanRunning bool           `json:"scanRunning"`
		Totals      map[string]int `json:"totals"`
		LastDiff    struct {
			Added   map[string]map[string]string `json:"added"`
			Removed map[string]map[string]string `json:"removed"`
		} `json:"lastDiff"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("unexpected status %q", body.Status)
	}
	if body.Totals["primary"] != 1 || body.Totals["secondary"] != 2 {
		t.Fatalf("unexpected totals %v", body.Totals)
	}
	if _, ok := body.LastDiff.Added["primary"]; !ok {
		t.Fatalf("lastDiff must list every group: %+v", body.LastDiff)
	}
}
