package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"trustwatch/internal/config"
	"trustwatch/internal/logging"
	"trustwatch/internal/snapshot"
	"trustwatch/internal/trust"
)

// MustOpenStore opens the configured snapshot store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) snapshot.Store {
	t.Helper()

	store, err := snapshot.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("snapshot.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// WriteSnapshot encodes snap to path in the on-disk snapshot format.
func WriteSnapshot(t testing.TB, path string, snap trust.Snapshot) {
	t.Helper()

	data, err := snap.Encode()
	if err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Snapshot builds a snapshot from per-group ID to label maps.
func Snapshot(primary, secondary map[trust.ID]string) trust.Snapshot {
	snap := trust.NewSnapshot()
	for id, label := range primary {
		snap.Set(trust.GroupPrimary, id, label)
	}
	for id, label := range secondary {
		snap.Set(trust.GroupSecondary, id, label)
	}
	return snap
}
