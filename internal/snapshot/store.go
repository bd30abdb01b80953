// Package snapshot persists the single scan result document and exposes a
// modification marker the watcher polls for changes.
//
// Three backends are available: a JSON file (default), a single-row SQLite
// table, and a Redis key. Each holds exactly one document that every Save
// replaces wholesale.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"trustwatch/internal/config"
	"trustwatch/internal/trust"
)

// ErrMalformed reports a stored document that cannot be decoded.
var ErrMalformed = errors.New("snapshot document malformed")

// Version is a modification marker; 0 means no snapshot has been stored.
// Only equality is meaningful to callers.
type Version int64

// Store reads and writes the snapshot document.
type Store interface {
	// Load returns the stored snapshot, or an empty one when none exists.
	Load(ctx context.Context) (trust.Snapshot, error)
	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, snap trust.Snapshot) error
	// Version returns the current modification marker.
	Version(ctx context.Context) (Version, error)
	// Describe returns a human-readable location for logs.
	Describe() string
	Close() error
}

// Open selects the configured backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Snapshot.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.Snapshot.Path, logger), nil
	case config.BackendSQLite:
		store, err := OpenSQLite(ctx, cfg.Snapshot.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		store, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Snapshot.RedisAddr,
			Password: cfg.Snapshot.RedisPassword,
			DB:       cfg.Snapshot.RedisDB,
			Key:      cfg.Snapshot.RedisKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func decode(data []byte) (trust.Snapshot, error) {
	snap, err := trust.Decode(data)
	if err != nil {
		return trust.NewSnapshot(), fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return snap, nil
}
