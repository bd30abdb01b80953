package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"trustwatch/internal/fileutil"
	"trustwatch/internal/logging"
	"trustwatch/internal/trust"
)

const fileLockRetry = 25 * time.Millisecond

// FileStore keeps the snapshot as a pretty-printed JSON file. Writes go
// through a temp file and rename under an advisory lock so concurrent writers
// (e.g. a process-isolated scan and a manual CLI run) never interleave.
// The version is the file's modification time in nanoseconds.
type FileStore struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewFileStore returns a store for the document at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logging.NewComponentLogger(logger, "snapshot"),
	}
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Describe implements Store.
func (s *FileStore) Describe() string { return "file:" + s.path }

// Load implements Store.
func (s *FileStore) Load(context.Context) (trust.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return trust.NewSnapshot(), nil
		}
		return trust.NewSnapshot(), fmt.Errorf("read snapshot: %w", err)
	}
	return decode(data)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, snap trust.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	// The lock file lives next to the document, so its directory must exist first.
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	locked, err := s.lock.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock snapshot: %s is held by another writer", s.lock.Path())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("snapshot unlock failed", logging.Error(err))
		}
	}()

	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.logger.Debug("snapshot written",
		logging.String("path", s.path),
		logging.Int("bytes", len(data)),
	)
	return nil
}

// Version implements Store.
func (s *FileStore) Version(context.Context) (Version, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}
	return Version(info.ModTime().UnixNano()), nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
