package snapshot_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustwatch/internal/config"
	"trustwatch/internal/snapshot"
	"trustwatch/internal/trust"
)

func sample() trust.Snapshot {
	snap := trust.NewSnapshot()
	snap.Set(trust.GroupPrimary, 1, "alice")
	snap.Set(trust.GroupSecondary, 22, "bob")
	return snap
}

// exerciseStore checks the contract every backend must satisfy.
func exerciseStore(t *testing.T, store snapshot.Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	v0, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Version(0), v0)

	require.NoError(t, store.Save(ctx, sample()))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[trust.ID]string{1: "alice"}, loaded.Primary)
	assert.Equal(t, map[trust.ID]string{22: "bob"}, loaded.Secondary)
	v1, err := store.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, snapshot.Version(0), v1)

	replacement := trust.NewSnapshot()
	replacement.Set(trust.GroupSecondary, 3, "carol")
	require.NoError(t, store.Save(ctx, replacement))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Primary, "save must replace the document wholesale")
	assert.Equal(t, map[trust.ID]string{3: "carol"}, loaded.Secondary)
	assert.NotEmpty(t, store.Describe())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "logs.json")
	store := snapshot.NewFileStore(path, nil)
	exerciseStore(t, store)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"secondary\": {\n    \"3\": \"carol\"\n  }")
}

func TestFileStoreSaveCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not", "yet", "there", "logs.json")
	store := snapshot.NewFileStore(path, nil)
	require.NoError(t, store.Save(context.Background(), sample()))

	assert.FileExists(t, path)
	assert.FileExists(t, path+".lock")
}

func TestFileStoreVersionTracksMtime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")
	store := snapshot.NewFileStore(path, nil)
	require.NoError(t, store.Save(context.Background(), sample()))

	stamp := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
	v, err := store.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot.Version(stamp.UnixNano()), v)
}

func TestFileStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	store := snapshot.NewFileStore(path, nil)

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, snapshot.ErrMalformed)
}

func TestFileStoreSaveRespectsWriterLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")
	store := snapshot.NewFileStore(path, nil)

	other := flock.New(path + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = store.Save(ctx, sample())
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "document must not be written without the lock")
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	store, err := snapshot.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)

	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Version(2), v)
}

func TestSQLiteStoreReopenKeepsDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	store, err := snapshot.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sample()))
	require.NoError(t, store.Close())

	reopened, err := snapshot.OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestSQLiteStoreSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	store, err := snapshot.OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE schema_version SET version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = snapshot.OpenSQLite(ctx, path)
	require.ErrorIs(t, err, snapshot.ErrSchemaMismatch)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := snapshot.NewRedisStore(client, "tw:test")
	exerciseStore(t, store)

	version, err := mr.Get("tw:test:version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)
}

func TestRedisStoreMalformed(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("tw:bad", "[1,2"))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := snapshot.NewRedisStore(client, "tw:bad").Load(context.Background())
	require.ErrorIs(t, err, snapshot.ErrMalformed)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	cases := map[string]func(*config.Config){
		config.BackendFile: func(c *config.Config) { c.Snapshot.Path = filepath.Join(dir, "logs.json") },
		config.BackendSQLite: func(c *config.Config) {
			c.Snapshot.SQLitePath = filepath.Join(dir, "snapshot.db")
		},
		config.BackendRedis: func(c *config.Config) { c.Snapshot.RedisAddr = mr.Addr() },
	}
	for backend, mutate := range cases {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Snapshot.Backend = backend
			mutate(&cfg)
			store, err := snapshot.Open(ctx, &cfg, nil)
			require.NoError(t, err)
			defer store.Close()
			assert.Contains(t, store.Describe(), backend+":")
			require.NoError(t, store.Save(ctx, sample()))
		})
	}

	cfg := config.Default()
	cfg.Snapshot.Backend = "s3"
	_, err := snapshot.Open(ctx, &cfg, nil)
	require.Error(t, err)
}
