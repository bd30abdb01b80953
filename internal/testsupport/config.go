package testsupport

import (
	"path/filepath"
	"testing"

	"trustwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Notifications are disabled, the API binds to a random loopback port, and
// the scan range is kept small.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Snapshot.Backend = config.BackendFile
	cfgVal.Snapshot.Path = filepath.Join(base, "state", "logs.json")
	cfgVal.Snapshot.SQLitePath = filepath.Join(base, "state", "snapshot.db")
	cfgVal.Scan.MaxID = 20
	cfgVal.Scan.ScanConcurrency = 3
	cfgVal.Scan.StatsConcurrency = 2
	cfgVal.Scan.LabelRetryDelayMS = 1
	cfgVal.Notifications.SlackToken = ""
	cfgVal.Notifications.SlackChannel = ""
	cfgVal.Server.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAPIBaseURL points the scanner at a test users API.
func WithAPIBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithMaxID overrides the scanned ID range.
func WithMaxID(maxID int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.MaxID = maxID
	}
}

// WithSlack enables notifications against a test Slack endpoint.
func WithSlack(apiURL, token, channel string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.SlackAPIURL = apiURL
		b.cfg.Notifications.SlackToken = token
		b.cfg.Notifications.SlackChannel = channel
	}
}

// WithBackend selects the snapshot backend.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Snapshot.Backend = backend
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
