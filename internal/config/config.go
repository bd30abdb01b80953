package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"trustwatch/internal/trust"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// API contains configuration for the remote users API that is scanned.
type API struct {
	BaseURL        string `toml:"base_url"`
	UserAgent      string `toml:"user_agent"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Scan contains the classification sweep and label resolution settings.
type Scan struct {
	MaxID              int    `toml:"max_id"`
	ScanConcurrency    int    `toml:"scan_concurrency"`
	StatsConcurrency   int    `toml:"stats_concurrency"`
	IntervalSeconds    int    `toml:"interval_seconds"`
	Isolation          string `toml:"isolation"`
	LabelAttempts      int    `toml:"label_attempts"`
	LabelRetryDelayMS  int    `toml:"label_retry_delay_ms"`
	ScanProgressEvery  int    `toml:"scan_progress_every"`
	LabelProgressEvery int    `toml:"label_progress_every"`
	PrimaryLevel       string `toml:"primary_level"`
	PrimaryValue       int    `toml:"primary_value"`
	SecondaryLevel     string `toml:"secondary_level"`
	SecondaryValue     int    `toml:"secondary_value"`
}

// Snapshot selects and configures the snapshot storage backend.
type Snapshot struct {
	Backend       string `toml:"backend"`
	Path          string `toml:"path"`
	SQLitePath    string `toml:"sqlite_path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisKey      string `toml:"redis_key"`
}

// Watch contains change detection settings.
type Watch struct {
	PollInterval    int  `toml:"poll_interval"`
	DiffScanResults bool `toml:"diff_scan_results"`
}

// Notifications contains Slack delivery settings.
type Notifications struct {
	SlackToken     string `toml:"slack_token"`
	SlackChannel   string `toml:"slack_channel"`
	SlackAPIURL    string `toml:"slack_api_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Server contains the health/API listener configuration.
type Server struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for trustwatch.
//
// Configuration sections by subsystem:
//   - Paths: state (lock, sqlite) and log directories
//   - API: remote users API used for classification and label lookups
//   - Scan: ID range, worker counts, retry policy, and group predicates
//   - Snapshot: storage backend for the persisted scan result
//   - Watch: change detection polling
//   - Notifications: Slack credentials
//   - Server: health endpoint bind address
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Scan          Scan          `toml:"scan"`
	Snapshot      Snapshot      `toml:"snapshot"`
	Watch         Watch         `toml:"watch"`
	Notifications Notifications `toml:"notifications"`
	Server        Server        `toml:"server"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A .env file in the
// working directory or next to the config file is loaded first so environment
// fallbacks see its values; variables already set in the environment win.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(resolvedPath); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("trustwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load %s: %w", abs, err)
		}
	}
	return nil
}

// EnsureDirectories creates the state and log directories along with the
// parent directory of file-backed snapshots.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir}
	switch c.Snapshot.Backend {
	case BackendFile:
		dirs = append(dirs, filepath.Dir(c.Snapshot.Path))
	case BackendSQLite:
		dirs = append(dirs, filepath.Dir(c.Snapshot.SQLitePath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ScanInterval returns the period between scheduled scans.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scan.IntervalSeconds) * time.Second
}

// PollInterval returns the period between snapshot change checks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollInterval) * time.Second
}

// LabelRetryDelay returns the pause between label lookup attempts.
func (c *Config) LabelRetryDelay() time.Duration {
	return time.Duration(c.Scan.LabelRetryDelayMS) * time.Millisecond
}

// APITimeout returns the per-request timeout for the users API.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.RequestTimeout) * time.Second
}

// NotifyTimeout returns the per-request timeout for Slack delivery.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// Rules returns the group predicates configured for the scan.
func (c *Config) Rules() trust.Rules {
	return trust.Rules{
		Primary:   trust.Predicate{Level: c.Scan.PrimaryLevel, Value: c.Scan.PrimaryValue},
		Secondary: trust.Predicate{Level: c.Scan.SecondaryLevel, Value: c.Scan.SecondaryValue},
	}
}

// NotificationsEnabled reports whether Slack credentials are present.
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications.SlackToken != "" && c.Notifications.SlackChannel != ""
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "trustwatch.lock")
}

// StatusURL returns the base URL a local client should use to reach the
// daemon's API, replacing wildcard hosts with loopback.
func (c *Config) StatusURL() string {
	host, port, err := net.SplitHostPort(c.Server.Bind)
	if err != nil {
		return "http://" + c.Server.Bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
