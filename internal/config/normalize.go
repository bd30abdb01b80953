package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeAPI(); err != nil {
		return err
	}
	if err := c.normalizeScan(); err != nil {
		return err
	}
	if err := c.normalizeSnapshot(); err != nil {
		return err
	}
	c.normalizeNotifications()
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() error {
	if value, ok := lookupEnv("TRUSTWATCH_API_BASE_URL"); ok {
		c.API.BaseURL = value
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	c.API.UserAgent = strings.TrimSpace(c.API.UserAgent)
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaultAPIUserAgent
	}
	return nil
}

func (c *Config) normalizeScan() error {
	if err := envInt("MAX_ID", &c.Scan.MaxID); err != nil {
		return err
	}
	if err := envInt("SCAN_CONCURRENCY", &c.Scan.ScanConcurrency); err != nil {
		return err
	}
	if err := envInt("STATS_CONCURRENCY", &c.Scan.StatsConcurrency); err != nil {
		return err
	}
	if value, ok := lookupEnv("SCAN_INTERVAL"); ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("SCAN_INTERVAL: %w", err)
		}
		if interval < time.Second || interval%time.Second != 0 {
			return fmt.Errorf("SCAN_INTERVAL: %q must be a whole number of seconds", value)
		}
		c.Scan.IntervalSeconds = int(interval / time.Second)
	}
	c.Scan.Isolation = strings.ToLower(strings.TrimSpace(c.Scan.Isolation))
	if c.Scan.Isolation == "" {
		c.Scan.Isolation = IsolationInline
	}
	if c.Scan.ScanProgressEvery <= 0 {
		c.Scan.ScanProgressEvery = defaultScanProgressEvery
	}
	if c.Scan.LabelProgressEvery <= 0 {
		c.Scan.LabelProgressEvery = defaultLabelProgressEvery
	}
	c.Scan.PrimaryLevel = strings.TrimSpace(c.Scan.PrimaryLevel)
	c.Scan.SecondaryLevel = strings.TrimSpace(c.Scan.SecondaryLevel)
	return nil
}

func (c *Config) normalizeSnapshot() error {
	c.Snapshot.Backend = strings.ToLower(strings.TrimSpace(c.Snapshot.Backend))
	if c.Snapshot.Backend == "" {
		c.Snapshot.Backend = BackendFile
	}
	var err error
	if strings.TrimSpace(c.Snapshot.Path) == "" {
		c.Snapshot.Path = defaultSnapshotPath
	}
	if c.Snapshot.Path, err = expandPath(c.Snapshot.Path); err != nil {
		return fmt.Errorf("snapshot.path: %w", err)
	}
	if strings.TrimSpace(c.Snapshot.SQLitePath) == "" {
		c.Snapshot.SQLitePath = defaultSQLitePath
	}
	if c.Snapshot.SQLitePath, err = expandPath(c.Snapshot.SQLitePath); err != nil {
		return fmt.Errorf("snapshot.sqlite_path: %w", err)
	}
	if c.Snapshot.RedisPassword == "" {
		if value, ok := lookupEnv("REDIS_PASSWORD"); ok {
			c.Snapshot.RedisPassword = value
		}
	}
	c.Snapshot.RedisAddr = strings.TrimSpace(c.Snapshot.RedisAddr)
	c.Snapshot.RedisKey = strings.TrimSpace(c.Snapshot.RedisKey)
	if c.Snapshot.RedisKey == "" {
		c.Snapshot.RedisKey = defaultRedisKey
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	if value, ok := lookupEnv("SLACK_BOT_TOKEN"); ok {
		c.Notifications.SlackToken = value
	}
	if value, ok := lookupEnv("SLACK_CHANNEL_ID"); ok {
		c.Notifications.SlackChannel = value
	}
	c.Notifications.SlackToken = strings.TrimSpace(c.Notifications.SlackToken)
	c.Notifications.SlackChannel = strings.TrimSpace(c.Notifications.SlackChannel)
	c.Notifications.SlackAPIURL = strings.TrimSpace(c.Notifications.SlackAPIURL)
	if c.Notifications.SlackAPIURL == "" {
		c.Notifications.SlackAPIURL = defaultSlackAPIURL
	}
}

func (c *Config) normalizeServer() error {
	if value, ok := lookupEnv("PORT"); ok {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("PORT: invalid port %q", value)
		}
		host := ""
		if bindHost, _, err := net.SplitHostPort(c.Server.Bind); err == nil {
			host = bindHost
		}
		c.Server.Bind = net.JoinHostPort(host, strconv.Itoa(port))
	}
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func envInt(key string, target *int) error {
	value, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*target = parsed
	return nil
}
