package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateSnapshot(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if err := validateURL("api.base_url", c.API.BaseURL); err != nil {
		return err
	}
	if c.API.RequestTimeout <= 0 {
		return errors.New("api.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateScan() error {
	if err := ensurePositiveMap(map[string]int{
		"scan.max_id":            c.Scan.MaxID,
		"scan.scan_concurrency":  c.Scan.ScanConcurrency,
		"scan.stats_concurrency": c.Scan.StatsConcurrency,
		"scan.interval_seconds":  c.Scan.IntervalSeconds,
		"scan.label_attempts":    c.Scan.LabelAttempts,
	}); err != nil {
		return err
	}
	if c.Scan.LabelRetryDelayMS < 0 {
		return errors.New("scan.label_retry_delay_ms must be >= 0")
	}
	switch c.Scan.Isolation {
	case IsolationInline, IsolationProcess:
	default:
		return fmt.Errorf("scan.isolation must be %q or %q", IsolationInline, IsolationProcess)
	}
	if c.Scan.PrimaryLevel == "" || c.Scan.SecondaryLevel == "" {
		return errors.New("scan.primary_level and scan.secondary_level must be set")
	}
	if c.Scan.PrimaryLevel == c.Scan.SecondaryLevel && c.Scan.PrimaryValue == c.Scan.SecondaryValue {
		return errors.New("scan primary and secondary predicates must differ")
	}
	return nil
}

func (c *Config) validateSnapshot() error {
	switch c.Snapshot.Backend {
	case BackendFile:
		if c.Snapshot.Path == "" {
			return errors.New("snapshot.path must be set for the file backend")
		}
	case BackendSQLite:
		if c.Snapshot.SQLitePath == "" {
			return errors.New("snapshot.sqlite_path must be set for the sqlite backend")
		}
	case BackendRedis:
		if c.Snapshot.RedisAddr == "" {
			return errors.New("snapshot.redis_addr must be set for the redis backend")
		}
		if c.Snapshot.RedisDB < 0 {
			return errors.New("snapshot.redis_db must be >= 0")
		}
	default:
		return fmt.Errorf("snapshot.backend %q is not supported (use %s, %s, or %s)", c.Snapshot.Backend, BackendFile, BackendSQLite, BackendRedis)
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.PollInterval <= 0 {
		return errors.New("watch.poll_interval must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	return validateURL("notifications.slack_api_url", c.Notifications.SlackAPIURL)
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind %q: %w", c.Server.Bind, err)
	}
	return nil
}

func validateURL(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", key)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
