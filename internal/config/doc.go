// Package config loads, normalizes, and validates trustwatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment overrides such as MAX_ID, SLACK_BOT_TOKEN, and PORT. The Config
// type centralizes every knob the daemon and CLI need so the scan, snapshot
// store, watcher, and notifier are configured in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
