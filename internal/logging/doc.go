// Package logging assembles structured slog loggers and formatting helpers used
// across trustwatch.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with run IDs, phases, and correlation IDs. The package also provides a
// no-op logger for tests and a progress counter for concurrent worker pools.
package logging
