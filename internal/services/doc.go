// Package services defines shared utilities consumed by the scan pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, pipeline phases, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can tell
//     missing data from transient remote failures.
//
// Remote API clients live in subpackages (see services/hackatime).
package services
