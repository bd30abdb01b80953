// Package main hosts the trustwatch CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the watch daemon, performs one-off scans
// (also used by the daemon's process isolation mode), queries a running
// daemon over HTTP, diffs snapshot files offline, and scaffolds
// configuration. It centralizes configuration resolution and logger setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
