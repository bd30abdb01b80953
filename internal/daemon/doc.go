// Package daemon coordinates the long-running trustwatch process.
//
// It wires configuration, the snapshot store, and the watch loop into a single
// lifecycle with flock-based locking to prevent multiple instances, runs the
// startup preflight checks, and serves the health, status, manual scan, and
// metrics endpoints over HTTP.
//
// Keep orchestration logic here: scanning lives in the scan package and
// change detection in the watch package, while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
