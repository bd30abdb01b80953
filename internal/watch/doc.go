// Package watch runs scans on a schedule and turns snapshot changes into
// notifications.
//
// The Watcher owns a small state machine (idle, scanning, watching). Scans run
// one at a time through a Runner; a trigger while a scan is in flight is a
// logged no-op. After each scan the stored snapshot becomes the new baseline
// without generating events, and a poller compares every later modification
// of the snapshot against that baseline, emitting one notification per added
// or removed ID.
package watch
