// Package preflight provides readiness checks for the remote users API, the
// Slack bot credentials, the snapshot store, and the filesystem paths that
// trustwatch depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs each failure. Failures are
//     not fatal: a flaky API is retried by the next scheduled scan.
//   - The daemon status endpoint reports the startup results so the CLI
//     "trustwatch status" command can display them.
//
// Each check is gated by its configuration: Slack is skipped when
// notifications are disabled.
package preflight
