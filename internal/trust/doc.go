// Package trust defines the domain model shared by the scanner, the snapshot
// store, and the watch loop.
//
// Identities are plain integers in a bounded range. A scan sorts them into two
// mutually exclusive groups (primary and secondary), a resolver attaches a
// display label to each, and the grouped result is persisted as a Snapshot.
// Compare computes the per-group set difference between two snapshots; the
// resulting Diff expands into ordered Events that the notifier consumes.
package trust
