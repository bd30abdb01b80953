// Package scan implements one full sweep of the user ID space.
//
// A Classifier partitions [1, MaxID] across workers by stride and looks up
// each ID's trust factor; a Resolver fetches display names for the matched
// IDs from a shared queue; the Pipeline runs both and persists the grouped
// result as a single snapshot. Lookup failures are absorbed (skipped during
// classification, replaced by the sentinel label during resolution) so a scan
// always produces a complete snapshot unless the context is cancelled.
package scan
