package watch

import (
	"time"

	"trustwatch/internal/trust"
)

// Status is a point-in-time view of the watcher.
type Status struct {
	State            State               `json:"state"`
	Running          bool                `json:"running"`
	ScanRunning      bool                `json:"scanRunning"`
	ScanCompleted    bool                `json:"scanCompleted"`
	ScansCompleted   int                 `json:"scansCompleted"`
	Totals           map[trust.Group]int `json:"totals"`
	LastDiff         trust.Diff          `json:"lastDiff"`
	LastRunID        string              `json:"lastRunId,omitempty"`
	LastScanStarted  time.Time           `json:"lastScanStarted,omitzero"`
	LastScanFinished time.Time           `json:"lastScanFinished,omitzero"`
	LastScanError    string              `json:"lastScanError,omitempty"`
	LastChange       time.Time           `json:"lastChange,omitzero"`
	SnapshotVersion  int64               `json:"snapshotVersion"`
}

// Status returns a copy of the watcher's current state.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	status := Status{
		State:            w.state,
		Running:          w.running,
		ScanRunning:      w.scanRunning,
		ScanCompleted:    w.scanCompleted,
		ScansCompleted:   w.scansDone,
		Totals:           w.current.Totals(),
		LastDiff:         w.lastDiff.Clone(),
		LastRunID:        w.lastRunID,
		LastScanStarted:  w.lastScanStart,
		LastScanFinished: w.lastScanEnd,
		LastChange:       w.lastChange,
		SnapshotVersion:  int64(w.lastVersion),
	}
	if w.lastScanErr != nil {
		status.LastScanError = w.lastScanErr.Error()
	}
	return status
}

// Current returns a deep copy of the most recently loaded snapshot.
func (w *Watcher) Current() trust.Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Clone()
}
