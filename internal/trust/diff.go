package trust

// Direction describes whether an identity entered or left a group.
type Direction string

const (
	DirectionAdded   Direction = "added"
	DirectionRemoved Direction = "removed"
)

// Event is a single membership change derived from two snapshots.
type Event struct {
	Direction Direction
	Group     Group
	ID        ID
	Label     string
}

// Diff holds the per-group additions and removals between two snapshots.
type Diff struct {
	Added   map[Group]map[ID]string `json:"added"`
	Removed map[Group]map[ID]string `json:"removed"`
}

// NewDiff returns a diff with empty maps for every group.
func NewDiff() Diff {
	d := Diff{
		Added:   make(map[Group]map[ID]string, len(Groups)),
		Removed: make(map[Group]map[ID]string, len(Groups)),
	}
	for _, g := range Groups {
		d.Added[g] = make(map[ID]string)
		d.Removed[g] = make(map[ID]string)
	}
	return d
}

// Compare computes keys(next)-keys(prev) as additions, labelled from next,
// and keys(prev)-keys(next) as removals, labelled from prev. Label changes
// for an identity present in both are not reported.
func Compare(prev, next Snapshot) Diff {
	d := NewDiff()
	for _, g := range Groups {
		before := prev.Group(g)
		after := next.Group(g)
		for id, label := range after {
			if _, ok := before[id]; !ok {
				d.Added[g][id] = label
			}
		}
		for id, label := range before {
			if _, ok := after[id]; !ok {
				d.Removed[g][id] = label
			}
		}
	}
	return d
}

// Empty reports whether the diff contains no changes.
func (d Diff) Empty() bool {
	for _, g := range Groups {
		if len(d.Added[g]) > 0 || len(d.Removed[g]) > 0 {
			return false
		}
	}
	return true
}

// Count returns the number of events the diff expands to.
func (d Diff) Count() int {
	n := 0
	for _, g := range Groups {
		n += len(d.Added[g]) + len(d.Removed[g])
	}
	return n
}

// Events flattens the diff in group order; within a group additions precede
// removals and identities ascend.
func (d Diff) Events() []Event {
	events := make([]Event, 0, d.Count())
	for _, g := range Groups {
		for _, id := range sortedKeys(d.Added[g]) {
			events = append(events, Event{Direction: DirectionAdded, Group: g, ID: id, Label: d.Added[g][id]})
		}
		for _, id := range sortedKeys(d.Removed[g]) {
			events = append(events, Event{Direction: DirectionRemoved, Group: g, ID: id, Label: d.Removed[g][id]})
		}
	}
	return events
}

// Clone returns a deep copy.
func (d Diff) Clone() Diff {
	out := NewDiff()
	for _, g := range Groups {
		for id, label := range d.Added[g] {
			out.Added[g][id] = label
		}
		for id, label := range d.Removed[g] {
			out.Removed[g][id] = label
		}
	}
	return out
}
