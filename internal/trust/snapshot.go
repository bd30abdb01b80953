package trust

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Snapshot is the full persisted scan result: every classified identity and
// its resolved label, grouped by membership.
type Snapshot struct {
	Primary   map[ID]string `json:"primary"`
	Secondary map[ID]string `json:"secondary"`
}

// NewSnapshot returns a snapshot with empty, non-nil groups.
func NewSnapshot() Snapshot {
	return Snapshot{
		Primary:   make(map[ID]string),
		Secondary: make(map[ID]string),
	}
}

// Group returns the mapping for g. The returned map is never nil.
func (s *Snapshot) Group(g Group) map[ID]string {
	s.ensure()
	switch g {
	case GroupPrimary:
		return s.Primary
	case GroupSecondary:
		return s.Secondary
	default:
		return map[ID]string{}
	}
}

// Set records a label for id in group g.
func (s *Snapshot) Set(g Group, id ID, label string) {
	s.Group(g)[id] = label
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := NewSnapshot()
	for id, label := range s.Primary {
		out.Primary[id] = label
	}
	for id, label := range s.Secondary {
		out.Secondary[id] = label
	}
	return out
}

// Totals reports the number of identities per group.
func (s Snapshot) Totals() map[Group]int {
	return map[Group]int{
		GroupPrimary:   len(s.Primary),
		GroupSecondary: len(s.Secondary),
	}
}

// Len is the number of identities across both groups.
func (s Snapshot) Len() int {
	return len(s.Primary) + len(s.Secondary)
}

// SortedIDs returns the identities of group g in ascending order.
func (s Snapshot) SortedIDs(g Group) []ID {
	return sortedKeys(s.Group(g))
}

func (s *Snapshot) ensure() {
	if s.Primary == nil {
		s.Primary = make(map[ID]string)
	}
	if s.Secondary == nil {
		s.Secondary = make(map[ID]string)
	}
}

// Encode renders the snapshot as pretty-printed JSON with a trailing newline.
func (s Snapshot) Encode() ([]byte, error) {
	s.ensure()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a snapshot document. Empty input yields an empty snapshot.
func Decode(data []byte) (Snapshot, error) {
	snap := NewSnapshot()
	if len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return NewSnapshot(), err
	}
	return snap, nil
}

// UnmarshalJSON accepts both the primary/secondary keys and the legacy
// red/green keys written by older scanners.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Primary   map[ID]string `json:"primary"`
		Secondary map[ID]string `json:"secondary"`
		Red       map[ID]string `json:"red"`
		Green     map[ID]string `json:"green"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewSnapshot()
	for id, label := range raw.Red {
		s.Primary[id] = label
	}
	for id, label := range raw.Primary {
		s.Primary[id] = label
	}
	for id, label := range raw.Green {
		s.Secondary[id] = label
	}
	for id, label := range raw.Secondary {
		s.Secondary[id] = label
	}
	return nil
}

func sortedKeys(m map[ID]string) []ID {
	ids := make([]ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
