package trust

import (
	"fmt"
	"strings"
)

// ID identifies a remote user within the scanned range.
type ID int

// Group names one of the two disjoint membership sets.
type Group string

const (
	// GroupPrimary holds identities matching the primary predicate (source name "red").
	GroupPrimary Group = "primary"
	// GroupSecondary holds identities matching the secondary predicate (source name "green").
	GroupSecondary Group = "secondary"
)

// Groups lists every group in canonical iteration order.
var Groups = []Group{GroupPrimary, GroupSecondary}

// SentinelLabel marks an identity whose display name could not be resolved.
const SentinelLabel = "Private Stats"

// ParseGroup maps user input (including the legacy red/green names) to a Group.
func ParseGroup(value string) (Group, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "primary", "red":
		return GroupPrimary, nil
	case "secondary", "green":
		return GroupSecondary, nil
	default:
		return "", fmt.Errorf("unknown group %q", value)
	}
}

// Classification is the remote verdict for a single identity.
type Classification struct {
	Level string `json:"trust_level"`
	Value int    `json:"trust_value"`
}

// Predicate matches a classification by exact level and value.
type Predicate struct {
	Level string
	Value int
}

// Matches reports whether c satisfies the predicate.
func (p Predicate) Matches(c Classification) bool {
	return c.Level == p.Level && c.Value == p.Value
}

// Rules pairs the predicates that place an identity into each group.
type Rules struct {
	Primary   Predicate
	Secondary Predicate
}

// DefaultRules returns the red/1 and green/2 predicates used by the public API.
func DefaultRules() Rules {
	return Rules{
		Primary:   Predicate{Level: "red", Value: 1},
		Secondary: Predicate{Level: "green", Value: 2},
	}
}

// Match returns the group a classification belongs to. Primary is checked
// first; with the default rules the predicates cannot both match.
func (r Rules) Match(c Classification) (Group, bool) {
	if r.Primary.Matches(c) {
		return GroupPrimary, true
	}
	if r.Secondary.Matches(c) {
		return GroupSecondary, true
	}
	return "", false
}
