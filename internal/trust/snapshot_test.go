package trust_test

import (
	"strings"
	"testing"

	"trustwatch/internal/trust"
)

func TestSnapshotEncodeShape(t *testing.T) {
	snap := trust.NewSnapshot()
	snap.Set(trust.GroupPrimary, 12, "alice")
	snap.Set(trust.GroupSecondary, 3, "bob")

	data, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	text := string(data)
	for _, fragment := range []string{`"primary": {`, `"12": "alice"`, `"secondary": {`, `"3": "bob"`} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("encoded snapshot missing %q:\n%s", fragment, text)
		}
	}
	if !strings.HasSuffix(text, "\n") {
		t.Fatal("expected trailing newline")
	}
}

func TestSnapshotEncodeEmptyGroupsAreObjects(t *testing.T) {
	var snap trust.Snapshot
	data, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(data), "null") {
		t.Fatalf("empty groups should encode as objects: %s", data)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	snap := trust.NewSnapshot()
	snap.Set(trust.GroupPrimary, 1, "a")
	data, err := snap.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := trust.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Primary[1] != "a" || len(decoded.Secondary) != 0 {
		t.Fatalf("unexpected decoded snapshot: %+v", decoded)
	}
}

func TestDecodeAcceptsLegacyKeys(t *testing.T) {
	decoded, err := trust.Decode([]byte(`{"red": {"4": "mallory"}, "green": {"8": "trent"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Primary[4] != "mallory" {
		t.Fatalf("expected red to map to primary, got %+v", decoded.Primary)
	}
	if decoded.Secondary[8] != "trent" {
		t.Fatalf("expected green to map to secondary, got %+v", decoded.Secondary)
	}
}

func TestDecodeEmptyAndMalformed(t *testing.T) {
	snap, err := trust.Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if snap.Len() != 0 || snap.Primary == nil {
		t.Fatalf("expected empty non-nil snapshot, got %+v", snap)
	}
	if _, err := trust.Decode([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestCloneIsDeep(t *testing.T) {
	snap := trust.NewSnapshot()
	snap.Set(trust.GroupPrimary, 1, "a")
	clone := snap.Clone()
	clone.Set(trust.GroupPrimary, 2, "b")
	if len(snap.Primary) != 1 {
		t.Fatal("clone mutated original")
	}
}

func TestRulesMatch(t *testing.T) {
	rules := trust.DefaultRules()
	tests := []struct {
		name  string
		in    trust.Classification
		group trust.Group
		ok    bool
	}{
		{"red one", trust.Classification{Level: "red", Value: 1}, trust.GroupPrimary, true},
		{"green two", trust.Classification{Level: "green", Value: 2}, trust.GroupSecondary, true},
		{"red wrong value", trust.Classification{Level: "red", Value: 2}, "", false},
		{"green wrong value", trust.Classification{Level: "green", Value: 1}, "", false},
		{"blue", trust.Classification{Level: "blue", Value: 0}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, ok := rules.Match(tt.in)
			if ok != tt.ok || group != tt.group {
				t.Fatalf("Match(%+v) = (%q, %v), want (%q, %v)", tt.in, group, ok, tt.group, tt.ok)
			}
		})
	}
}

func TestParseGroup(t *testing.T) {
	for input, want := range map[string]trust.Group{
		"primary":   trust.GroupPrimary,
		" RED ":     trust.GroupPrimary,
		"secondary": trust.GroupSecondary,
		"green":     trust.GroupSecondary,
	} {
		got, err := trust.ParseGroup(input)
		if err != nil || got != want {
			t.Fatalf("ParseGroup(%q) = %q, %v", input, got, err)
		}
	}
	if _, err := trust.ParseGroup("blue"); err == nil {
		t.Fatal("expected error for unknown group")
	}
}
