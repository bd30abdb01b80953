package trust_test

import (
	"reflect"
	"testing"

	"trustwatch/internal/trust"
)

func snapshotOf(primary, secondary map[trust.ID]string) trust.Snapshot {
	snap := trust.NewSnapshot()
	for id, label := range primary {
		snap.Primary[id] = label
	}
	for id, label := range secondary {
		snap.Secondary[id] = label
	}
	return snap
}

func TestCompareReportsSetDifference(t *testing.T) {
	prev := snapshotOf(map[trust.ID]string{1: "a", 2: "b"}, nil)
	next := snapshotOf(map[trust.ID]string{2: "b", 3: "c"}, nil)

	diff := trust.Compare(prev, next)

	if want := map[trust.ID]string{3: "c"}; !reflect.DeepEqual(diff.Added[trust.GroupPrimary], want) {
		t.Fatalf("added = %v, want %v", diff.Added[trust.GroupPrimary], want)
	}
	if want := map[trust.ID]string{1: "a"}; !reflect.DeepEqual(diff.Removed[trust.GroupPrimary], want) {
		t.Fatalf("removed = %v, want %v", diff.Removed[trust.GroupPrimary], want)
	}
	if len(diff.Added[trust.GroupSecondary]) != 0 || len(diff.Removed[trust.GroupSecondary]) != 0 {
		t.Fatalf("expected untouched secondary group, got %+v", diff)
	}
}

func TestCompareIdenticalSnapshotsIsEmpty(t *testing.T) {
	snap := snapshotOf(map[trust.ID]string{1: "a"}, map[trust.ID]string{7: "g"})

	diff := trust.Compare(snap, snap.Clone())
	if !diff.Empty() {
		t.Fatalf("expected empty diff, got %+v", diff)
	}
	if diff.Count() != 0 || len(diff.Events()) != 0 {
		t.Fatalf("expected no events, got %d", diff.Count())
	}
}

func TestCompareIgnoresLabelOnlyChanges(t *testing.T) {
	prev := snapshotOf(map[trust.ID]string{1: "old"}, nil)
	next := snapshotOf(map[trust.ID]string{1: "new"}, nil)
	if diff := trust.Compare(prev, next); !diff.Empty() {
		t.Fatalf("label change should not produce events: %+v", diff)
	}
}

func TestCompareMovesBetweenGroups(t *testing.T) {
	prev := snapshotOf(map[trust.ID]string{5: "eve"}, nil)
	next := snapshotOf(nil, map[trust.ID]string{5: "eve"})

	events := trust.Compare(prev, next).Events()
	want := []trust.Event{
		{Direction: trust.DirectionRemoved, Group: trust.GroupPrimary, ID: 5, Label: "eve"},
		{Direction: trust.DirectionAdded, Group: trust.GroupSecondary, ID: 5, Label: "eve"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %+v, want %+v", events, want)
	}
}

func TestEventsOrdering(t *testing.T) {
	prev := snapshotOf(map[trust.ID]string{9: "i", 4: "d"}, map[trust.ID]string{20: "t"})
	next := snapshotOf(map[trust.ID]string{3: "c", 1: "a"}, map[trust.ID]string{11: "k"})

	events := trust.Compare(prev, next).Events()
	got := make([]trust.ID, 0, len(events))
	for _, evt := range events {
		got = append(got, evt.ID)
	}
	want := []trust.ID{1, 3, 4, 9, 11, 20}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("event order = %v, want %v", got, want)
	}
	if events[2].Direction != trust.DirectionRemoved || events[2].Label != "d" {
		t.Fatalf("removed events must carry the previous label: %+v", events[2])
	}
}

func TestDiffCloneIsIndependent(t *testing.T) {
	diff := trust.Compare(trust.NewSnapshot(), snapshotOf(map[trust.ID]string{1: "a"}, nil))
	clone := diff.Clone()
	clone.Added[trust.GroupPrimary][2] = "b"
	if _, ok := diff.Added[trust.GroupPrimary][2]; ok {
		t.Fatal("clone shares storage with original")
	}
}
