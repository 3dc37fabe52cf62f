package tabs

import (
	"reflect"
	"testing"
)

func TestActivityTrackerActivation(t *testing.T) {
	tr := NewActivityTracker()

	tr.RecordActivation("a")
	tr.RecordActivation("b")
	tr.RecordActivation("c")
	if got := tr.MostRecent(); got != "c" {
		t.Errorf("MostRecent: expected c, got %s", got)
	}

	// Re-activating moves to the end without duplicating.
	tr.RecordActivation("a")
	want := []string{"b", "c", "a"}
	if got := tr.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("Order: expected %v, got %v", want, got)
	}
	if tr.Len() != 3 {
		t.Errorf("Len: expected 3, got %d", tr.Len())
	}
}

func TestActivityTrackerRemoval(t *testing.T) {
	tr := NewActivityTracker()
	tr.RecordActivation("a")
	tr.RecordActivation("b")

	tr.RecordRemoval("a")
	if got := tr.Order(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Order after removal: got %v", got)
	}

	// Removing an unknown id is a no-op.
	tr.RecordRemoval("zzz")
	if tr.Len() != 1 {
		t.Errorf("Len after no-op removal: got %d", tr.Len())
	}
}

func TestActivityTrackerRebuild(t *testing.T) {
	tr := NewActivityTracker()
	tr.RecordActivation("stale")

	tr.Rebuild([]string{"a", "b", "a", "c"})
	want := []string{"a", "b", "c"}
	if got := tr.Order(); !reflect.DeepEqual(got, want) {
		t.Errorf("Rebuild: expected %v, got %v", want, got)
	}
}

func TestActivityTrackerEmpty(t *testing.T) {
	tr := NewActivityTracker()
	if got := tr.MostRecent(); got != "" {
		t.Errorf("MostRecent on empty: got %q", got)
	}
	if got := tr.Order(); len(got) != 0 {
		t.Errorf("Order on empty: got %v", got)
	}
}
