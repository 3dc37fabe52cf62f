package tabs

import "sync"

// ActivityTracker is the in-memory recency ordering of tab ids: append on
// activation, duplicate-free, most recent last. It is rebuilt from a fresh
// tab enumeration at startup and never persisted.
//
// The synchronizer is the sole writer; reads may come from anywhere.
type ActivityTracker struct {
	mu    sync.RWMutex
	order []string
}

// NewActivityTracker returns an empty tracker.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{}
}

// RecordActivation moves id to the most-recent position, appending it if
// absent. Idempotent for an already-most-recent id.
func (t *ActivityTracker) RecordActivation(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
	t.order = append(t.order, id)
}

// RecordRemoval drops id from the order if present.
func (t *ActivityTracker) RecordRemoval(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

// Rebuild replaces the order wholesale. Used once at startup with ids in
// tab-iteration order; duplicates in the input are collapsed to first
// occurrence.
func (t *ActivityTracker) Rebuild(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[string]struct{}, len(ids))
	t.order = t.order[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t.order = append(t.order, id)
	}
}

// Order returns a copy of the current order, most recent last.
func (t *ActivityTracker) Order() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// MostRecent returns the most recently activated id, or "" when empty.
func (t *ActivityTracker) MostRecent() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.order) == 0 {
		return ""
	}
	return t.order[len(t.order)-1]
}

// Len returns the number of tracked ids.
func (t *ActivityTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

func (t *ActivityTracker) removeLocked(id string) {
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
