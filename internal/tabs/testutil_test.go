package tabs

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/tablightapp/tablight/internal/indexdb"
)

func newTestStore(t *testing.T) *indexdb.DB {
	t.Helper()
	db, err := indexdb.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeTabSource struct {
	mu        sync.Mutex
	tabs      map[string]Tab
	events    chan TabEvent
	activated []string
	opened    []string
}

func newFakeTabSource(initial ...Tab) *fakeTabSource {
	f := &fakeTabSource{
		tabs:   make(map[string]Tab),
		events: make(chan TabEvent, 16),
	}
	for _, tab := range initial {
		f.tabs[tab.ID] = tab
	}
	return f
}

func (f *fakeTabSource) EnumerateAll(ctx context.Context) ([]Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Tab, 0, len(f.tabs))
	for _, tab := range f.tabs {
		out = append(out, tab)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTabSource) GetByID(ctx context.Context, id string) (Tab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[id]
	if !ok {
		return Tab{}, fmt.Errorf("tab %s not found", id)
	}
	return tab, nil
}

func (f *fakeTabSource) Activate(ctx context.Context, id, windowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, id)
	return nil
}

func (f *fakeTabSource) Open(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	return nil
}

func (f *fakeTabSource) Events() <-chan TabEvent {
	return f.events
}

type fakeSessionSource struct {
	mu       sync.Mutex
	sessions []ClosedSession
	restored []string
	err      error
}

func (f *fakeSessionSource) EnumerateRecent(ctx context.Context, maxCount int) ([]ClosedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := f.sessions
	if len(out) > maxCount {
		out = out[:maxCount]
	}
	return append([]ClosedSession(nil), out...), nil
}

func (f *fakeSessionSource) Restore(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.restored = append(f.restored, sessionID)
	return nil
}

type fakeBookmarkSource struct {
	tree   []BookmarkNode
	events chan BookmarkEvent
}

func newFakeBookmarkSource(tree []BookmarkNode) *fakeBookmarkSource {
	return &fakeBookmarkSource{tree: tree, events: make(chan BookmarkEvent, 16)}
}

func (f *fakeBookmarkSource) EnumerateTree(ctx context.Context) ([]BookmarkNode, error) {
	return f.tree, nil
}

func (f *fakeBookmarkSource) Events() <-chan BookmarkEvent {
	return f.events
}

type fakeContentSource struct {
	mu   sync.Mutex
	meta map[string]PageMeta
}

func (f *fakeContentSource) PageMeta(ctx context.Context, id string) (PageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.meta[id]
	if !ok {
		return PageMeta{}, ErrUnavailable
	}
	return meta, nil
}
