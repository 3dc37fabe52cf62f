package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tablightapp/tablight/internal/tabs"
)

// Hub adapts whichever browser collaborator is currently connected into the
// engine's source interfaces. With no collaborator attached every call fails
// with tabs.ErrUnavailable and the engine degrades gracefully.
//
// Event channels outlive individual connections: the engine subscribes once
// and bridges come and go underneath.
type Hub struct {
	tabEvents chan tabs.TabEvent
	bmEvents  chan tabs.BookmarkEvent

	mu     sync.Mutex
	bridge *Bridge
}

// NewHub creates a hub with no collaborator attached.
func NewHub() *Hub {
	return &Hub{
		tabEvents: make(chan tabs.TabEvent, 256),
		bmEvents:  make(chan tabs.BookmarkEvent, 64),
	}
}

// attach installs a newly connected bridge, replacing (and closing) any
// previous one, and emits the attached event that triggers a rebuild.
func (h *Hub) attach(b *Bridge) {
	h.mu.Lock()
	old := h.bridge
	h.bridge = b
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	bridgeLog.Info("bridge_attached")
	h.deliverTabEvent(tabs.TabEvent{Kind: tabs.EventAttached})
}

// detach clears the bridge if it is still the current one.
func (h *Hub) detach(b *Bridge) {
	h.mu.Lock()
	if h.bridge == b {
		h.bridge = nil
	}
	h.mu.Unlock()
	bridgeLog.Info("bridge_detached")
}

func (h *Hub) current() (*Bridge, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bridge == nil {
		return nil, tabs.ErrUnavailable
	}
	return h.bridge, nil
}

// Connected reports whether a collaborator is attached.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bridge != nil
}

func (h *Hub) deliverTabEvent(ev tabs.TabEvent) {
	select {
	case h.tabEvents <- ev:
	default:
		// The engine has stalled; dropping is better than blocking the read
		// loop, and the next attach rebuilds from scratch anyway.
		bridgeLog.Warn("tab_event_dropped", slog.String("kind", string(ev.Kind)))
	}
}

func (h *Hub) deliverBookmarkEvent(ev tabs.BookmarkEvent) {
	select {
	case h.bmEvents <- ev:
	default:
		bridgeLog.Warn("bookmark_event_dropped", slog.String("kind", string(ev.Kind)))
	}
}

// --- tabs.TabSource ---

func (h *Hub) EnumerateAll(ctx context.Context) ([]tabs.Tab, error) {
	b, err := h.current()
	if err != nil {
		return nil, err
	}
	var wire []wireTab
	if err := b.call(ctx, methodTabsEnumerate, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]tabs.Tab, len(wire))
	for i, t := range wire {
		out[i] = t.toTab()
	}
	return out, nil
}

func (h *Hub) GetByID(ctx context.Context, id string) (tabs.Tab, error) {
	b, err := h.current()
	if err != nil {
		return tabs.Tab{}, err
	}
	var wire wireTab
	if err := b.call(ctx, methodTabsGet, map[string]string{"id": id}, &wire); err != nil {
		return tabs.Tab{}, err
	}
	return wire.toTab(), nil
}

func (h *Hub) Activate(ctx context.Context, id, windowID string) error {
	b, err := h.current()
	if err != nil {
		return err
	}
	return b.call(ctx, methodTabsActivate, map[string]string{"id": id, "windowId": windowID}, nil)
}

func (h *Hub) Open(ctx context.Context, url string) error {
	b, err := h.current()
	if err != nil {
		return err
	}
	return b.call(ctx, methodTabsOpen, map[string]string{"url": url}, nil)
}

func (h *Hub) Events() <-chan tabs.TabEvent {
	return h.tabEvents
}

// --- tabs.ContentSource ---

func (h *Hub) PageMeta(ctx context.Context, id string) (tabs.PageMeta, error) {
	b, err := h.current()
	if err != nil {
		return tabs.PageMeta{}, err
	}
	var wire wirePageMeta
	if err := b.call(ctx, methodPageMeta, map[string]string{"id": id}, &wire); err != nil {
		return tabs.PageMeta{}, err
	}
	return tabs.PageMeta{Description: wire.Description, Keywords: wire.Keywords}, nil
}

// --- tabs.SessionSource ---

func (h *Hub) EnumerateRecent(ctx context.Context, maxCount int) ([]tabs.ClosedSession, error) {
	b, err := h.current()
	if err != nil {
		return nil, err
	}
	var out []tabs.ClosedSession
	if err := b.call(ctx, methodSessionsRecent, map[string]int{"maxCount": maxCount}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Hub) Restore(ctx context.Context, sessionID string) error {
	b, err := h.current()
	if err != nil {
		return err
	}
	return b.call(ctx, methodSessionsRestore, map[string]string{"sessionId": sessionID}, nil)
}

// Bookmarks returns the hub's bookmark-source facet. A separate value because
// tab and bookmark sources both expose an Events method.
func (h *Hub) Bookmarks() tabs.BookmarkSource {
	return bookmarkFacet{h}
}

type bookmarkFacet struct {
	h *Hub
}

func (f bookmarkFacet) EnumerateTree(ctx context.Context) ([]tabs.BookmarkNode, error) {
	b, err := f.h.current()
	if err != nil {
		return nil, err
	}
	var wire []wireBookmarkNode
	if err := b.call(ctx, methodBookmarksTree, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]tabs.BookmarkNode, len(wire))
	for i, n := range wire {
		out[i] = n.toNode()
	}
	return out, nil
}

func (f bookmarkFacet) Events() <-chan tabs.BookmarkEvent {
	return f.h.bmEvents
}
