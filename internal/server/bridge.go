package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tablightapp/tablight/internal/logging"
	"github.com/tablightapp/tablight/internal/tabs"
)

var bridgeLog = logging.ForComponent(logging.CompBridge)

// callTimeout bounds one round-trip to the browser collaborator.
const callTimeout = 10 * time.Second

// Bridge method names understood by the browser collaborator.
const (
	methodTabsEnumerate   = "tabs.enumerate"
	methodTabsGet         = "tabs.get"
	methodTabsActivate    = "tabs.activate"
	methodTabsOpen        = "tabs.open"
	methodPageMeta        = "page.meta"
	methodBookmarksTree   = "bookmarks.tree"
	methodSessionsRecent  = "sessions.recent"
	methodSessionsRestore = "sessions.restore"
)

// bridgeCall is one daemon-to-browser request.
type bridgeCall struct {
	Type   string `json:"type"` // always "call"
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// bridgeInbound is any browser-to-daemon message: a call result, a tab
// lifecycle event, or a bookmark event.
type bridgeInbound struct {
	Type string `json:"type"` // result, event, bookmark, hello

	// result
	CallID  string          `json:"callId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`

	// event / bookmark
	Kind         string        `json:"kind,omitempty"`
	ID           string        `json:"id,omitempty"`
	Tab          *wireTab      `json:"tab,omitempty"`
	LoadComplete bool          `json:"loadComplete,omitempty"`
	Bookmark     *wireBookmark `json:"bookmark,omitempty"`
	Title        *string       `json:"title,omitempty"`
	URL          *string       `json:"url,omitempty"`
}

// wireTab mirrors tabs.Tab with a millisecond epoch timestamp, matching what
// the browser collaborator reports.
type wireTab struct {
	ID              string `json:"id"`
	WindowID        string `json:"windowId"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	IconRef         string `json:"iconRef,omitempty"`
	MetaDescription string `json:"metaDescription,omitempty"`
	MetaKeywords    string `json:"metaKeywords,omitempty"`
	LastAccessed    int64  `json:"lastAccessed,omitempty"`
}

func (t wireTab) toTab() tabs.Tab {
	out := tabs.Tab{
		ID:              t.ID,
		WindowID:        t.WindowID,
		Title:           t.Title,
		URL:             t.URL,
		IconRef:         t.IconRef,
		MetaDescription: t.MetaDescription,
		MetaKeywords:    t.MetaKeywords,
	}
	if t.LastAccessed > 0 {
		out.LastAccessed = time.UnixMilli(t.LastAccessed)
	}
	return out
}

type wireBookmark struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	DateAdded int64  `json:"dateAdded,omitempty"`
}

func (b wireBookmark) toBookmark() tabs.Bookmark {
	out := tabs.Bookmark{ID: b.ID, Title: b.Title, URL: b.URL}
	if b.DateAdded > 0 {
		out.DateAdded = time.UnixMilli(b.DateAdded)
	}
	return out
}

type wireBookmarkNode struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	URL       string             `json:"url,omitempty"`
	DateAdded int64              `json:"dateAdded,omitempty"`
	Children  []wireBookmarkNode `json:"children,omitempty"`
}

func (n wireBookmarkNode) toNode() tabs.BookmarkNode {
	out := tabs.BookmarkNode{ID: n.ID, Title: n.Title, URL: n.URL}
	if n.DateAdded > 0 {
		out.DateAdded = time.UnixMilli(n.DateAdded)
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.toNode())
	}
	return out
}

type wirePageMeta struct {
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
}

type callResult struct {
	payload json.RawMessage
	err     string
}

// Bridge is one connected browser collaborator. The daemon issues calls over
// it and receives lifecycle events from it; call results are correlated by
// generated id.
type Bridge struct {
	conn *websocket.Conn
	hub  *Hub

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan callResult

	closed    chan struct{}
	closeOnce sync.Once
}

func newBridge(conn *websocket.Conn, hub *Hub) *Bridge {
	return &Bridge{
		conn:    conn,
		hub:     hub,
		pending: make(map[string]chan callResult),
		closed:  make(chan struct{}),
	}
}

// close marks the bridge dead and fails every in-flight call.
func (b *Bridge) close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		_ = b.conn.Close()

		b.pendingMu.Lock()
		for id, ch := range b.pending {
			delete(b.pending, id)
			ch <- callResult{err: "bridge disconnected"}
		}
		b.pendingMu.Unlock()
	})
}

func (b *Bridge) writeJSON(v any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(v)
}

// call performs one round-trip: send a call frame, wait for the matching
// result. out may be nil for methods without a payload.
func (b *Bridge) call(ctx context.Context, method string, params, out any) error {
	id := uuid.NewString()
	ch := make(chan callResult, 1)

	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()

	cleanup := func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}

	if err := b.writeJSON(bridgeCall{Type: "call", ID: id, Method: method, Params: params}); err != nil {
		cleanup()
		return tabs.ErrUnavailable
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		cleanup()
		return ctx.Err()
	case <-b.closed:
		cleanup()
		return tabs.ErrUnavailable
	case <-timer.C:
		cleanup()
		return fmt.Errorf("server: %s: %w", method, context.DeadlineExceeded)
	case res := <-ch:
		if res.err != "" {
			return fmt.Errorf("server: %s: %s", method, res.err)
		}
		if out == nil || len(res.payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.payload, out); err != nil {
			return fmt.Errorf("server: %s: decode result: %w", method, err)
		}
		return nil
	}
}

// readLoop consumes browser messages until the connection drops.
func (b *Bridge) readLoop() {
	defer b.close()
	for {
		var msg bridgeInbound
		if err := b.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				bridgeLog.Warn("bridge_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		b.dispatch(msg)
	}
}

func (b *Bridge) dispatch(msg bridgeInbound) {
	switch msg.Type {
	case "result":
		b.pendingMu.Lock()
		ch, ok := b.pending[msg.CallID]
		if ok {
			delete(b.pending, msg.CallID)
		}
		b.pendingMu.Unlock()
		if !ok {
			// Late result for a timed-out or superseded call.
			return
		}
		ch <- callResult{payload: msg.Payload, err: msg.Error}

	case "event":
		ev := tabs.TabEvent{
			Kind:         tabs.TabEventKind(msg.Kind),
			ID:           msg.ID,
			LoadComplete: msg.LoadComplete,
		}
		if msg.Tab != nil {
			ev.Tab = msg.Tab.toTab()
			if ev.ID == "" {
				ev.ID = ev.Tab.ID
			}
		}
		b.hub.deliverTabEvent(ev)

	case "bookmark":
		ev := tabs.BookmarkEvent{
			Kind:   tabs.BookmarkEventKind(msg.Kind),
			ID:     msg.ID,
			Change: tabs.BookmarkChange{Title: msg.Title, URL: msg.URL},
		}
		if msg.Bookmark != nil {
			ev.Bookmark = msg.Bookmark.toBookmark()
			if ev.ID == "" {
				ev.ID = ev.Bookmark.ID
			}
		}
		b.hub.deliverBookmarkEvent(ev)

	case "hello":
		// Connection preamble, nothing to do.

	default:
		bridgeLog.Warn("bridge_unknown_message", slog.String("type", msg.Type))
	}
}
