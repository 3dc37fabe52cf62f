package tabs

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by sources when the browser-side collaborator
// cannot be reached. Callers treat it as transient: the operation becomes a
// no-op and is not surfaced.
var ErrUnavailable = errors.New("tabs: collaborator unavailable")

// TabEventKind identifies a lifecycle notification.
type TabEventKind string

const (
	// EventAttached fires when a collaborator (re)connects and its tab set
	// becomes visible; it triggers the one-time rebuild protocol.
	EventAttached  TabEventKind = "attached"
	EventCreated   TabEventKind = "created"
	EventUpdated   TabEventKind = "updated"
	EventActivated TabEventKind = "activated"
	EventRemoved   TabEventKind = "removed"
)

// TabEvent is one lifecycle notification from the tab source.
type TabEvent struct {
	Kind TabEventKind
	ID   string
	Tab  Tab
	// LoadComplete is set on EventUpdated when the page finished loading;
	// reindexing only happens then.
	LoadComplete bool
}

// TabSource is the browser-side tab lifecycle collaborator.
type TabSource interface {
	EnumerateAll(ctx context.Context) ([]Tab, error)
	GetByID(ctx context.Context, id string) (Tab, error)
	Activate(ctx context.Context, id, windowID string) error
	Open(ctx context.Context, url string) error
	// Events delivers lifecycle notifications in arrival order.
	Events() <-chan TabEvent
}

// PageMeta is metadata extracted from a tab's rendered document.
type PageMeta struct {
	Description string
	Keywords    string
}

// ContentSource extracts page metadata on demand. It may fail for restricted
// or unloaded pages; failures are skipped silently.
type ContentSource interface {
	PageMeta(ctx context.Context, id string) (PageMeta, error)
}

// BookmarkEventKind identifies a bookmark notification.
type BookmarkEventKind string

const (
	BookmarkCreated BookmarkEventKind = "created"
	BookmarkRemoved BookmarkEventKind = "removed"
	BookmarkChanged BookmarkEventKind = "changed"
)

// BookmarkChange carries the changed fields of a bookmark; nil means
// unchanged.
type BookmarkChange struct {
	Title *string
	URL   *string
}

// BookmarkEvent is one bookmark notification.
type BookmarkEvent struct {
	Kind     BookmarkEventKind
	ID       string
	Bookmark Bookmark
	Change   BookmarkChange
}

// BookmarkNode is one node of the external bookmark tree. Folder nodes have
// no URL and carry children.
type BookmarkNode struct {
	ID        string
	Title     string
	URL       string
	DateAdded time.Time
	Children  []BookmarkNode
}

// BookmarkSource is the external bookmark collaborator.
type BookmarkSource interface {
	EnumerateTree(ctx context.Context) ([]BookmarkNode, error)
	Events() <-chan BookmarkEvent
}

// SessionSource is the closed-session collaborator.
type SessionSource interface {
	EnumerateRecent(ctx context.Context, maxCount int) ([]ClosedSession, error)
	Restore(ctx context.Context, sessionID string) error
}
