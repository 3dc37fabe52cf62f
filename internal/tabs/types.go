// Package tabs is the ranking engine: it keeps the tab index and activity
// order synchronized with the browser-side collaborator and answers ranked
// queries across open tabs, bookmarks, quick-access pages, and recently
// closed sessions.
package tabs

import "time"

// Tab is one live browser tab as reported by the lifecycle source.
type Tab struct {
	ID              string    `json:"id"`
	WindowID        string    `json:"windowId"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	IconRef         string    `json:"iconRef,omitempty"`
	MetaDescription string    `json:"metaDescription,omitempty"`
	MetaKeywords    string    `json:"metaKeywords,omitempty"`
	LastAccessed    time.Time `json:"lastAccessed,omitempty"`
}

// Bookmark is a cached mirror of one external bookmark; never authoritative.
type Bookmark struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	DateAdded time.Time `json:"dateAdded,omitempty"`
}

// QuickAccessEntry is a static catalog entry for a browser-internal page.
// Immutable at runtime; surfaced only on non-empty queries.
type QuickAccessEntry struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
}

// ClosedSession is a recently closed tab, fetched fresh per query and never
// cached beyond one query lifetime.
type ClosedSession struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	IconRef   string `json:"iconRef,omitempty"`
}

// ScoredTab pairs a tab with its relevance score.
type ScoredTab struct {
	Tab
	Score int `json:"score"`
}

// ScoredBookmark pairs a bookmark with its relevance score.
type ScoredBookmark struct {
	Bookmark
	Score int `json:"score"`
}

// ScoredQuickAccess pairs a quick-access entry with its relevance score.
type ScoredQuickAccess struct {
	QuickAccessEntry
	Score int `json:"score"`
}

// ScoredSession pairs a closed session with its relevance score.
type ScoredSession struct {
	ClosedSession
	Score int `json:"score"`
}

// ResultSet is the aggregator's answer: four independently capped,
// score-sorted lists. The classes are never merged or re-ranked against each
// other; presentation order across classes is the caller's policy.
type ResultSet struct {
	Tabs           []ScoredTab         `json:"tabs"`
	Bookmarks      []ScoredBookmark    `json:"bookmarks"`
	QuickAccess    []ScoredQuickAccess `json:"quickAccess"`
	RecentlyClosed []ScoredSession     `json:"recentlyClosed"`
}
