package tabs

import (
	"sort"
	"strings"

	"github.com/tablightapp/tablight/internal/rank"
)

// DefaultQuickAccess is the built-in catalog of browser-internal pages.
// User-defined entries from config are appended at catalog build time.
var DefaultQuickAccess = []QuickAccessEntry{
	{
		ID:       "browser-downloads",
		URL:      "chrome://downloads",
		Title:    "Downloads",
		Keywords: []string{"download", "downloads", "downloaded", "files"},
	},
	{
		ID:       "browser-password-manager",
		URL:      "chrome://password-manager",
		Title:    "Password Manager",
		Keywords: []string{"pass", "password", "passwords", "credentials", "login"},
	},
	{
		ID:       "browser-settings",
		URL:      "chrome://settings",
		Title:    "Settings",
		Keywords: []string{"setting", "settings", "preferences", "config", "options"},
	},
	{
		ID:       "browser-history",
		URL:      "chrome://history",
		Title:    "History",
		Keywords: []string{"history", "visited", "past", "browsing"},
	},
	{
		ID:       "browser-bookmarks",
		URL:      "chrome://bookmarks",
		Title:    "Bookmarks Manager",
		Keywords: []string{"bookmark", "bookmarks", "saved", "favorites"},
	},
}

// QuickAccessCatalog is an immutable set of quick-access entries. A new
// catalog is built on config reload and swapped in atomically by the engine.
type QuickAccessCatalog struct {
	entries []QuickAccessEntry
}

// NewQuickAccessCatalog builds a catalog from the defaults plus extra
// user-defined entries.
func NewQuickAccessCatalog(extra []QuickAccessEntry) *QuickAccessCatalog {
	entries := make([]QuickAccessEntry, 0, len(DefaultQuickAccess)+len(extra))
	entries = append(entries, DefaultQuickAccess...)
	entries = append(entries, extra...)
	return &QuickAccessCatalog{entries: entries}
}

// Entries returns the catalog contents.
func (c *QuickAccessCatalog) Entries() []QuickAccessEntry {
	return c.entries
}

// ByID returns the entry with the given id, if any.
func (c *QuickAccessCatalog) ByID(id string) (QuickAccessEntry, bool) {
	for _, e := range c.entries {
		if e.ID == id {
			return e, true
		}
	}
	return QuickAccessEntry{}, false
}

// Search scores the catalog against a query. Quick-access pages are
// query-only: an empty query returns nothing, they never appear in the
// default view.
func (c *QuickAccessCatalog) Search(query string) []ScoredQuickAccess {
	normalized := rank.Normalize(query)
	if normalized == "" {
		return nil
	}

	var matches []ScoredQuickAccess
	for _, e := range c.entries {
		keywords := make([]string, len(e.Keywords))
		for i, k := range e.Keywords {
			keywords[i] = strings.ToLower(k)
		}
		score := rank.ScoreQuickAccess(
			strings.ToLower(e.Title), strings.ToLower(e.URL), keywords, normalized,
		)
		if score <= 0 {
			continue
		}
		matches = append(matches, ScoredQuickAccess{QuickAccessEntry: e, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
