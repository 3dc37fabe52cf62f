package tabs

import (
	"sort"
	"strings"
	"sync"

	"github.com/tablightapp/tablight/internal/rank"
)

// BookmarkCache mirrors the external bookmark tree in memory so queries
// never round-trip to the collaborator per keystroke. It is refreshed by
// create/remove/change notifications and read-only to the aggregator.
type BookmarkCache struct {
	mu      sync.RWMutex
	entries []Bookmark
}

// NewBookmarkCache returns an empty cache.
func NewBookmarkCache() *BookmarkCache {
	return &BookmarkCache{}
}

// Replace swaps the cache contents with the flattened bookmark tree.
// Folder nodes (no URL) are skipped.
func (c *BookmarkCache) Replace(tree []BookmarkNode) {
	var flat []Bookmark
	var walk func(nodes []BookmarkNode)
	walk = func(nodes []BookmarkNode) {
		for _, node := range nodes {
			if node.URL != "" {
				flat = append(flat, Bookmark{
					ID:        node.ID,
					Title:     node.Title,
					URL:       node.URL,
					DateAdded: node.DateAdded,
				})
			}
			if len(node.Children) > 0 {
				walk(node.Children)
			}
		}
	}
	walk(tree)

	c.mu.Lock()
	c.entries = flat
	c.mu.Unlock()
}

// Add appends a bookmark. Entries without a URL (folders) are ignored.
func (c *BookmarkCache) Add(b Bookmark) {
	if b.URL == "" {
		return
	}
	c.mu.Lock()
	c.entries = append(c.entries, b)
	c.mu.Unlock()
}

// Remove drops a bookmark by id.
func (c *BookmarkCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range c.entries {
		if b.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// Change applies a title/url change notification to a cached bookmark.
// Unknown ids are ignored.
func (c *BookmarkCache) Change(id string, change BookmarkChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].ID != id {
			continue
		}
		if change.Title != nil {
			c.entries[i].Title = *change.Title
		}
		if change.URL != nil {
			c.entries[i].URL = *change.URL
		}
		return
	}
}

// ByURL returns the cached bookmark with the given URL, if any.
func (c *BookmarkCache) ByURL(url string) (Bookmark, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.entries {
		if b.URL == url {
			return b, true
		}
	}
	return Bookmark{}, false
}

// Len returns the number of cached bookmarks.
func (c *BookmarkCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Search scores cached bookmarks against the query (title and URL only) and
// returns up to limit matches. An empty query returns the most recently
// added bookmarks unscored, for the default view.
func (c *BookmarkCache) Search(query string, limit int) []ScoredBookmark {
	c.mu.RLock()
	snapshot := make([]Bookmark, len(c.entries))
	copy(snapshot, c.entries)
	c.mu.RUnlock()

	normalized := rank.Normalize(query)
	if normalized == "" {
		sort.Slice(snapshot, func(i, j int) bool {
			return snapshot[i].DateAdded.After(snapshot[j].DateAdded)
		})
		if limit > 0 && len(snapshot) > limit {
			snapshot = snapshot[:limit]
		}
		out := make([]ScoredBookmark, len(snapshot))
		for i, b := range snapshot {
			out[i] = ScoredBookmark{Bookmark: b}
		}
		return out
	}

	terms := rank.Terms(normalized)
	var scored []ScoredBookmark
	for _, b := range snapshot {
		score := rank.ScoreBookmark(
			strings.ToLower(b.Title), strings.ToLower(b.URL), terms, normalized,
		)
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredBookmark{Bookmark: b, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].DateAdded.After(scored[j].DateAdded)
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}
