package tabs

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/tablightapp/tablight/internal/indexdb"
	"github.com/tablightapp/tablight/internal/logging"
	"github.com/tablightapp/tablight/internal/rank"
)

var queryLog = logging.ForComponent(logging.CompQuery)

// DefaultResultLimit caps each result class unless configured otherwise.
const DefaultResultLimit = 5

// DefaultSessionFanOut bounds the per-query closed-session fetch.
const DefaultSessionFanOut = 25

// StoreProvider hands the aggregator the current index store. It returns nil
// while storage is unavailable (failed init, mid-rebuild); the aggregator
// degrades to empty tab results rather than erroring.
type StoreProvider func() *indexdb.DB

// Aggregator answers queries by fanning out to every candidate source and
// returning four independently capped, score-sorted lists. It performs no
// cross-list re-ranking. Safe to invoke concurrently; serialization of
// same-session queries is the caller's job.
type Aggregator struct {
	store     StoreProvider
	bookmarks *BookmarkCache
	quick     atomic.Pointer[QuickAccessCatalog]
	sessions  SessionSource

	limit  int
	fanout int
}

// NewAggregator wires an aggregator over its candidate sources.
// limit <= 0 and fanout <= 0 fall back to the defaults.
func NewAggregator(store StoreProvider, bookmarks *BookmarkCache, quick *QuickAccessCatalog, sessions SessionSource, limit, fanout int) *Aggregator {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	if fanout <= 0 {
		fanout = DefaultSessionFanOut
	}
	a := &Aggregator{
		store:     store,
		bookmarks: bookmarks,
		sessions:  sessions,
		limit:     limit,
		fanout:    fanout,
	}
	if quick == nil {
		quick = NewQuickAccessCatalog(nil)
	}
	a.quick.Store(quick)
	return a
}

// SetCatalog swaps the quick-access catalog, used on config reload.
func (a *Aggregator) SetCatalog(c *QuickAccessCatalog) {
	if c != nil {
		a.quick.Store(c)
	}
}

// Limit returns the per-class result cap.
func (a *Aggregator) Limit() int {
	return a.limit
}

// Query returns ranked results for text, excluding the caller's own tab from
// the open-tab class. Empty or whitespace-only text takes the defaults path.
func (a *Aggregator) Query(ctx context.Context, text, callerID string) ResultSet {
	normalized := rank.Normalize(text)
	if normalized == "" {
		return a.Defaults(ctx, callerID)
	}

	logging.Aggregate(logging.CompQuery, "query_served", slog.Int("len", len(normalized)))

	return ResultSet{
		Tabs:           a.searchTabs(normalized, callerID),
		Bookmarks:      a.bookmarks.Search(normalized, a.limit),
		QuickAccess:    a.searchQuickAccess(normalized),
		RecentlyClosed: a.searchClosedSessions(ctx, normalized),
	}
}

// Defaults is the empty-query result set: recency-ordered tabs excluding the
// caller, newest bookmarks, no quick-access entries, and the most recently
// closed sessions unscored.
func (a *Aggregator) Defaults(ctx context.Context, callerID string) ResultSet {
	logging.Aggregate(logging.CompQuery, "defaults_served")

	return ResultSet{
		Tabs:           a.recentTabs(callerID),
		Bookmarks:      a.bookmarks.Search("", a.limit),
		QuickAccess:    nil,
		RecentlyClosed: a.recentClosedSessions(ctx),
	}
}

func (a *Aggregator) searchTabs(normalized, callerID string) []ScoredTab {
	db := a.store()
	if db == nil {
		return nil
	}
	rows, err := db.SearchTabs(normalized, a.limit)
	if err != nil {
		queryLog.Warn("tab_search_failed", slog.String("error", err.Error()))
		return nil
	}
	out := make([]ScoredTab, 0, len(rows))
	for _, r := range rows {
		if r.ID == callerID {
			continue
		}
		out = append(out, ScoredTab{Tab: tabFromRow(&r.TabRow), Score: r.Score})
	}
	return out
}

func (a *Aggregator) recentTabs(callerID string) []ScoredTab {
	db := a.store()
	if db == nil {
		return nil
	}
	rows, err := db.RecentTabs(callerID, a.limit)
	if err != nil {
		queryLog.Warn("recent_tabs_failed", slog.String("error", err.Error()))
		return nil
	}
	out := make([]ScoredTab, 0, len(rows))
	for _, r := range rows {
		out = append(out, ScoredTab{Tab: tabFromRow(r)})
	}
	return out
}

func (a *Aggregator) searchQuickAccess(normalized string) []ScoredQuickAccess {
	matches := a.quick.Load().Search(normalized)
	if len(matches) > a.limit {
		matches = matches[:a.limit]
	}
	return matches
}

func (a *Aggregator) searchClosedSessions(ctx context.Context, normalized string) []ScoredSession {
	if a.sessions == nil {
		return nil
	}
	sessions, err := a.sessions.EnumerateRecent(ctx, a.fanout)
	if err != nil {
		// Transient source error: degrade to an empty class.
		return nil
	}

	terms := rank.Terms(normalized)
	var scored []ScoredSession
	for _, s := range sessions {
		score := rank.ScoreClosedSession(
			strings.ToLower(s.Title), strings.ToLower(s.URL), terms, normalized,
		)
		if score <= 0 {
			continue
		}
		scored = append(scored, ScoredSession{ClosedSession: s, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > a.limit {
		scored = scored[:a.limit]
	}
	return scored
}

func (a *Aggregator) recentClosedSessions(ctx context.Context) []ScoredSession {
	if a.sessions == nil {
		return nil
	}
	// Fetch double the cap: the source may interleave whole-window entries
	// the collaborator already filtered out.
	sessions, err := a.sessions.EnumerateRecent(ctx, a.limit*2)
	if err != nil {
		return nil
	}
	if len(sessions) > a.limit {
		sessions = sessions[:a.limit]
	}
	out := make([]ScoredSession, len(sessions))
	for i, s := range sessions {
		out[i] = ScoredSession{ClosedSession: s}
	}
	return out
}

func tabFromRow(r *indexdb.TabRow) Tab {
	return Tab{
		ID:              r.ID,
		WindowID:        r.WindowID,
		Title:           r.Title,
		URL:             r.URL,
		IconRef:         r.IconRef,
		MetaDescription: r.MetaDescription,
		MetaKeywords:    r.MetaKeywords,
		LastAccessed:    r.LastAccessed,
	}
}
