package tabs

import (
	"context"
	"log/slog"

	"github.com/tablightapp/tablight/internal/logging"
)

// Engine bundles the synchronizer, aggregator, and command operations into
// the surface consumed by the query interface.
type Engine struct {
	sync      *Synchronizer
	agg       *Aggregator
	tabsSrc   TabSource
	sessions  SessionSource
	bookmarks *BookmarkCache
	tracker   *ActivityTracker
	log       *slog.Logger
}

// EngineConfig configures a new engine.
type EngineConfig struct {
	DBPath string
	// ResultLimit caps each result class; 0 means the default.
	ResultLimit int
	// SessionFanOut bounds the per-query closed-session fetch; 0 means the
	// default.
	SessionFanOut int
	// QuickAccess holds user-defined catalog entries appended to the
	// built-in set.
	QuickAccess []QuickAccessEntry
}

// NewEngine wires the engine over its collaborators. content may be nil.
func NewEngine(cfg EngineConfig, tabsSrc TabSource, content ContentSource, bmSrc BookmarkSource, sessions SessionSource) *Engine {
	tracker := NewActivityTracker()
	bookmarks := NewBookmarkCache()
	sync := NewSynchronizer(cfg.DBPath, tabsSrc, content, bmSrc, tracker, bookmarks)
	agg := NewAggregator(
		sync.Store, bookmarks, NewQuickAccessCatalog(cfg.QuickAccess),
		sessions, cfg.ResultLimit, cfg.SessionFanOut,
	)
	return &Engine{
		sync:      sync,
		agg:       agg,
		tabsSrc:   tabsSrc,
		sessions:  sessions,
		bookmarks: bookmarks,
		tracker:   tracker,
		log:       logging.ForComponent(logging.CompSync),
	}
}

// Start begins lifecycle event processing.
func (e *Engine) Start() {
	e.sync.Run()
}

// Close stops event processing and releases the store.
func (e *Engine) Close() {
	e.sync.Close()
}

// Search answers a ranked query, excluding the caller's own tab.
func (e *Engine) Search(ctx context.Context, text, callerID string) ResultSet {
	return e.agg.Query(ctx, text, callerID)
}

// Defaults answers the empty-query result set.
func (e *Engine) Defaults(ctx context.Context, callerID string) ResultSet {
	return e.agg.Defaults(ctx, callerID)
}

// SetCatalog swaps the quick-access catalog, used on config reload.
func (e *Engine) SetCatalog(extra []QuickAccessEntry) {
	e.agg.SetCatalog(NewQuickAccessCatalog(extra))
}

// Tracker exposes the activity order for diagnostics.
func (e *Engine) Tracker() *ActivityTracker {
	return e.tracker
}

// ActivateTab switches focus to a tab. Fire-and-forget: failures are logged,
// never surfaced to the user.
func (e *Engine) ActivateTab(ctx context.Context, id, windowID string) {
	if err := e.tabsSrc.Activate(ctx, id, windowID); err != nil {
		e.log.Warn("activate_failed", slog.String("tab_id", id), slog.String("error", err.Error()))
	}
}

// RestoreSession reopens a recently closed session.
func (e *Engine) RestoreSession(ctx context.Context, sessionID string) {
	if err := e.sessions.Restore(ctx, sessionID); err != nil {
		e.log.Warn("restore_failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
	}
}

// OpenURL opens a URL in a new tab. When the URL matches a cached bookmark,
// its usage row is bumped.
func (e *Engine) OpenURL(ctx context.Context, url string) {
	if err := e.tabsSrc.Open(ctx, url); err != nil {
		e.log.Warn("open_failed", slog.String("url", url), slog.String("error", err.Error()))
		return
	}
	if b, ok := e.bookmarks.ByURL(url); ok {
		if db := e.sync.Store(); db != nil {
			_ = db.RecordBookmarkUsage(b.ID, b.URL)
		}
	}
}
