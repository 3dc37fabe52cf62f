package tabs

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tablightapp/tablight/internal/indexdb"
	"github.com/tablightapp/tablight/internal/logging"
)

var syncLog = logging.ForComponent(logging.CompSync)

// restrictedSchemes are never indexed. The synchronizer filters them before
// the store ever sees an upsert.
var restrictedSchemes = []string{"chrome://", "chrome-extension://"}

// unreachableSchemes cannot serve page metadata (no content receiver).
var unreachableSchemes = []string{
	"chrome://", "chrome-extension://", "about:", "file://", "edge://", "brave://",
}

// Indexable reports whether a tab URL belongs in the index.
func Indexable(url string) bool {
	if url == "" {
		return false
	}
	for _, scheme := range restrictedSchemes {
		if strings.HasPrefix(url, scheme) {
			return false
		}
	}
	return true
}

func metaReachable(url string) bool {
	if url == "" {
		return false
	}
	for _, scheme := range unreachableSchemes {
		if strings.HasPrefix(url, scheme) {
			return false
		}
	}
	return true
}

// Synchronizer subscribes to tab and bookmark lifecycle events and keeps the
// index store, activity tracker, and bookmark cache consistent. It is the
// sole writer of tracker state and owns the rebuild-on-attach protocol.
//
// Storage failures leave the store unopened; opening is retried on the next
// event rather than on a timer, and queries degrade to empty tab results in
// the meantime.
type Synchronizer struct {
	dbPath  string
	tabsSrc TabSource
	content ContentSource
	bmSrc   BookmarkSource

	tracker   *ActivityTracker
	bookmarks *BookmarkCache
	store     atomic.Pointer[indexdb.DB]

	// limiter throttles page-metadata fetches after load-complete events so
	// a burst of navigations doesn't hammer the collaborator.
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSynchronizer wires a synchronizer. content may be nil when no metadata
// collaborator exists.
func NewSynchronizer(dbPath string, tabsSrc TabSource, content ContentSource, bmSrc BookmarkSource, tracker *ActivityTracker, bookmarks *BookmarkCache) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		dbPath:    dbPath,
		tabsSrc:   tabsSrc,
		content:   content,
		bmSrc:     bmSrc,
		tracker:   tracker,
		bookmarks: bookmarks,
		limiter:   rate.NewLimiter(rate.Limit(10), 5),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Store returns the open index store, or nil while storage is unavailable.
func (s *Synchronizer) Store() *indexdb.DB {
	return s.store.Load()
}

// Run starts the event loop. It attempts an initial rebuild, then processes
// lifecycle notifications in arrival order until Close.
func (s *Synchronizer) Run() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.rebuild()
		s.loop()
	}()
}

// Close stops the event loop and closes the store.
func (s *Synchronizer) Close() {
	s.cancel()
	s.wg.Wait()
	if db := s.store.Swap(nil); db != nil {
		_ = db.Close()
	}
}

func (s *Synchronizer) loop() {
	tabEvents := s.tabsSrc.Events()
	var bmEvents <-chan BookmarkEvent
	if s.bmSrc != nil {
		bmEvents = s.bmSrc.Events()
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-tabEvents:
			if !ok {
				return
			}
			s.handleTabEvent(ev)
		case ev, ok := <-bmEvents:
			if !ok {
				bmEvents = nil
				continue
			}
			s.handleBookmarkEvent(ev)
		}
	}
}

// ensureStore opens the database lazily. A failure is logged and the next
// event retries.
func (s *Synchronizer) ensureStore() *indexdb.DB {
	if db := s.store.Load(); db != nil {
		return db
	}
	db, err := indexdb.Open(s.dbPath)
	if err != nil {
		syncLog.Warn("store_open_failed", slog.String("error", err.Error()))
		return nil
	}
	if !s.store.CompareAndSwap(nil, db) {
		_ = db.Close()
		return s.store.Load()
	}
	return db
}

// rebuild runs the one-time startup protocol: clear stale records, re-index
// every live tab in iteration order, rebuild the activity order, and refresh
// the bookmark cache. Queries issued mid-rebuild may see a partially
// populated store; that is accepted.
func (s *Synchronizer) rebuild() {
	db := s.ensureStore()
	if db == nil {
		return
	}

	stream, err := s.tabsSrc.EnumerateAll(s.ctx)
	if err != nil {
		syncLog.Warn("rebuild_enumerate_failed", slog.String("error", err.Error()))
		return
	}

	if err := db.Clear(); err != nil {
		syncLog.Warn("rebuild_clear_failed", slog.String("error", err.Error()))
		return
	}

	ids := make([]string, 0, len(stream))
	for _, tab := range stream {
		ids = append(ids, tab.ID)
		s.indexTab(db, tab)
	}
	s.tracker.Rebuild(ids)

	s.refreshBookmarks()

	syncLog.Info("rebuild_complete", slog.Int("tabs", len(ids)))
}

func (s *Synchronizer) refreshBookmarks() {
	if s.bmSrc == nil {
		return
	}
	tree, err := s.bmSrc.EnumerateTree(s.ctx)
	if err != nil {
		syncLog.Warn("bookmark_enumerate_failed", slog.String("error", err.Error()))
		return
	}
	s.bookmarks.Replace(tree)
}

func (s *Synchronizer) handleTabEvent(ev TabEvent) {
	logging.Aggregate(logging.CompSync, "tab_event", slog.String("kind", string(ev.Kind)))

	switch ev.Kind {
	case EventAttached:
		s.rebuild()

	case EventCreated:
		s.tracker.RecordActivation(ev.Tab.ID)
		if db := s.ensureStore(); db != nil {
			s.indexTab(db, ev.Tab)
		}

	case EventUpdated:
		if !ev.LoadComplete {
			return
		}
		if db := s.ensureStore(); db != nil {
			s.indexTab(db, ev.Tab)
		}
		s.requestMeta(ev.Tab)

	case EventActivated:
		s.tracker.RecordActivation(ev.ID)
		db := s.ensureStore()
		if db == nil {
			return
		}
		tab, err := s.tabsSrc.GetByID(s.ctx, ev.ID)
		if err != nil {
			// Tab may already be gone; treat as a no-op.
			return
		}
		tab.LastAccessed = time.Now()
		s.indexTab(db, tab)
		s.touchRecency(db, tab)

	case EventRemoved:
		s.tracker.RecordRemoval(ev.ID)
		if db := s.ensureStore(); db != nil {
			if err := db.RemoveTab(ev.ID); err != nil {
				syncLog.Warn("remove_failed", slog.String("tab_id", ev.ID), slog.String("error", err.Error()))
			}
			_ = db.RemoveRecency(ev.ID)
		}
	}
}

func (s *Synchronizer) handleBookmarkEvent(ev BookmarkEvent) {
	switch ev.Kind {
	case BookmarkCreated:
		s.bookmarks.Add(ev.Bookmark)
	case BookmarkRemoved:
		s.bookmarks.Remove(ev.ID)
	case BookmarkChanged:
		s.bookmarks.Change(ev.ID, ev.Change)
	}
}

func (s *Synchronizer) indexTab(db *indexdb.DB, tab Tab) {
	if !Indexable(tab.URL) {
		return
	}
	last := tab.LastAccessed
	if last.IsZero() {
		last = time.Now()
	}
	err := db.UpsertTab(&indexdb.TabRow{
		ID:              tab.ID,
		WindowID:        tab.WindowID,
		Title:           tab.Title,
		URL:             tab.URL,
		IconRef:         tab.IconRef,
		MetaDescription: tab.MetaDescription,
		MetaKeywords:    tab.MetaKeywords,
		LastAccessed:    last,
	})
	if err != nil {
		syncLog.Warn("upsert_failed", slog.String("tab_id", tab.ID), slog.String("error", err.Error()))
	}
}

func (s *Synchronizer) touchRecency(db *indexdb.DB, tab Tab) {
	if !Indexable(tab.URL) {
		return
	}
	_ = db.TouchRecency(&indexdb.RecencyRow{
		ID:       tab.ID,
		WindowID: tab.WindowID,
		Title:    tab.Title,
		URL:      tab.URL,
		IconRef:  tab.IconRef,
	})
}

// requestMeta asks the content collaborator for page description/keywords
// and folds them into the index. Unreachable pages are skipped silently and
// the indexed fields keep their prior values.
func (s *Synchronizer) requestMeta(tab Tab) {
	if s.content == nil || !metaReachable(tab.URL) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		meta, err := s.content.PageMeta(s.ctx, tab.ID)
		if err != nil {
			return
		}
		db := s.store.Load()
		if db == nil {
			return
		}
		tab.MetaDescription = meta.Description
		tab.MetaKeywords = meta.Keywords
		tab.LastAccessed = time.Now()
		s.indexTab(db, tab)
	}()
}
