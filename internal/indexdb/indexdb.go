// Package indexdb owns the durable tab index: a SQLite database holding the
// authoritative set of currently known tabs plus the bookmark-usage,
// recency-ledger, and settings collections.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tablightapp/tablight/internal/rank"
)

// SchemaVersion tracks the current database schema version.
// Migrations are additive only: a later version adds collections or indexes,
// never removes them.
const SchemaVersion = 3

// recencyCap bounds the persisted recency ledger.
const recencyCap = 10

// DB wraps a SQLite database for the tab index.
// Thread-safe for concurrent use from multiple goroutines within one process.
type DB struct {
	db *sql.DB
}

// TabRow is one indexed tab. SearchBlob is derived from the other fields on
// every write and never mutated independently.
type TabRow struct {
	ID              string
	WindowID        string
	Title           string
	URL             string
	IconRef         string
	MetaDescription string
	MetaKeywords    string
	LastAccessed    time.Time
}

// ScoredTab is a TabRow with its relevance score, produced by SearchTabs.
type ScoredTab struct {
	TabRow
	Score int
}

// RecencyRow is one entry in the persisted recency ledger.
type RecencyRow struct {
	ID         string
	WindowID   string
	Title      string
	URL        string
	IconRef    string
	AccessedAt time.Time
}

// BookmarkUsageRow records how often a bookmark has been opened.
type BookmarkUsageRow struct {
	ID           string
	URL          string
	LastAccessed time.Time
	AccessCount  int
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy
// timeout, then runs pending migrations.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("indexdb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("indexdb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexdb: wal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexdb: busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexdb: foreign keys: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close checkpoints WAL and closes the database.
func (d *DB) Close() error {
	_, _ = d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return d.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g. testing).
func (d *DB) DB() *sql.DB {
	return d.db
}

// migrations run in order from the stored schema version. Each step is
// idempotent (IF NOT EXISTS throughout) so a partially applied upgrade can
// be re-run safely.
var migrations = []func(tx *sql.Tx) error{
	migrateV1Tabs,
	migrateV2UsageAndRecency,
	migrateV3Settings,
}

func (d *DB) migrate() error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("indexdb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("indexdb: create metadata: %w", err)
	}

	stored := 0
	var value string
	err = tx.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		// Fresh database, run everything.
	case err != nil:
		return fmt.Errorf("indexdb: read schema version: %w", err)
	default:
		stored, err = strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("indexdb: parse schema version %q: %w", value, err)
		}
	}

	for v := stored; v < SchemaVersion; v++ {
		if err := migrations[v](tx); err != nil {
			return fmt.Errorf("indexdb: migrate to v%d: %w", v+1, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)",
		strconv.Itoa(SchemaVersion),
	); err != nil {
		return fmt.Errorf("indexdb: set schema version: %w", err)
	}

	return tx.Commit()
}

func migrateV1Tabs(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS tabs (
			id               TEXT PRIMARY KEY,
			window_id        TEXT NOT NULL DEFAULT '',
			title            TEXT NOT NULL DEFAULT '',
			url              TEXT NOT NULL DEFAULT '',
			icon_ref         TEXT NOT NULL DEFAULT '',
			meta_description TEXT NOT NULL DEFAULT '',
			meta_keywords    TEXT NOT NULL DEFAULT '',
			last_accessed    INTEGER NOT NULL DEFAULT 0,
			search_blob      TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return err
	}
	_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_tabs_last_accessed ON tabs (last_accessed)")
	return err
}

func migrateV2UsageAndRecency(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS bookmark_usage (
			id            TEXT PRIMARY KEY,
			url           TEXT NOT NULL DEFAULT '',
			last_accessed INTEGER NOT NULL DEFAULT 0,
			access_count  INTEGER NOT NULL DEFAULT 1
		)
	`); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS recency (
			id          TEXT PRIMARY KEY,
			window_id   TEXT NOT NULL DEFAULT '',
			title       TEXT NOT NULL DEFAULT '',
			url         TEXT NOT NULL DEFAULT '',
			icon_ref    TEXT NOT NULL DEFAULT '',
			accessed_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return err
	}
	_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_recency_accessed_at ON recency (accessed_at)")
	return err
}

func migrateV3Settings(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// SchemaVersionStored reads the schema version recorded in metadata.
func (d *DB) SchemaVersionStored() (int, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// --- Tab index ---

// searchBlob derives the lower-cased concatenation used for matching.
func searchBlob(r *TabRow) string {
	return strings.ToLower(strings.Join([]string{
		r.Title, r.URL, r.MetaDescription, r.MetaKeywords,
	}, " "))
}

// UpsertTab inserts or fully replaces a tab keyed by id, recomputing the
// search blob from the written fields.
func (d *DB) UpsertTab(r *TabRow) error {
	if r.LastAccessed.IsZero() {
		r.LastAccessed = time.Now()
	}
	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO tabs (
			id, window_id, title, url, icon_ref,
			meta_description, meta_keywords, last_accessed, search_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.WindowID, r.Title, r.URL, r.IconRef,
		r.MetaDescription, r.MetaKeywords, r.LastAccessed.UnixMilli(), searchBlob(r),
	)
	if err != nil {
		return fmt.Errorf("indexdb: upsert tab %s: %w", r.ID, err)
	}
	return nil
}

// RemoveTab deletes a tab by id. Removing an unknown id is a no-op.
func (d *DB) RemoveTab(id string) error {
	_, err := d.db.Exec("DELETE FROM tabs WHERE id = ?", id)
	return err
}

// GetTab returns a tab by id, or nil if not indexed.
func (d *DB) GetTab(id string) (*TabRow, error) {
	row := d.db.QueryRow(`
		SELECT id, window_id, title, url, icon_ref,
			meta_description, meta_keywords, last_accessed
		FROM tabs WHERE id = ?
	`, id)
	r, err := scanTab(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// AllTabs returns every indexed tab.
func (d *DB) AllTabs() ([]*TabRow, error) {
	rows, err := d.db.Query(`
		SELECT id, window_id, title, url, icon_ref,
			meta_description, meta_keywords, last_accessed
		FROM tabs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*TabRow
	for rows.Next() {
		r, err := scanTab(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Clear removes every indexed tab. Used by the startup rebuild so records
// from a prior process incarnation never survive.
func (d *DB) Clear() error {
	_, err := d.db.Exec("DELETE FROM tabs")
	return err
}

// TabCount returns the number of indexed tabs.
func (d *DB) TabCount() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM tabs").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTab(s rowScanner) (*TabRow, error) {
	r := &TabRow{}
	var accessed int64
	if err := s.Scan(
		&r.ID, &r.WindowID, &r.Title, &r.URL, &r.IconRef,
		&r.MetaDescription, &r.MetaKeywords, &accessed,
	); err != nil {
		return nil, err
	}
	if accessed > 0 {
		r.LastAccessed = time.UnixMilli(accessed)
	}
	return r, nil
}

// SearchTabs scores every indexed tab against the query and returns up to
// limit results with score > 0, ordered by score then recency.
// An empty or whitespace-only query returns nothing: search is query-driven,
// recency listing is RecentTabs.
func (d *DB) SearchTabs(query string, limit int) ([]*ScoredTab, error) {
	normalized := rank.Normalize(query)
	if normalized == "" {
		return nil, nil
	}
	terms := rank.Terms(normalized)

	all, err := d.AllTabs()
	if err != nil {
		return nil, err
	}

	scored := make([]*ScoredTab, 0, len(all))
	for _, r := range all {
		score := rank.Score(rank.Fields{
			Title:       strings.ToLower(r.Title),
			URL:         strings.ToLower(r.URL),
			Description: strings.ToLower(r.MetaDescription),
			Keywords:    strings.ToLower(r.MetaKeywords),
		}, terms, normalized)
		if score <= 0 {
			continue
		}
		scored = append(scored, &ScoredTab{TabRow: *r, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].LastAccessed.After(scored[j].LastAccessed)
	})

	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// RecentTabs returns tabs ordered by last access, newest first, excluding
// excludeID (pass "" to exclude nothing). No scoring.
func (d *DB) RecentTabs(excludeID string, limit int) ([]*TabRow, error) {
	rows, err := d.db.Query(`
		SELECT id, window_id, title, url, icon_ref,
			meta_description, meta_keywords, last_accessed
		FROM tabs WHERE id != ?
		ORDER BY last_accessed DESC LIMIT ?
	`, excludeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*TabRow
	for rows.Next() {
		r, err := scanTab(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// --- Recency ledger ---

// TouchRecency upserts a ledger entry and trims the ledger to its cap,
// dropping the oldest entries.
func (d *DB) TouchRecency(r *RecencyRow) error {
	if r.AccessedAt.IsZero() {
		r.AccessedAt = time.Now()
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO recency (id, window_id, title, url, icon_ref, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.WindowID, r.Title, r.URL, r.IconRef, r.AccessedAt.UnixMilli()); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		DELETE FROM recency WHERE id NOT IN (
			SELECT id FROM recency ORDER BY accessed_at DESC LIMIT ?
		)
	`, recencyCap); err != nil {
		return err
	}

	return tx.Commit()
}

// RecentlyAccessed returns ledger entries newest first.
func (d *DB) RecentlyAccessed(limit int) ([]*RecencyRow, error) {
	rows, err := d.db.Query(`
		SELECT id, window_id, title, url, icon_ref, accessed_at
		FROM recency ORDER BY accessed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*RecencyRow
	for rows.Next() {
		r := &RecencyRow{}
		var accessed int64
		if err := rows.Scan(&r.ID, &r.WindowID, &r.Title, &r.URL, &r.IconRef, &accessed); err != nil {
			return nil, err
		}
		if accessed > 0 {
			r.AccessedAt = time.UnixMilli(accessed)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// RemoveRecency deletes a ledger entry by id.
func (d *DB) RemoveRecency(id string) error {
	_, err := d.db.Exec("DELETE FROM recency WHERE id = ?", id)
	return err
}

// ClearRecency empties the ledger.
func (d *DB) ClearRecency() error {
	_, err := d.db.Exec("DELETE FROM recency")
	return err
}

// --- Bookmark usage ---

// RecordBookmarkUsage upserts a usage row, bumping the access count on
// repeat opens.
func (d *DB) RecordBookmarkUsage(id, url string) error {
	_, err := d.db.Exec(`
		INSERT INTO bookmark_usage (id, url, last_accessed, access_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			last_accessed = excluded.last_accessed,
			access_count = access_count + 1
	`, id, url, time.Now().UnixMilli())
	return err
}

// GetBookmarkUsage returns usage for a bookmark, or nil if never opened.
func (d *DB) GetBookmarkUsage(id string) (*BookmarkUsageRow, error) {
	r := &BookmarkUsageRow{}
	var accessed int64
	err := d.db.QueryRow(
		"SELECT id, url, last_accessed, access_count FROM bookmark_usage WHERE id = ?", id,
	).Scan(&r.ID, &r.URL, &accessed, &r.AccessCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if accessed > 0 {
		r.LastAccessed = time.UnixMilli(accessed)
	}
	return r, nil
}

// AllBookmarkUsage returns every usage row, most used first.
func (d *DB) AllBookmarkUsage() ([]*BookmarkUsageRow, error) {
	rows, err := d.db.Query(`
		SELECT id, url, last_accessed, access_count
		FROM bookmark_usage ORDER BY access_count DESC, last_accessed DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*BookmarkUsageRow
	for rows.Next() {
		r := &BookmarkUsageRow{}
		var accessed int64
		if err := rows.Scan(&r.ID, &r.URL, &accessed, &r.AccessCount); err != nil {
			return nil, err
		}
		if accessed > 0 {
			r.LastAccessed = time.UnixMilli(accessed)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// RemoveBookmarkUsage deletes usage for a bookmark.
func (d *DB) RemoveBookmarkUsage(id string) error {
	_, err := d.db.Exec("DELETE FROM bookmark_usage WHERE id = ?", id)
	return err
}

// --- Settings ---

// SetSetting stores a key-value setting.
func (d *DB) SetSetting(key, value string) error {
	_, err := d.db.Exec(
		"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value,
	)
	return err
}

// GetSetting returns a setting value, or "" if not set.
func (d *DB) GetSetting(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// RemoveSetting deletes a setting.
func (d *DB) RemoveSetting(key string) error {
	_, err := d.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}
