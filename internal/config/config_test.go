package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8742", cfg.ListenAddr)
	assert.Equal(t, 5, cfg.ResultLimit)
	assert.Equal(t, 25, cfg.SessionFanOut)
	assert.Equal(t, 100, cfg.DebounceMS)
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
listen_addr = "127.0.0.1:9000"
result_limit = 8

[[quick_access]]
id = "team-wiki"
url = "https://wiki.example.com"
title = "Team Wiki"
keywords = ["wiki", "docs"]

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, 8, cfg.ResultLimit)
	// Unset values keep their defaults.
	assert.Equal(t, 25, cfg.SessionFanOut)
	assert.Equal(t, "debug", cfg.Logging.Level)

	entries := cfg.QuickAccessEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "team-wiki", entries[0].ID)
	assert.Equal(t, []string{"wiki", "docs"}, entries[0].Keywords)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is not { toml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestQuickAccessEntriesSkipsURLLess(t *testing.T) {
	cfg := Config{QuickAccess: []QuickAccessDef{
		{ID: "ok", URL: "https://example.com", Title: "OK"},
		{ID: "broken", Title: "No URL"},
	}}
	entries := cfg.QuickAccessEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0].ID)
}

func TestStateDirOverride(t *testing.T) {
	t.Setenv("TABLIGHT_HOME", "/tmp/custom-tablight")
	assert.Equal(t, "/tmp/custom-tablight", StateDir())
}

func TestDBPath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join("/state", "index.db"), cfg.DBPath("/state"))

	cfg.DBFile = "/elsewhere/index.db"
	assert.Equal(t, "/elsewhere/index.db", cfg.DBPath("/state"))
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(`result_limit = 3`), 0o644))

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(path, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`result_limit = 7`), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 7, cfg.ResultLimit)
	case <-time.After(5 * time.Second):
		t.Fatal("No reload after config change")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(`result_limit = 3`), 0o644))

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(path, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	select {
	case <-reloaded:
		t.Error("Unrelated file triggered a reload")
	case <-time.After(700 * time.Millisecond):
	}
}
