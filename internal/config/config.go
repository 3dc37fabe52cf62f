// Package config loads the TOML user configuration and watches it for
// changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/tablightapp/tablight/internal/tabs"
)

// FileName is the TOML config file inside the state directory.
const FileName = "config.toml"

// Config is the user-facing configuration.
type Config struct {
	// ListenAddr is the local query-interface address.
	ListenAddr string `toml:"listen_addr"`

	// DBFile is the index database file name inside the state directory.
	DBFile string `toml:"db_file"`

	// Token, when set, is required as a bearer token on API requests.
	Token string `toml:"token"`

	// ResultLimit caps each result class (default 5).
	ResultLimit int `toml:"result_limit"`

	// SessionFanOut bounds the per-query closed-session fetch (default 25).
	SessionFanOut int `toml:"session_fan_out"`

	// DebounceMS is the advisory keystroke debounce exported to clients.
	// The engine itself does not debounce.
	DebounceMS int `toml:"debounce_ms"`

	// QuickAccess defines extra quick-access entries appended to the
	// built-in catalog.
	QuickAccess []QuickAccessDef `toml:"quick_access"`

	// Logging configures log output and rotation.
	Logging LogSettings `toml:"logging"`
}

// QuickAccessDef is one user-defined quick-access entry.
type QuickAccessDef struct {
	ID       string   `toml:"id"`
	URL      string   `toml:"url"`
	Title    string   `toml:"title"`
	Keywords []string `toml:"keywords"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:    "127.0.0.1:8742",
		DBFile:        "index.db",
		ResultLimit:   5,
		SessionFanOut: 25,
		DebounceMS:    100,
		Logging: LogSettings{
			Level:    "info",
			Compress: true,
		},
	}
}

// StateDir resolves the state directory: $TABLIGHT_HOME if set, else
// ~/.tablight.
func StateDir() string {
	if dir := os.Getenv("TABLIGHT_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tablight"
	}
	return filepath.Join(home, ".tablight")
}

// Path returns the config file path inside the state directory.
func Path(stateDir string) string {
	return filepath.Join(stateDir, FileName)
}

// Load reads the config file, applying defaults for anything unset.
// A missing file is not an error: the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = Default().ResultLimit
	}
	if cfg.SessionFanOut <= 0 {
		cfg.SessionFanOut = Default().SessionFanOut
	}
	if cfg.DebounceMS <= 0 {
		cfg.DebounceMS = Default().DebounceMS
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = Default().ListenAddr
	}
	if cfg.DBFile == "" {
		cfg.DBFile = Default().DBFile
	}
	return cfg, nil
}

// DBPath returns the index database path for a state directory.
func (c Config) DBPath(stateDir string) string {
	if filepath.IsAbs(c.DBFile) {
		return c.DBFile
	}
	return filepath.Join(stateDir, c.DBFile)
}

// QuickAccessEntries converts the configured extras to catalog entries.
func (c Config) QuickAccessEntries() []tabs.QuickAccessEntry {
	if len(c.QuickAccess) == 0 {
		return nil
	}
	out := make([]tabs.QuickAccessEntry, 0, len(c.QuickAccess))
	for _, def := range c.QuickAccess {
		if def.URL == "" {
			continue
		}
		out = append(out, tabs.QuickAccessEntry{
			ID:       def.ID,
			URL:      def.URL,
			Title:    def.Title,
			Keywords: def.Keywords,
		})
	}
	return out
}
