package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tablightapp/tablight/internal/config"
	"github.com/tablightapp/tablight/internal/logging"
	"github.com/tablightapp/tablight/internal/server"
	"github.com/tablightapp/tablight/internal/tabs"
)

const Version = "0.3.1"

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("TabLight v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "serve":
			handleServe(args[1:])
			return
		case "search":
			handleSearch(args[1:])
			return
		case "recent":
			handleRecent(args[1:])
			return
		case "activate":
			handleActivate(args[1:])
			return
		case "restore":
			handleRestore(args[1:])
			return
		case "open":
			handleOpen(args[1:])
			return
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}

	printHelp()
}

func printHelp() {
	fmt.Println("Usage: tablight <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve               Run the ranking daemon")
	fmt.Println("  search <text>       Query the running daemon")
	fmt.Println("  recent              Show the default (empty-query) results")
	fmt.Println("  activate <tab-id>   Focus an open tab")
	fmt.Println("  restore <id>        Reopen a recently closed session")
	fmt.Println("  open <url>          Open a URL in a new tab")
	fmt.Println("  version             Print the version")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TABLIGHT_HOME       State directory (default ~/.tablight)")
	fmt.Println("  TABLIGHT_DEBUG      Enable debug logging when set")
}

// handleServe runs the daemon: engine, collaborator hub, query server, and
// config watcher, until SIGINT/SIGTERM.
func handleServe(args []string) {
	stateDir := config.StateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create state directory: %v\n", err)
		os.Exit(1)
	}

	cfgPath := config.Path(stateDir)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	debugMode := os.Getenv("TABLIGHT_DEBUG") != ""
	logCfg := logging.Config{
		Debug:                 debugMode,
		LogDir:                stateDir,
		Level:                 cfg.Logging.Level,
		Format:                cfg.Logging.Format,
		MaxSizeMB:             cfg.Logging.MaxSizeMB,
		MaxBackups:            cfg.Logging.MaxBackups,
		MaxAgeDays:            cfg.Logging.MaxAgeDays,
		Compress:              cfg.Logging.Compress,
		AggregateIntervalSecs: 30,
	}
	logging.Init(logCfg)
	defer logging.Shutdown()

	log := logging.ForComponent(logging.CompCLI)
	log.Info("daemon_started",
		slog.Int("pid", os.Getpid()),
		slog.String("version", Version),
		slog.String("state_dir", stateDir))

	// SIGUSR1 dumps the ring buffer for post-mortem debugging.
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(stateDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				log.Error("crash_dump_failed", slog.String("error", err.Error()))
			} else {
				log.Info("crash_dump_written", slog.String("path", dumpPath))
			}
		}
	}()

	hub := server.NewHub()
	engine := tabs.NewEngine(tabs.EngineConfig{
		DBPath:        cfg.DBPath(stateDir),
		ResultLimit:   cfg.ResultLimit,
		SessionFanOut: cfg.SessionFanOut,
		QuickAccess:   cfg.QuickAccessEntries(),
	}, hub, hub, hub.Bookmarks(), hub)
	engine.Start()
	defer engine.Close()

	srv := server.NewServer(server.Config{
		ListenAddr: cfg.ListenAddr,
		Token:      cfg.Token,
		DebounceMS: cfg.DebounceMS,
	}, engine, hub)

	// Reload swaps the pieces that are safe to change live; listen address
	// and database path changes need a restart.
	watcher, err := config.NewWatcher(cfgPath, func(next config.Config) {
		engine.SetCatalog(next.QuickAccessEntries())
		srv.SetDebounceMS(next.DebounceMS)
	})
	if err != nil {
		log.Warn("config_watch_disabled", slog.String("error", err.Error()))
	} else {
		defer watcher.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log.Info("daemon_stopped")
}
