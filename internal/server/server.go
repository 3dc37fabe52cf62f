// Package server exposes the ranking engine over a local HTTP and websocket
// interface and hosts the browser collaborator bridge.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tablightapp/tablight/internal/logging"
	"github.com/tablightapp/tablight/internal/tabs"
)

var serveLog = logging.ForComponent(logging.CompServe)

// QueryEngine is the engine surface the server needs.
type QueryEngine interface {
	Search(ctx context.Context, text, callerID string) tabs.ResultSet
	Defaults(ctx context.Context, callerID string) tabs.ResultSet
	ActivateTab(ctx context.Context, id, windowID string)
	RestoreSession(ctx context.Context, sessionID string)
	OpenURL(ctx context.Context, url string)
}

// Config defines runtime options for the query server.
type Config struct {
	ListenAddr string
	Token      string
	// DebounceMS is advertised to clients; the server itself never debounces.
	DebounceMS int
}

// Server wraps the HTTP server hosting the query interface and the
// collaborator bridge endpoint.
type Server struct {
	cfg        Config
	engine     QueryEngine
	hub        *Hub
	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc

	// debounceMS is swapped on config reload.
	debounceMS atomic.Int64
}

// NewServer creates a server over an engine and a collaborator hub.
func NewServer(cfg Config, engine QueryEngine, hub *Hub) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8742"
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
		hub:    hub,
	}
	s.debounceMS.Store(int64(cfg.DebounceMS))
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/client-config", s.handleClientConfig)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/defaults", s.handleDefaults)
	mux.HandleFunc("/api/activate", s.handleActivate)
	mux.HandleFunc("/api/restore", s.handleRestore)
	mux.HandleFunc("/api/open", s.handleOpen)
	mux.HandleFunc("/ws/query", s.handleQueryWS)
	mux.HandleFunc("/ws/bridge", s.handleBridgeWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// SetDebounceMS swaps the advertised debounce, used on config reload.
func (s *Server) SetDebounceMS(ms int) {
	s.debounceMS.Store(int64(ms))
}

// Start serves until shutdown or error. Returns nil on graceful shutdown.
func (s *Server) Start() error {
	serveLog.Info("listening", slog.String("addr", s.cfg.ListenAddr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		// Signal long-lived websocket handlers to stop promptly.
		s.cancelBase()
	}

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	// Open websockets may block graceful shutdown. Force close as a fallback.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr == nil {
			return nil
		} else {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
	}

	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]any{
		"ok":        true,
		"connected": s.hub.Connected(),
		"time":      time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"debounceMs": s.debounceMS.Load(),
	})
}

func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}

	queryToken := strings.TrimSpace(r.URL.Query().Get("token"))
	if queryToken != "" && secureEqual(queryToken, s.cfg.Token) {
		return true
	}

	headerToken := bearerToken(r.Header.Get("Authorization"))
	if headerToken != "" && secureEqual(headerToken, s.cfg.Token) {
		return true
	}

	return false
}

func bearerToken(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return ""
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	if token == "" {
		return ""
	}
	return token
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				serveLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}
