package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tablightapp/tablight/internal/tabs"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	text := r.URL.Query().Get("q")
	caller := r.URL.Query().Get("caller")
	writeJSON(w, http.StatusOK, s.engine.Search(r.Context(), text, caller))
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	caller := r.URL.Query().Get("caller")
	writeJSON(w, http.StatusOK, s.engine.Defaults(r.Context(), caller))
}

// wsQueryRequest is one keystroke's query over the websocket interface.
type wsQueryRequest struct {
	Type   string `json:"type"` // query, ping
	Gen    int64  `json:"gen"`
	Text   string `json:"text,omitempty"`
	Caller string `json:"caller,omitempty"`
}

type wsQueryResponse struct {
	Type    string          `json:"type"` // results, pong, error
	Gen     int64           `json:"gen,omitempty"`
	Results *tabs.ResultSet `json:"results,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Time    time.Time       `json:"time,omitempty"`
}

// handleQueryWS streams ranked results per keystroke. Each request carries a
// client generation number; a response whose generation is no longer the
// latest seen is discarded server-side, so a slow query can never clobber a
// fresher one.
func (s *Server) handleQueryWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var (
		writeMu   sync.Mutex
		latestGen atomic.Int64
		wg        sync.WaitGroup
	)
	defer wg.Wait()

	writeResponse := func(resp wsQueryResponse) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(resp)
	}

	ctx := r.Context()
	latestGen.Store(-1)

	for {
		var req wsQueryRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				serveLog.Warn("query_ws_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		switch req.Type {
		case "ping":
			writeResponse(wsQueryResponse{Type: "pong", Time: time.Now().UTC()})

		case "query":
			gen := req.Gen
			if prev := latestGen.Load(); gen > prev {
				latestGen.Store(gen)
			}
			wg.Add(1)
			go func(req wsQueryRequest) {
				defer wg.Done()
				results := s.engine.Search(ctx, req.Text, req.Caller)
				// A newer keystroke arrived while this one ran: drop it.
				if latestGen.Load() > req.Gen {
					return
				}
				writeResponse(wsQueryResponse{Type: "results", Gen: req.Gen, Results: &results})
			}(req)

		default:
			writeResponse(wsQueryResponse{
				Type:    "error",
				Code:    "UNSUPPORTED_MESSAGE",
				Message: "supported message types: query,ping",
				Time:    time.Now().UTC(),
			})
		}
	}
}

// handleBridgeWS accepts the browser collaborator connection. One bridge at a
// time: a newcomer replaces the current one.
func (s *Server) handleBridgeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	bridge := newBridge(conn, s.hub)
	s.hub.attach(bridge)
	bridge.readLoop()
	s.hub.detach(bridge)
}
