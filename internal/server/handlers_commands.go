package server

import (
	"encoding/json"
	"net/http"
)

type activateRequest struct {
	ID       string `json:"id"`
	WindowID string `json:"windowId"`
}

type restoreRequest struct {
	SessionID string `json:"sessionId"`
}

type openRequest struct {
	URL string `json:"url"`
}

// Command endpoints are fire-and-forget: the browser side owns the outcome,
// so a well-formed request is always accepted.

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "tab id is required")
		return
	}

	s.engine.ActivateTab(r.Context(), req.ID, req.WindowID)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "session id is required")
		return
	}

	s.engine.RestoreSession(r.Context(), req.SessionID)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !s.decodeCommand(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "url is required")
		return
	}

	s.engine.OpenURL(r.Context(), req.URL)
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) decodeCommand(w http.ResponseWriter, r *http.Request, into any) bool {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return false
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return false
	}
	return true
}
