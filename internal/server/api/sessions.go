package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/repcounter/internal/session"
	"github.com/ayusman/repcounter/internal/store"
)

type resetResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// SessionHandler exposes live sessions and their reset controls.
type SessionHandler struct {
	sessions *session.Manager
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(m *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: m}
}

// ServeHTTP routes /api/sessions, /api/sessions/{id} and /api/sessions/{id}/reset.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.sessions.List())
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	switch rest {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess, err := h.sessions.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeJSON(w, http.StatusOK, sess.Info())
	case "reset":
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap, err := h.sessions.Reset(id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Session not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to reset session")
			return
		}
		writeJSON(w, http.StatusOK, resetResponse{Message: "Counter reset", Count: snap.Count})
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// ResetShared handles /api/reset, which zeroes the kiosk counter.
func (h *SessionHandler) ResetShared(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := h.sessions.ResetShared()
	if err != nil {
		if errors.Is(err, session.ErrNotShared) {
			writeError(w, http.StatusConflict, "Shared counter is not enabled; reset a session instead")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to reset counter")
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Message: "Counter reset", Count: snap.Count})
}

type historyResponse struct {
	Totals   store.Totals     `json:"totals"`
	Sessions []*store.Session `json:"sessions"`
}

// HistoryHandler serves stored session records.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

// ServeHTTP handles GET /api/history?limit=N.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	totals, err := h.store.Sessions().Totals()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute totals")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}

	writeJSON(w, http.StatusOK, historyResponse{Totals: totals, Sessions: sessions})
}
