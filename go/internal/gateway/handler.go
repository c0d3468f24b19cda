package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler handles WebSocket upgrade requests for session connections.
type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// HandleSessionConnection handles GET /ws?session_id=...&viewer_id=...
func (h *Handler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := r.URL.Query().Get("session_id")
	if sessionIDStr == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session_id format", http.StatusBadRequest)
		return
	}

	// In production this would come from an auth token.
	viewerID := r.URL.Query().Get("viewer_id")
	if viewerID == "" {
		viewerID = "anonymous"
	}

	if err := h.manager.UpgradeConnection(w, r, viewerID, sessionID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID.String()).
			Str("viewer_id", viewerID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats handles GET /ws/stats for a named session.
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := r.URL.Query().Get("session_id")
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session_id format", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"connections": h.manager.ConnectionCount(sessionID),
	})
}

// RegisterRoutes mounts the WebSocket endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.HandleSessionConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
