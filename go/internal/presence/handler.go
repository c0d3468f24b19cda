package presence

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler exposes viewer heartbeats over HTTP.
type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

type heartbeatRequest struct {
	ViewerID string `json:"viewer_id"`
}

type heartbeatResponse struct {
	Count int `json:"count"`
}

// Heartbeat handles POST /api/sessions/{id}/heartbeat.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ViewerID == "" {
		http.Error(w, "viewer_id is required", http.StatusBadRequest)
		return
	}

	count := h.tracker.Heartbeat(r.Context(), sessionID, req.ViewerID)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(heartbeatResponse{Count: count}); err != nil {
		log.Error().Err(err).Msg("failed to encode heartbeat response")
	}
}

// Viewers handles GET /api/sessions/{id}/viewers.
func (h *Handler) Viewers(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.tracker.Viewers(sessionID)); err != nil {
		log.Error().Err(err).Msg("failed to encode viewers response")
	}
}

// RegisterRoutes mounts the presence endpoints on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/{id}/heartbeat", h.Heartbeat)
	mux.HandleFunc("GET /api/sessions/{id}/viewers", h.Viewers)
}
