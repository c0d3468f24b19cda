package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler exposes the session schedule surface over HTTP.
type Handler struct {
	app *App
}

// NewHandler creates a session HTTP handler.
func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

// RegisterRoutes registers session routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.handleCreate)
	mux.HandleFunc("GET /api/sessions/{id}", h.handleGet)
	mux.HandleFunc("POST /api/sessions/{id}/activate", h.handleActivate)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s, err := h.app.CreateSession(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	s, err := h.app.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrScheduleUnavailable) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("session_id", id.String()).Msg("failed to get session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	s, err := h.app.SetActive(r.Context(), id, true)
	if err != nil {
		if errors.Is(err, ErrScheduleUnavailable) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("session_id", id.String()).Msg("failed to activate session")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
