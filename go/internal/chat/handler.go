package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler exposes the chat surface over HTTP.
type Handler struct {
	app *App
}

// NewHandler creates a chat HTTP handler.
func NewHandler(app *App) *Handler {
	return &Handler{app: app}
}

// RegisterRoutes registers chat routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/{id}/chat", h.handlePost)
	mux.HandleFunc("GET /api/sessions/{id}/chat", h.handleHistory)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.SessionID = sessionID

	msg, err := h.app.PostMessage(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		log.Error().Err(err).Msg("failed to encode chat message")
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.app.History(r.Context(), sessionID, limit)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to fetch chat history")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msgs); err != nil {
		log.Error().Err(err).Msg("failed to encode chat history")
	}
}
