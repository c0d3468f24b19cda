package timeref

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Handler serves the authoritative time endpoint that viewer probes call.
// The serving process is the authority, so it answers with its own clock.
type Handler struct {
	clock Clock
}

// NewHandler creates a time endpoint handler.
func NewHandler(clock Clock) *Handler {
	return &Handler{clock: clock}
}

// ServeHTTP answers GET requests with the current epoch milliseconds.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	resp := timeResponse{ServerTimeMS: h.clock.Now().UnixMilli()}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to write time response")
	}
}

// RegisterRoutes registers the time endpoint with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/api/time", h)
}
