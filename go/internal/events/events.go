package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/simulive/go/internal/models"
)

// Type identifies a realtime session event.
type Type string

const (
	TypeChatMessage     Type = "ChatMessage"
	TypeViewerCount     Type = "ViewerCount"
	TypeStreamEnded     Type = "StreamEnded"
	TypeScheduleUpdated Type = "ScheduleUpdated"
)

// Envelope is the wire format published to the message bus and consumed by
// the gateway.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType Type            `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ChatMessagePayload carries a persisted chat message.
type ChatMessagePayload struct {
	Message models.ChatMessage `json:"message"`
}

// ViewerCountPayload carries the current viewer count for a session.
type ViewerCountPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	Count     int       `json:"count"`
}

// StreamEndedPayload carries the measured duration of a naturally ended
// stream.
type StreamEndedPayload struct {
	SessionID   uuid.UUID `json:"session_id"`
	DurationSec float64   `json:"duration_sec"`
}

// ScheduleUpdatedPayload carries a refreshed session schedule, published so
// already-joined viewers pick up a newly persisted duration.
type ScheduleUpdatedPayload struct {
	Session models.Session `json:"session"`
}
