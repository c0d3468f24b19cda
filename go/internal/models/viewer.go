package models

import (
	"time"

	"github.com/google/uuid"
)

// Viewer represents one watching client, tracked by heartbeat.
type Viewer struct {
	SessionID     uuid.UUID `json:"session_id"`
	ViewerID      string    `json:"viewer_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}
