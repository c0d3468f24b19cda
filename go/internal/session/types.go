package session

import (
	"errors"
	"time"
)

// ErrScheduleUnavailable is returned when no schedule exists for a session id.
var ErrScheduleUnavailable = errors.New("session schedule unavailable")

// CreateSessionRequest holds the fields needed to schedule a broadcast.
type CreateSessionRequest struct {
	Title          string    `json:"title"`
	VideoURL       string    `json:"video_url"`
	ScheduledStart time.Time `json:"scheduled_start"`
}
