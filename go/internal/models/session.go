package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents one scheduled simulive broadcast.
type Session struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	VideoURL         string     `json:"video_url"`
	ScheduledStart   time.Time  `json:"scheduled_start"`
	VideoDurationSec *float64   `json:"video_duration_sec,omitempty"` // unknown until the stream has ended once
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DurationKnown reports whether a prior run has persisted the video duration.
func (s *Session) DurationKnown() bool {
	return s.VideoDurationSec != nil
}
