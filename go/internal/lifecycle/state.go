package lifecycle

import (
	"fmt"
	"math"
	"time"
)

// State is the discrete phase of a simulive session, derived purely from time.
type State string

const (
	StateLoading   State = "loading"
	StateScheduled State = "scheduled"
	StateCountdown State = "countdown"
	StateStarting  State = "starting"
	StateLive      State = "live"
	StateEnded     State = "ended"
	StateError     State = "error"
)

const (
	// CountdownThreshold is how close to the scheduled start the countdown
	// display takes over from the plain schedule card.
	CountdownThreshold = 60 * time.Second

	// StartingDuration is the brief "going live" phase right after the
	// scheduled start.
	StartingDuration = 3 * time.Second

	// DefaultTickInterval keeps the countdown display visibly smooth.
	DefaultTickInterval = 100 * time.Millisecond
)

// Terminal reports whether the state is absorbing under normal operation.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError
}

// Schedule is the read-only scheduling input for state derivation.
type Schedule struct {
	ScheduledStart   time.Time
	VideoDurationSec *float64
	IsActive         bool
}

// DurationKnown reports whether the video duration has been established.
func (s Schedule) DurationKnown() bool {
	return s.VideoDurationSec != nil
}

// Snapshot carries the derived state plus the display figures recomputed on
// every tick.
type Snapshot struct {
	State             State   `json:"state"`
	SecondsToStart    float64 `json:"seconds_to_start"` // signed; negative once started
	LiveOffsetSeconds float64 `json:"live_offset_seconds"`
	IsTimeSynced      bool    `json:"is_time_synced"`
}

// Derive computes the session state from the schedule and an authoritative
// instant. The branches form a strict priority chain: each is evaluated only
// if the prior ones did not match, so a session 70s before start is scheduled
// regardless of any known duration.
func Derive(sch Schedule, now time.Time, timeSynced bool) Snapshot {
	if sch.ScheduledStart.IsZero() || !sch.IsActive {
		return Snapshot{State: StateLoading, IsTimeSynced: timeSynced}
	}

	offset := now.Sub(sch.ScheduledStart).Seconds()
	snap := Snapshot{
		SecondsToStart:    -offset,
		LiveOffsetSeconds: math.Max(0, offset),
		IsTimeSynced:      timeSynced,
	}

	switch {
	case offset < -CountdownThreshold.Seconds():
		snap.State = StateScheduled
	case offset < 0:
		snap.State = StateCountdown
	case offset < StartingDuration.Seconds():
		snap.State = StateStarting
	case sch.DurationKnown() && offset >= *sch.VideoDurationSec:
		snap.State = StateEnded
	default:
		snap.State = StateLive
	}
	return snap
}

// FormatCountdown renders seconds-to-start as H:MM:SS when an hour or more
// remains, MM:SS otherwise. Values at or below zero render as 00:00.
func FormatCountdown(secondsToStart float64) string {
	if secondsToStart <= 0 {
		return "00:00"
	}
	total := int(secondsToStart)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h >= 1 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatDuration renders elapsed seconds as HH:MM:SS, floor-truncated and
// never negative.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
