package syncengine

import "time"

// Role tags a sync target within a session. A session attaches at most one
// target per role: a combined stream uses only the primary; a screen-share
// plus face-cam duet attaches both.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// MediaSurface is any playback surface the corrector can seek. The engine is
// agnostic to how the surface decodes or streams; it only reads and writes
// the playback position.
type MediaSurface interface {
	// Ready reports whether the surface has media loaded and can be seeked.
	Ready() bool
	// Position returns the current playback position in seconds.
	Position() float64
	// SetPosition hard-seeks to the given position in seconds.
	SetPosition(seconds float64)
}

// syncTarget pairs a surface with its last drift measurement.
type syncTarget struct {
	role            Role
	surface         MediaSurface
	lastDrift       float64
	lastCorrectedAt time.Time
}
