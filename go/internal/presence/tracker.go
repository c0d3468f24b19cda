package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/simulive/go/internal/events"
	"github.com/mcdev12/simulive/go/internal/models"
)

const (
	// DefaultTTL is how long a viewer counts as present after their last
	// heartbeat.
	DefaultTTL = 30 * time.Second

	// DefaultSweepInterval is how often expired viewers are dropped.
	DefaultSweepInterval = 10 * time.Second
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// EventPublisher defines what the tracker needs from the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, eventType events.Type, payload any) error
}

// ViewerMetrics defines what the tracker needs from a metrics sink.
type ViewerMetrics interface {
	SetActiveViewers(count int)
}

type noopMetrics struct{}

func (noopMetrics) SetActiveViewers(int) {}

// Tracker counts watching viewers per session from heartbeats. Viewers that
// stop beating are swept out after a TTL and count changes are fanned out on
// the event bus.
type Tracker struct {
	clock         Clock
	publisher     EventPublisher
	metrics       ViewerMetrics
	ttl           time.Duration
	sweepInterval time.Duration

	mu       sync.Mutex
	sessions map[uuid.UUID]map[string]time.Time // viewerID -> last heartbeat
}

// TrackerConfig holds construction parameters for a Tracker.
type TrackerConfig struct {
	Clock         Clock
	Publisher     EventPublisher
	Metrics       ViewerMetrics
	TTL           time.Duration
	SweepInterval time.Duration
}

// NewTracker creates a presence tracker. Zero-valued tunables fall back to
// the package defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Tracker{
		clock:         cfg.Clock,
		publisher:     cfg.Publisher,
		metrics:       cfg.Metrics,
		ttl:           cfg.TTL,
		sweepInterval: cfg.SweepInterval,
		sessions:      make(map[uuid.UUID]map[string]time.Time),
	}
}

// Heartbeat records that a viewer is still watching. Returns the session's
// viewer count after the beat.
func (t *Tracker) Heartbeat(ctx context.Context, sessionID uuid.UUID, viewerID string) int {
	t.mu.Lock()
	viewers, ok := t.sessions[sessionID]
	if !ok {
		viewers = make(map[string]time.Time)
		t.sessions[sessionID] = viewers
	}
	_, known := viewers[viewerID]
	viewers[viewerID] = t.clock.Now()
	count := len(viewers)
	t.mu.Unlock()

	if !known {
		t.publishCount(ctx, sessionID, count)
	}
	return count
}

// Leave removes a viewer immediately, without waiting for the TTL.
func (t *Tracker) Leave(ctx context.Context, sessionID uuid.UUID, viewerID string) {
	t.mu.Lock()
	viewers, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if _, known := viewers[viewerID]; !known {
		t.mu.Unlock()
		return
	}
	delete(viewers, viewerID)
	count := len(viewers)
	if count == 0 {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()

	t.publishCount(ctx, sessionID, count)
}

// Count returns the current viewer count for a session.
func (t *Tracker) Count(sessionID uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions[sessionID])
}

// Viewers returns the session's current viewers with their last heartbeat,
// sorted by viewer ID.
func (t *Tracker) Viewers(sessionID uuid.UUID) []models.Viewer {
	t.mu.Lock()
	viewers := make([]models.Viewer, 0, len(t.sessions[sessionID]))
	for viewerID, lastBeat := range t.sessions[sessionID] {
		viewers = append(viewers, models.Viewer{
			SessionID:     sessionID,
			ViewerID:      viewerID,
			LastHeartbeat: lastBeat,
		})
	}
	t.mu.Unlock()

	sort.Slice(viewers, func(i, j int) bool {
		return viewers[i].ViewerID < viewers[j].ViewerID
	})
	return viewers
}

// Run sweeps expired viewers until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("presence sweep loop stopped")
			return
		case <-ticker.Chan():
			t.sweep(ctx)
		}
	}
}

// sweep drops viewers whose last heartbeat is older than the TTL.
func (t *Tracker) sweep(ctx context.Context) {
	cutoff := t.clock.Now().Add(-t.ttl)

	type change struct {
		sessionID uuid.UUID
		count     int
	}
	var changes []change

	t.mu.Lock()
	for sessionID, viewers := range t.sessions {
		expired := 0
		for viewerID, lastBeat := range viewers {
			if lastBeat.Before(cutoff) {
				delete(viewers, viewerID)
				expired++
			}
		}
		if expired > 0 {
			changes = append(changes, change{sessionID: sessionID, count: len(viewers)})
			if len(viewers) == 0 {
				delete(t.sessions, sessionID)
			}
		}
	}
	t.mu.Unlock()

	for _, c := range changes {
		log.Debug().
			Str("session_id", c.sessionID.String()).
			Int("viewers", c.count).
			Msg("swept expired viewers")
		t.publishCount(ctx, c.sessionID, c.count)
	}
}

func (t *Tracker) publishCount(ctx context.Context, sessionID uuid.UUID, count int) {
	t.metrics.SetActiveViewers(t.totalViewers())
	if t.publisher == nil {
		return
	}
	err := t.publisher.Publish(ctx, sessionID, events.TypeViewerCount, events.ViewerCountPayload{
		SessionID: sessionID,
		Count:     count,
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to publish viewer count")
	}
}

func (t *Tracker) totalViewers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, viewers := range t.sessions {
		total += len(viewers)
	}
	return total
}
