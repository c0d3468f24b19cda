package viewer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/simulive/go/internal/lifecycle"
	"github.com/mcdev12/simulive/go/internal/models"
	"github.com/mcdev12/simulive/go/internal/syncengine"
)

// DefaultRefreshInterval is how often the schedule is re-fetched from the
// source while a controller runs.
const DefaultRefreshInterval = 15 * time.Second

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// TimeProvider supplies the authoritative instant the controller's state
// machine and drift checks derive from. Satisfied by timeref.Reference.
type TimeProvider interface {
	Now() time.Time
	IsSynced() bool
}

// ScheduleSource defines what the controller needs from the sessions layer.
type ScheduleSource interface {
	GetSchedule(ctx context.Context, id uuid.UUID) (lifecycle.Schedule, error)
	RecordStreamEnd(ctx context.Context, id uuid.UUID, durationSec float64) (*models.Session, error)
}

// Controller drives one viewer's playback of one session: it caches the
// schedule, polls the lifecycle state machine, and keeps attached playback
// surfaces drift-corrected against authoritative time. When the stream's
// natural end is detected the measured duration is written back through the
// schedule source.
type Controller struct {
	sessionID uuid.UUID
	sessions  ScheduleSource
	clock     Clock
	times     TimeProvider

	refreshInterval time.Duration

	ticker *lifecycle.Ticker
	engine *syncengine.Engine

	mu       sync.Mutex
	schedule lifecycle.Schedule

	ctx      context.Context
	started  bool
	running  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config holds construction parameters for a Controller.
type Config struct {
	SessionID uuid.UUID
	Sessions  ScheduleSource
	Clock     Clock
	Times     TimeProvider

	// TickInterval is the lifecycle polling cadence; zero means the
	// lifecycle default.
	TickInterval time.Duration
	// RefreshInterval is the schedule re-fetch cadence; zero means
	// DefaultRefreshInterval.
	RefreshInterval time.Duration

	// Metrics is handed to the drift engine; nil means no-op.
	Metrics syncengine.CorrectionMetrics

	// OnSnapshot, if set, receives every derived lifecycle snapshot.
	OnSnapshot func(lifecycle.Snapshot)
	// OnDrift, if set, receives every drift report.
	OnDrift func(syncengine.DriftReport)
}

// NewController wires a controller together. Start must be called before it
// does anything.
func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	c := &Controller{
		sessionID:       cfg.SessionID,
		sessions:        cfg.Sessions,
		clock:           cfg.Clock,
		times:           cfg.Times,
		refreshInterval: cfg.RefreshInterval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}

	c.ticker = lifecycle.NewTicker(lifecycle.TickerConfig{
		Clock:    cfg.Clock,
		Times:    cfg.Times,
		Interval: cfg.TickInterval,
		Schedule: c.Schedule,
		OnTick:   cfg.OnSnapshot,
	})

	c.engine = syncengine.New(syncengine.Config{
		Clock:    cfg.Clock,
		Times:    cfg.Times,
		Schedule: c.Schedule,
		Metrics:  cfg.Metrics,
		OnDrift:  cfg.OnDrift,
		OnEnd:    c.handleStreamEnd,
	})

	return c
}

// Start fetches the schedule and launches the lifecycle and drift loops. If
// the schedule cannot be established at all the controller lands in the
// terminal error state and Start reports the failure.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	sch, err := c.sessions.GetSchedule(ctx, c.sessionID)
	if err != nil {
		c.ticker.MarkError()
		return fmt.Errorf("failed to load schedule: %w", err)
	}
	c.setSchedule(sch)

	c.ticker.Start()
	c.engine.Start()
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	go c.refreshLoop(ctx)

	log.Info().
		Str("session_id", c.sessionID.String()).
		Time("scheduled_start", sch.ScheduledStart).
		Msg("viewer controller started")
	return nil
}

// Stop tears both loops down. Safe to call multiple times and before Start.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.engine.Close()
	c.ticker.Stop()

	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running {
		<-c.doneCh
	}
}

// Schedule returns the cached schedule.
func (c *Controller) Schedule() lifecycle.Schedule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule
}

// Snapshot returns the most recently derived lifecycle snapshot.
func (c *Controller) Snapshot() lifecycle.Snapshot {
	return c.ticker.Current()
}

// ApplySchedule replaces the cached schedule, used when a ScheduleUpdated
// event arrives ahead of the next periodic refresh.
func (c *Controller) ApplySchedule(sch lifecycle.Schedule) {
	c.setSchedule(sch)
}

// AttachPrimary attaches the primary playback surface.
func (c *Controller) AttachPrimary(s syncengine.MediaSurface) {
	c.engine.AttachPrimary(s)
}

// AttachSecondary attaches the secondary playback surface.
func (c *Controller) AttachSecondary(s syncengine.MediaSurface) {
	c.engine.AttachSecondary(s)
}

// Detach removes the playback surface for the given role.
func (c *Controller) Detach(role syncengine.Role) {
	c.engine.Detach(role)
}

// ResumeFromBackground forces an immediate drift check with the correction
// cooldown reset.
func (c *Controller) ResumeFromBackground() {
	c.engine.ResumeFromBackground()
}

func (c *Controller) setSchedule(sch lifecycle.Schedule) {
	c.mu.Lock()
	c.schedule = sch
	c.mu.Unlock()
}

// refreshLoop re-fetches the schedule periodically. A transient failure keeps
// the stale schedule; state derivation carries on from the last good fetch.
func (c *Controller) refreshLoop(ctx context.Context) {
	defer close(c.doneCh)

	ticker := c.clock.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			sch, err := c.sessions.GetSchedule(ctx, c.sessionID)
			if err != nil {
				log.Warn().
					Err(err).
					Str("session_id", c.sessionID.String()).
					Msg("schedule refresh failed, keeping stale schedule")
				continue
			}
			c.setSchedule(sch)
		}
	}
}

// handleStreamEnd writes the measured duration back and folds the persisted
// schedule into the cache so the lifecycle flips to ended on its next tick.
func (c *Controller) handleStreamEnd(durationSec float64) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := c.sessions.RecordStreamEnd(ctx, c.sessionID, durationSec)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", c.sessionID.String()).
			Msg("failed to record stream end")
		return
	}

	c.mu.Lock()
	c.schedule.VideoDurationSec = s.VideoDurationSec
	c.mu.Unlock()
}
