package syncengine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/simulive/go/internal/lifecycle"
)

const (
	// DefaultCheckInterval is the drift check cadence.
	DefaultCheckInterval = time.Second

	// DefaultDriftThreshold is the absolute drift, in seconds, at which a
	// correction fires.
	DefaultDriftThreshold = 0.5

	// DefaultMinSyncInterval is the shared correction cooldown. Even if drift
	// exceeds the threshold on every check, no new correction is issued inside
	// this window; it keeps an oscillating player clock from seek-thrashing.
	DefaultMinSyncInterval = 3 * time.Second
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// TimeProvider supplies the authoritative instant drift is measured against.
// Satisfied by timeref.Reference.
type TimeProvider interface {
	Now() time.Time
}

// CorrectionMetrics defines what the engine needs from a metrics sink.
type CorrectionMetrics interface {
	RecordCorrection(role string)
	RecordStreamEnd()
}

type noopMetrics struct{}

func (noopMetrics) RecordCorrection(string) {}
func (noopMetrics) RecordStreamEnd()        {}

// DriftReport describes one sync event. Reports are keyed to the primary
// target; the secondary's drift rides along when one is attached.
type DriftReport struct {
	ExpectedSec    float64
	PrimaryDrift   float64
	SecondaryDrift *float64
	Corrected      bool
	At             time.Time
}

// Engine keeps one or two playback surfaces within a bounded drift of the
// position implied by elapsed authoritative time since the scheduled start.
//
// Corrections are hard seeks to the expected position; no smooth-ramping is
// attempted. Both targets are measured against the same schedule-derived
// expected value and never against each other, so error stays bounded by the
// shared reference instead of compounding pairwise.
type Engine struct {
	clock    Clock
	times    TimeProvider
	schedule func() lifecycle.Schedule
	metrics  CorrectionMetrics

	checkInterval   time.Duration
	driftThreshold  float64
	minSyncInterval time.Duration

	onDrift func(DriftReport)
	onEnd   func(durationSec float64)

	mu            sync.Mutex
	primary       *syncTarget
	secondary     *syncTarget
	cooldownUntil time.Time
	ended         bool
	started       bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config holds construction parameters for an Engine.
type Config struct {
	Clock    Clock
	Times    TimeProvider
	Schedule func() lifecycle.Schedule // read fresh on every check
	Metrics  CorrectionMetrics

	CheckInterval   time.Duration
	DriftThreshold  float64
	MinSyncInterval time.Duration

	// OnDrift is invoked after every measured check, keyed to the primary.
	OnDrift func(DriftReport)
	// OnEnd is invoked once when the natural end of stream is detected.
	OnEnd func(durationSec float64)
}

// New creates a drift-correction engine. Zero-valued tunables fall back to
// the package defaults.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.DriftThreshold <= 0 {
		cfg.DriftThreshold = DefaultDriftThreshold
	}
	if cfg.MinSyncInterval <= 0 {
		cfg.MinSyncInterval = DefaultMinSyncInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Engine{
		clock:           cfg.Clock,
		times:           cfg.Times,
		schedule:        cfg.Schedule,
		metrics:         cfg.Metrics,
		checkInterval:   cfg.CheckInterval,
		driftThreshold:  cfg.DriftThreshold,
		minSyncInterval: cfg.MinSyncInterval,
		onDrift:         cfg.OnDrift,
		onEnd:           cfg.OnEnd,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// AttachPrimary attaches or replaces the primary playback surface.
func (e *Engine) AttachPrimary(s MediaSurface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.primary = &syncTarget{role: RolePrimary, surface: s}
	log.Debug().Msg("primary sync target attached")
}

// AttachSecondary attaches or replaces the secondary playback surface.
func (e *Engine) AttachSecondary(s MediaSurface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.secondary = &syncTarget{role: RoleSecondary, surface: s}
	log.Debug().Msg("secondary sync target attached")
}

// Detach removes the surface for the given role.
func (e *Engine) Detach(role Role) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch role {
	case RolePrimary:
		e.primary = nil
	case RoleSecondary:
		e.secondary = nil
	}
	log.Debug().Str("role", string(role)).Msg("sync target detached")
}

// Start launches the periodic check loop. Calling Start more than once is a
// no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	go e.run()
}

// Close tears the check loop down. Safe to call multiple times and before
// Start. A leaked check loop would attempt to seek a detached surface, so
// owners must call Close when the session leaves live-eligible states.
func (e *Engine) Close() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if started {
		<-e.doneCh
	}
}

// ResumeFromBackground forces an immediate check with the cooldown reset.
// Backgrounded media elements commonly stall or drift severely, so the normal
// throttle must not block the first post-resume correction.
func (e *Engine) ResumeFromBackground() {
	e.mu.Lock()
	e.cooldownUntil = time.Time{}
	e.mu.Unlock()
	log.Debug().Msg("visibility resumed, bypassing correction cooldown")
	e.checkOnce()
}

func (e *Engine) run() {
	defer close(e.doneCh)

	ticker := e.clock.NewTicker(e.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.Chan():
			if e.checkOnce() {
				// Natural end detected: cease further correction attempts.
				return
			}
		}
	}
}

// checkOnce performs one drift check and returns true once the stream has
// naturally ended.
func (e *Engine) checkOnce() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ended {
		return true
	}

	sch := e.schedule()
	if sch.ScheduledStart.IsZero() || !sch.IsActive {
		return false
	}

	now := e.clock.Now()
	expected := e.times.Now().Sub(sch.ScheduledStart).Seconds()
	if expected < 0 {
		// Playback has not conceptually started; nothing to correct.
		return false
	}

	if sch.DurationKnown() && expected >= *sch.VideoDurationSec {
		e.ended = true
		duration := *sch.VideoDurationSec
		log.Info().
			Float64("duration_sec", duration).
			Msg("natural stream end detected")
		e.metrics.RecordStreamEnd()
		if e.onEnd != nil {
			go e.onEnd(duration)
		}
		return true
	}

	inCooldown := now.Before(e.cooldownUntil)
	corrected := false

	// The primary is always measured and corrected before the secondary.
	for _, target := range []*syncTarget{e.primary, e.secondary} {
		if target == nil {
			continue
		}
		if !target.surface.Ready() {
			// Not ready this tick; the next tick retries.
			continue
		}
		drift := target.surface.Position() - expected
		target.lastDrift = drift

		if inCooldown {
			continue
		}
		if drift >= e.driftThreshold || drift <= -e.driftThreshold {
			target.surface.SetPosition(expected)
			target.lastCorrectedAt = now
			corrected = true
			e.metrics.RecordCorrection(string(target.role))
			log.Debug().
				Str("role", string(target.role)).
				Float64("drift_sec", drift).
				Float64("expected_sec", expected).
				Msg("corrected playback drift")
		}
	}

	if corrected {
		e.cooldownUntil = now.Add(e.minSyncInterval)
	}

	if e.onDrift != nil && e.primary != nil {
		report := DriftReport{
			ExpectedSec:  expected,
			PrimaryDrift: e.primary.lastDrift,
			Corrected:    corrected,
			At:           now,
		}
		if e.secondary != nil {
			d := e.secondary.lastDrift
			report.SecondaryDrift = &d
		}
		go e.onDrift(report)
	}

	return false
}
