package syncengine

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/simulive/go/internal/lifecycle"
)

type fakeSurface struct {
	mu    sync.Mutex
	ready bool
	pos   float64
	seeks int
}

func newFakeSurface(pos float64) *fakeSurface {
	return &fakeSurface{ready: true, pos: pos}
}

func (s *fakeSurface) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSurface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *fakeSurface) SetPosition(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = seconds
	s.seeks++
}

// place moves the playhead without counting it as a correction seek.
func (s *fakeSurface) place(pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
}

func (s *fakeSurface) seekCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeks
}

// clockTimes adapts a clockwork clock to the TimeProvider interface.
type clockTimes struct{ clock clockwork.Clock }

func (c clockTimes) Now() time.Time { return c.clock.Now() }

func floatPtr(f float64) *float64 { return &f }

// newTestEngine builds an engine whose schedule started elapsedSec ago.
func newTestEngine(clock clockwork.Clock, elapsedSec float64, durationSec *float64, opts ...func(*Config)) *Engine {
	start := clock.Now().Add(-time.Duration(elapsedSec * float64(time.Second)))
	cfg := Config{
		Clock: clock,
		Times: clockTimes{clock},
		Schedule: func() lifecycle.Schedule {
			return lifecycle.Schedule{
				ScheduledStart:   start,
				VideoDurationSec: durationSec,
				IsActive:         true,
			}
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func TestCheck_DualTargetThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 100.6, nil)

	primary := newFakeSurface(100.0)   // drift -0.6, beyond threshold
	secondary := newFakeSurface(100.3) // drift -0.3, within tolerance
	e.AttachPrimary(primary)
	e.AttachSecondary(secondary)

	e.checkOnce()

	assert.InDelta(t, 100.6, primary.Position(), 0.0001)
	assert.Equal(t, 1, primary.seekCount())
	assert.InDelta(t, 100.3, secondary.Position(), 0.0001)
	assert.Zero(t, secondary.seekCount())
}

func TestCheck_NoCorrectionWithinTolerance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 50, nil)

	primary := newFakeSurface(50.49)
	e.AttachPrimary(primary)

	e.checkOnce()

	assert.Zero(t, primary.seekCount())
}

func TestCheck_CorrectionAtExactThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 50, nil)

	ahead := newFakeSurface(50.5) // drift exactly +0.5
	e.AttachPrimary(ahead)

	e.checkOnce()

	assert.Equal(t, 1, ahead.seekCount())
	assert.InDelta(t, 50.0, ahead.Position(), 0.0001)
}

func TestCheck_RateLimitsCorrections(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 100, nil)

	primary := newFakeSurface(0)
	e.AttachPrimary(primary)

	e.checkOnce()
	require.Equal(t, 1, primary.seekCount())

	// The player keeps drifting; checks inside the cooldown must not seek.
	for i := 0; i < 2; i++ {
		clock.Advance(time.Second)
		primary.place(primary.Position() - 2)
		e.checkOnce()
		assert.Equal(t, 1, primary.seekCount())
	}

	// Past the cooldown, correction resumes.
	clock.Advance(2 * time.Second)
	primary.place(primary.Position() - 2)
	e.checkOnce()
	assert.Equal(t, 2, primary.seekCount())
}

func TestResumeFromBackground_BypassesCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 100, nil)

	primary := newFakeSurface(0)
	e.AttachPrimary(primary)

	e.checkOnce()
	require.Equal(t, 1, primary.seekCount())

	clock.Advance(time.Second)
	primary.place(10) // stalled while backgrounded

	// A normal check is still throttled.
	e.checkOnce()
	require.Equal(t, 1, primary.seekCount())

	// The first post-resume check is not.
	e.ResumeFromBackground()
	assert.Equal(t, 2, primary.seekCount())
	assert.InDelta(t, 101, primary.Position(), 0.0001)
}

func TestCheck_IdleBeforeScheduledStart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, -30, nil) // starts 30s from now

	primary := newFakeSurface(500)
	e.AttachPrimary(primary)

	e.checkOnce()

	assert.Zero(t, primary.seekCount())
}

func TestCheck_SkipsUnreadySurface(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 100, nil)

	primary := newFakeSurface(0)
	primary.ready = false
	e.AttachPrimary(primary)

	e.checkOnce()
	assert.Zero(t, primary.seekCount())

	// The next tick retries once the surface is ready.
	primary.mu.Lock()
	primary.ready = true
	primary.mu.Unlock()
	e.checkOnce()
	assert.Equal(t, 1, primary.seekCount())
}

func TestCheck_DetectsNaturalEnd(t *testing.T) {
	clock := clockwork.NewFakeClock()

	endCh := make(chan float64, 1)
	e := newTestEngine(clock, 3700, floatPtr(3600), func(cfg *Config) {
		cfg.OnEnd = func(d float64) { endCh <- d }
	})

	primary := newFakeSurface(3599)
	e.AttachPrimary(primary)

	require.True(t, e.checkOnce())

	select {
	case d := <-endCh:
		assert.InDelta(t, 3600, d, 0.0001)
	case <-time.After(time.Second):
		t.Fatal("end callback not invoked")
	}

	// No further corrections after end.
	assert.Zero(t, primary.seekCount())
	require.True(t, e.checkOnce())
	assert.Zero(t, primary.seekCount())
}

func TestCheck_BothTargetsCorrectedInOneTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 200, nil)

	primary := newFakeSurface(190)
	secondary := newFakeSurface(210)
	e.AttachPrimary(primary)
	e.AttachSecondary(secondary)

	e.checkOnce()

	assert.Equal(t, 1, primary.seekCount())
	assert.Equal(t, 1, secondary.seekCount())
	assert.InDelta(t, 200, primary.Position(), 0.0001)
	assert.InDelta(t, 200, secondary.Position(), 0.0001)
}

func TestCheck_ReportsDriftKeyedToPrimary(t *testing.T) {
	clock := clockwork.NewFakeClock()

	reportCh := make(chan DriftReport, 1)
	e := newTestEngine(clock, 100, nil, func(cfg *Config) {
		cfg.OnDrift = func(r DriftReport) { reportCh <- r }
	})

	e.AttachPrimary(newFakeSurface(99.8))
	e.AttachSecondary(newFakeSurface(101.2))

	e.checkOnce()

	select {
	case r := <-reportCh:
		assert.InDelta(t, -0.2, r.PrimaryDrift, 0.0001)
		require.NotNil(t, r.SecondaryDrift)
		assert.InDelta(t, 1.2, *r.SecondaryDrift, 0.0001)
		assert.True(t, r.Corrected)
	case <-time.After(time.Second):
		t.Fatal("drift report not delivered")
	}
}

func TestEngine_LoopRunsAndStops(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 100, nil)

	primary := newFakeSurface(0)
	e.AttachPrimary(primary)

	e.Start()
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return primary.seekCount() == 1
	}, time.Second, time.Millisecond)

	e.Close()
	e.Close() // idempotent
}

func TestEngine_CloseBeforeStart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newTestEngine(clock, 100, nil)
	e.Close()
}
