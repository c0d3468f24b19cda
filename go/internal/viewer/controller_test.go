package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/simulive/go/internal/lifecycle"
	"github.com/mcdev12/simulive/go/internal/models"
	"github.com/mcdev12/simulive/go/internal/syncengine"
)

// clockTimes adapts a fake clock into a synced TimeProvider.
type clockTimes struct {
	clock clockwork.Clock
}

func (ct clockTimes) Now() time.Time { return ct.clock.Now() }
func (ct clockTimes) IsSynced() bool { return true }

type fakeSource struct {
	mu       sync.Mutex
	schedule lifecycle.Schedule
	getErr   error
	getCalls int
	ended    []float64
}

func (f *fakeSource) GetSchedule(_ context.Context, _ uuid.UUID) (lifecycle.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return lifecycle.Schedule{}, f.getErr
	}
	return f.schedule, nil
}

func (f *fakeSource) RecordStreamEnd(_ context.Context, id uuid.UUID, durationSec float64) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, durationSec)
	d := durationSec
	f.schedule.VideoDurationSec = &d
	return &models.Session{ID: id, VideoDurationSec: &d}, nil
}

func (f *fakeSource) set(fn func(*fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) endedDurations() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]float64, len(f.ended))
	copy(out, f.ended)
	return out
}

type fakeSurface struct {
	mu    sync.Mutex
	pos   float64
	seeks int
}

func (s *fakeSurface) Ready() bool { return true }

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

func (s *fakeSurface) seekCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeks
}

func newTestController(clock clockwork.Clock, source *fakeSource) *Controller {
	return NewController(Config{
		SessionID: uuid.New(),
		Sessions:  source,
		Clock:     clock,
		Times:     clockTimes{clock: clock},
	})
}

func TestStartFailsIntoErrorState(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &fakeSource{getErr: errors.New("connection refused")}
	ctrl := newTestController(clock, source)

	err := ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, lifecycle.StateError, ctrl.Snapshot().State)

	// Stop after a failed Start must not hang.
	ctrl.Stop()
}

func TestStartDerivesLiveState(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &fakeSource{schedule: lifecycle.Schedule{
		ScheduledStart: clock.Now().Add(-10 * time.Second),
		IsActive:       true,
	}}
	ctrl := newTestController(clock, source)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	// Lifecycle ticker, drift engine, and refresh loop each hold a ticker.
	clock.BlockUntil(3)
	clock.Advance(200 * time.Millisecond)

	require.Eventually(t, func() bool {
		return ctrl.Snapshot().State == lifecycle.StateLive
	}, time.Second, 10*time.Millisecond)
}

func TestRefreshFailureKeepsStaleSchedule(t *testing.T) {
	clock := clockwork.NewFakeClock()
	start := clock.Now().Add(-10 * time.Second)
	source := &fakeSource{schedule: lifecycle.Schedule{
		ScheduledStart: start,
		IsActive:       true,
	}}
	ctrl := newTestController(clock, source)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	source.set(func(f *fakeSource) { f.getErr = errors.New("timeout") })

	clock.BlockUntil(3)
	clock.Advance(DefaultRefreshInterval + time.Second)

	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return source.getCalls >= 2
	}, time.Second, 10*time.Millisecond)

	got := ctrl.Schedule()
	assert.Equal(t, start, got.ScheduledStart)
	assert.True(t, got.IsActive)
}

func TestNaturalEndRecordsDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	duration := 5.0
	source := &fakeSource{schedule: lifecycle.Schedule{
		ScheduledStart:   clock.Now().Add(-10 * time.Second),
		VideoDurationSec: &duration,
		IsActive:         true,
	}}
	ctrl := newTestController(clock, source)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	clock.BlockUntil(3)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		ended := source.endedDurations()
		return len(ended) == 1 && ended[0] == duration
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		sch := ctrl.Schedule()
		return sch.DurationKnown() && *sch.VideoDurationSec == duration
	}, time.Second, 10*time.Millisecond)
}

func TestAttachedSurfaceIsCorrected(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &fakeSource{schedule: lifecycle.Schedule{
		ScheduledStart: clock.Now().Add(-100 * time.Second),
		IsActive:       true,
	}}
	ctrl := newTestController(clock, source)

	surface := &fakeSurface{pos: 90.0} // 10s behind
	ctrl.AttachPrimary(surface)

	require.NoError(t, ctrl.Start(context.Background()))
	defer ctrl.Stop()

	clock.BlockUntil(3)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return surface.seekCount() == 1 && surface.Position() == 101.0
	}, time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := &fakeSource{schedule: lifecycle.Schedule{
		ScheduledStart: clock.Now().Add(time.Hour),
		IsActive:       true,
	}}
	ctrl := newTestController(clock, source)

	require.NoError(t, ctrl.Start(context.Background()))
	ctrl.Stop()
	ctrl.Stop()
}

func TestStopBeforeStart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctrl := newTestController(clock, &fakeSource{})
	ctrl.Stop()
}

var _ syncengine.MediaSurface = (*fakeSurface)(nil)
