package timeref

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestProbe_ZeroLatencyExactOffset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	skew := 120 * time.Second

	source := SourceFunc(func(ctx context.Context) (time.Time, error) {
		return clock.Now().Add(skew), nil
	})
	ref := NewReference(source, WithClock(clock))

	require.False(t, ref.IsSynced())
	require.NoError(t, ref.Probe(context.Background()))

	require.True(t, ref.IsSynced())
	require.Equal(t, int64(120000), ref.OffsetMillis())
	require.Equal(t, clock.Now().Add(skew), ref.Now())
}

func TestProbe_HalfRoundTripCompensation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rtt := 200 * time.Millisecond
	skew := time.Hour

	source := SourceFunc(func(ctx context.Context) (time.Time, error) {
		clock.Advance(rtt)
		// Server time observed at the moment the response arrives.
		return clock.Now().Add(skew), nil
	})
	ref := NewReference(source, WithClock(clock))

	require.NoError(t, ref.Probe(context.Background()))

	// offset = serverTime - (t0 + rtt/2) = skew + rtt - rtt/2
	want := (skew + rtt/2).Milliseconds()
	require.Equal(t, want, ref.OffsetMillis())
}

func TestProbe_FailureRetainsPreviousOffset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var fail atomic.Bool

	source := SourceFunc(func(ctx context.Context) (time.Time, error) {
		if fail.Load() {
			return time.Time{}, errors.New("time source unreachable")
		}
		return clock.Now().Add(5 * time.Second), nil
	})
	ref := NewReference(source, WithClock(clock))

	require.NoError(t, ref.Probe(context.Background()))
	require.Equal(t, int64(5000), ref.OffsetMillis())

	fail.Store(true)
	for i := 0; i < 3; i++ {
		require.Error(t, ref.Probe(context.Background()))
	}
	require.Equal(t, int64(5000), ref.OffsetMillis())
	require.True(t, ref.IsSynced())
}

func TestProbe_NeverSucceededStaysUnsynced(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := SourceFunc(func(ctx context.Context) (time.Time, error) {
		return time.Time{}, errors.New("time source unreachable")
	})
	ref := NewReference(source, WithClock(clock))

	require.Error(t, ref.Probe(context.Background()))
	require.Error(t, ref.Probe(context.Background()))

	require.False(t, ref.IsSynced())
	require.Equal(t, int64(0), ref.OffsetMillis())
}

func TestNow_UnsyncedFallsBackToLocalClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := SourceFunc(func(ctx context.Context) (time.Time, error) {
		return time.Time{}, errors.New("time source unreachable")
	})
	ref := NewReference(source, WithClock(clock))

	require.Equal(t, clock.Now(), ref.Now())
	require.False(t, ref.IsSynced())
}

func TestRun_RefreshesPeriodically(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int64

	source := SourceFunc(func(ctx context.Context) (time.Time, error) {
		calls.Add(1)
		return clock.Now().Add(time.Second), nil
	})
	ref := NewReference(source, WithClock(clock), WithStaleAfter(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ref.Run(ctx)
	}()

	// Initial probe fires before the ticker is created.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
}
