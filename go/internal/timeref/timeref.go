package timeref

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultStaleAfter is how long a successful probe stays valid before the next
// read of Now triggers an opportunistic refresh.
const DefaultStaleAfter = 5 * time.Minute

// DefaultProbeTimeout bounds a single round trip to the time source.
const DefaultProbeTimeout = 5 * time.Second

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// TimeSource returns the authoritative server time. Implementations perform
// the actual network round trip.
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// ProbeMetrics defines what the reference needs from a metrics sink.
type ProbeMetrics interface {
	RecordProbe(success bool)
}

// noopMetrics is used when no metrics sink is wired.
type noopMetrics struct{}

func (noopMetrics) RecordProbe(bool) {}

// Reference is the process-wide authoritative time reference. It holds the
// estimated serverNow-localNow offset and corrects every read of Now by it.
// All methods are safe for concurrent use; only completed probes mutate the
// offset, and reads before the first successful probe fall back to the local
// clock with IsSynced reporting false.
type Reference struct {
	clock        Clock
	source       TimeSource
	staleAfter   time.Duration
	probeTimeout time.Duration
	metrics      ProbeMetrics

	mu           sync.RWMutex
	offset       time.Duration
	lastSyncedAt time.Time
	synced       bool

	probeMu   sync.Mutex
	probing   bool
	loggedRaw bool
}

// Option configures a Reference.
type Option func(*Reference)

// WithClock injects a clock, typically a clockwork fake in tests.
func WithClock(clock Clock) Option {
	return func(r *Reference) { r.clock = clock }
}

// WithStaleAfter overrides the staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Reference) { r.staleAfter = d }
}

// WithProbeTimeout overrides the per-probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Reference) { r.probeTimeout = d }
}

// WithMetrics wires a probe metrics sink.
func WithMetrics(m ProbeMetrics) Option {
	return func(r *Reference) { r.metrics = m }
}

// NewReference creates a time reference backed by the given source. The
// reference starts unsynced; call Probe or Run to establish the offset.
func NewReference(source TimeSource, opts ...Option) *Reference {
	r := &Reference{
		clock:        clockwork.NewRealClock(),
		source:       source,
		staleAfter:   DefaultStaleAfter,
		probeTimeout: DefaultProbeTimeout,
		metrics:      noopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Probe performs one round trip against the time source and, on success,
// updates the offset estimate. The offset is computed against the midpoint of
// the round trip: half the measured latency is credited to the request leg.
// That halving assumes symmetric request/response timing, which is an
// approximation, not exact.
//
// On failure the previous offset (if any) is retained.
func (r *Reference) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	t0 := r.clock.Now()
	serverTime, err := r.source.ServerTime(ctx)
	t1 := r.clock.Now()
	if err != nil {
		r.metrics.RecordProbe(false)
		log.Warn().Err(err).Msg("time probe failed, retaining previous offset")
		return err
	}

	halfLatency := t1.Sub(t0) / 2
	offset := serverTime.Sub(t0.Add(halfLatency))

	r.mu.Lock()
	r.offset = offset
	r.lastSyncedAt = t1
	r.synced = true
	r.mu.Unlock()

	r.metrics.RecordProbe(true)
	log.Debug().
		Int64("offset_ms", offset.Milliseconds()).
		Dur("round_trip", t1.Sub(t0)).
		Msg("time probe completed")
	return nil
}

// Now returns the offset-corrected authoritative time. Before the first
// successful probe it degrades to the local clock and kicks off an
// asynchronous probe; it never blocks and never fails.
func (r *Reference) Now() time.Time {
	local := r.clock.Now()

	r.mu.RLock()
	offset := r.offset
	synced := r.synced
	lastSyncedAt := r.lastSyncedAt
	r.mu.RUnlock()

	if !synced {
		r.logUnsyncedOnce()
		r.probeAsync()
		return local
	}
	if local.Sub(lastSyncedAt) >= r.staleAfter {
		r.probeAsync()
	}
	return local.Add(offset)
}

// OffsetMillis returns the current offset estimate in milliseconds. Zero until
// the first successful probe.
func (r *Reference) OffsetMillis() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.offset.Milliseconds()
}

// IsSynced reports whether at least one probe has ever succeeded.
func (r *Reference) IsSynced() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.synced
}

// Run refreshes the offset on a fixed interval until ctx is cancelled. It
// probes once immediately, then every staleAfter, independent of consumer
// activity. Probe failures are non-fatal and retried on the next interval.
func (r *Reference) Run(ctx context.Context) {
	if err := r.Probe(ctx); err != nil {
		log.Warn().Err(err).Msg("initial time probe failed")
	}

	ticker := r.clock.NewTicker(r.staleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("time reference refresh loop stopped")
			return
		case <-ticker.Chan():
			if err := r.Probe(ctx); err != nil {
				log.Warn().Err(err).Msg("periodic time probe failed")
			}
		}
	}
}

// probeAsync fires a background probe unless one is already in flight.
func (r *Reference) probeAsync() {
	r.probeMu.Lock()
	if r.probing {
		r.probeMu.Unlock()
		return
	}
	r.probing = true
	r.probeMu.Unlock()

	go func() {
		defer func() {
			r.probeMu.Lock()
			r.probing = false
			r.probeMu.Unlock()
		}()
		// Errors are already logged inside Probe.
		_ = r.Probe(context.Background())
	}()
}

// logUnsyncedOnce logs the local-clock fallback a single time rather than on
// every read.
func (r *Reference) logUnsyncedOnce() {
	r.probeMu.Lock()
	defer r.probeMu.Unlock()
	if !r.loggedRaw {
		r.loggedRaw = true
		log.Info().Msg("time reference not yet synced, trusting local clock")
	}
}
