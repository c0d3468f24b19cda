package lifecycle

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// TimeProvider supplies the authoritative instant the state machine derives
// from. Satisfied by timeref.Reference.
type TimeProvider interface {
	Now() time.Time
	IsSynced() bool
}

// Ticker polls the schedule at a fine-grained interval and re-derives the
// session state on every tick. This is deliberately a pull loop, not an
// event-driven observer: the countdown display wants a smooth 100ms cadence.
//
// ended and error are absorbing: once either is reached the ticker keeps
// reporting it regardless of later input changes. A changed scheduledStart is
// a new session, not an update.
type Ticker struct {
	clock    Clock
	times    TimeProvider
	interval time.Duration
	schedule func() Schedule
	onTick   func(Snapshot)

	mu       sync.Mutex
	last     Snapshot
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// TickerConfig holds construction parameters for a lifecycle ticker.
type TickerConfig struct {
	Clock    Clock
	Times    TimeProvider
	Interval time.Duration
	Schedule func() Schedule // read fresh on every tick
	OnTick   func(Snapshot)  // invoked on every tick with the derived snapshot
}

// NewTicker creates a lifecycle ticker. Interval defaults to
// DefaultTickInterval and Clock to the real clock.
func NewTicker(cfg TickerConfig) *Ticker {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	return &Ticker{
		clock:    cfg.Clock,
		times:    cfg.Times,
		interval: cfg.Interval,
		schedule: cfg.Schedule,
		onTick:   cfg.OnTick,
		last:     Snapshot{State: StateLoading},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the polling loop. Calling Start more than once is a no-op.
func (t *Ticker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.run()
}

// Stop tears the loop down. Safe to call multiple times and before Start.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if started {
		<-t.doneCh
	}
}

// Current returns the most recently derived snapshot.
func (t *Ticker) Current() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// MarkError forces the terminal error state, used when the schedule cannot be
// established at first load.
func (t *Ticker) MarkError() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last.State.Terminal() {
		return
	}
	t.last = Snapshot{State: StateError, IsTimeSynced: t.last.IsTimeSynced}
	log.Warn().Msg("session lifecycle marked as error")
}

func (t *Ticker) run() {
	defer close(t.doneCh)

	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.Chan():
			t.tick()
		}
	}
}

// tick derives a fresh snapshot and reports it. One tick never stops the loop.
func (t *Ticker) tick() {
	t.mu.Lock()
	if t.last.State.Terminal() {
		snap := t.last
		t.mu.Unlock()
		t.report(snap)
		return
	}
	snap := Derive(t.schedule(), t.times.Now(), t.times.IsSynced())
	prev := t.last.State
	t.last = snap
	t.mu.Unlock()

	if prev != snap.State {
		log.Info().
			Str("from", string(prev)).
			Str("to", string(snap.State)).
			Msg("session lifecycle transition")
	}
	t.report(snap)
}

func (t *Ticker) report(snap Snapshot) {
	if t.onTick == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("lifecycle tick callback panicked")
		}
	}()
	t.onTick(snap)
}
