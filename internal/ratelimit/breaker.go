package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker refuses calls during cooldown.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerOptions configures a Breaker.
type BreakerOptions struct {
	// Threshold is the consecutive-failure count that trips the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Breaker is a consecutive-failure circuit breaker. After Threshold failures
// in a row it refuses calls for Cooldown, then lets a single probe through;
// the probe's outcome closes or re-opens the circuit.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker constructs a Breaker with guardrailed options.
func NewBreaker(opts BreakerOptions) *Breaker {
	threshold := opts.Threshold
	if threshold < 1 {
		threshold = 5
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
	}
}

// Allow reports whether a call may proceed. During cooldown it returns
// ErrCircuitOpen; once the cooldown lapses it admits exactly one probe call
// until Record settles the outcome.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		return ErrCircuitOpen
	}
	if b.probing {
		return ErrCircuitOpen
	}
	b.probing = true
	return nil
}

// Record settles the outcome of a call admitted by Allow. A success closes
// the circuit; a failure increments the streak and restarts the cooldown
// when the threshold is crossed.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = b.now()
	}
}

// Tripped reports whether the breaker is currently refusing calls.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.threshold && b.now().Sub(b.openedAt) < b.cooldown
}
