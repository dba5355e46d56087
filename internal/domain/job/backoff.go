package job

import (
	"errors"
	"math/rand/v2"
	"time"
)

// ErrInvalidBackoffBase indicates the configured base delay is not positive.
var ErrInvalidBackoffBase = errors.New("backoff base must be positive")

// BackoffPolicy computes retry delays: exponential doubling from a base with
// a small random jitter. The same policy serves job-level retries (queue
// rescheduling) and call-level retries (HTTP clients); the two are layered.
type BackoffPolicy struct {
	base     time.Duration
	maxDelay time.Duration
	jitter   float64
	randFn   func() float64
}

// BackoffOption adjusts optional policy knobs.
type BackoffOption func(*BackoffPolicy)

// WithMaxDelay caps the computed delay.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(p *BackoffPolicy) { p.maxDelay = d }
}

// WithJitterFraction sets the jitter band as a fraction of the computed
// delay. Default is 0.1 (±10%).
func WithJitterFraction(f float64) BackoffOption {
	return func(p *BackoffPolicy) { p.jitter = f }
}

// WithRandFn overrides the jitter randomness source, for deterministic tests.
func WithRandFn(fn func() float64) BackoffOption {
	return func(p *BackoffPolicy) { p.randFn = fn }
}

// NewBackoffPolicy constructs a BackoffPolicy with the given base delay.
func NewBackoffPolicy(base time.Duration, opts ...BackoffOption) (*BackoffPolicy, error) {
	if base <= 0 {
		return nil, ErrInvalidBackoffBase
	}
	p := &BackoffPolicy{
		base:     base,
		maxDelay: 5 * time.Minute,
		jitter:   0.1,
		randFn:   rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Base returns the configured base delay.
func (p *BackoffPolicy) Base() time.Duration {
	if p == nil {
		return 0
	}
	return p.base
}

// Delay returns the wait before the given retry attempt. Attempt 0 is the
// first retry: base × 2^attempt, jittered, capped at the max delay. Negative
// attempts are treated as 0.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if p == nil {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := p.base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			delay = p.maxDelay
			break
		}
	}

	if p.jitter > 0 {
		// Symmetric jitter: delay ± jitter fraction.
		band := float64(delay) * p.jitter
		offset := (p.randFn()*2 - 1) * band
		delay = time.Duration(float64(delay) + offset)
	}

	if delay < 0 {
		delay = 0
	}
	if p.maxDelay > 0 && delay > p.maxDelay {
		delay = p.maxDelay
	}
	return delay
}
