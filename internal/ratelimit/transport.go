package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// TransportOptions configures a guarded HTTP transport.
type TransportOptions struct {
	Base     http.RoundTripper // Optional: defaults to http.DefaultTransport
	Bucket   *TokenBucket      // Optional: shared call budget
	Resource string            // Required with Bucket: budget key
	Breaker  *Breaker          // Optional: consecutive-failure guard
	Logger   *slog.Logger      // Optional: structured logger
}

// Transport wraps an http.RoundTripper with the token bucket and circuit
// breaker, so a stage client picks up both guards without knowing about them.
// A redis outage fails open: the call proceeds and the miss is logged.
type Transport struct {
	base     http.RoundTripper
	bucket   *TokenBucket
	resource string
	breaker  *Breaker
	logger   *slog.Logger
}

// NewTransport constructs a guarded transport.
func NewTransport(opts TransportOptions) *Transport {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		base:     base,
		bucket:   opts.Bucket,
		resource: opts.Resource,
		breaker:  opts.Breaker,
		logger:   logger,
	}
}

// RoundTrip applies the budget and breaker checks, then delegates to the
// base transport. Budget refusals never count as breaker failures; only the
// upstream's own behaviour settles the circuit.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.bucket != nil {
		if err := t.bucket.Allow(req.Context(), t.resource); err != nil {
			if errors.Is(err, ErrBudgetExhausted) {
				return nil, fmt.Errorf("%s: %w", t.resource, err)
			}
			t.logger.WarnContext(req.Context(), "token bucket unavailable, failing open",
				"resource", t.resource,
				"error", err,
			)
		}
	}

	if t.breaker != nil {
		if err := t.breaker.Allow(); err != nil {
			return nil, fmt.Errorf("%s: %w", req.URL.Host, err)
		}
	}

	resp, err := t.base.RoundTrip(req)
	if t.breaker != nil {
		t.breaker.Record(callOutcome(resp, err))
	}
	return resp, err
}

// callOutcome maps a response to the breaker's success/failure signal.
// Server errors count as failures; client errors do not, they are the
// caller's problem and say nothing about upstream health.
func callOutcome(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return nil
}
