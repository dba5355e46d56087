// Package ratelimit guards external API spend with a redis-backed token
// bucket and an in-process circuit breaker. The bucket coordinates call
// budgets across nodes; the breaker stops hammering a collaborator that is
// already failing.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExhausted is returned when the bucket has no tokens left in the
// current window.
var ErrBudgetExhausted = errors.New("call budget exhausted")

// TokenBucketOptions configures a TokenBucket.
type TokenBucketOptions struct {
	Client redis.UniversalClient // Required: shared redis connection
	Prefix string                // Optional: key namespace, defaults to "bucket"
	Limit  int64                 // Required: tokens per window
	Window time.Duration         // Required: refill window
}

// TokenBucket is a fixed-window counter shared across nodes. Each Allow call
// consumes one token; the window key expires on its own so there is no
// refill bookkeeping.
type TokenBucket struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewTokenBucket constructs a TokenBucket.
func NewTokenBucket(opts TokenBucketOptions) (*TokenBucket, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if opts.Window <= 0 {
		return nil, errors.New("window must be positive")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "bucket"
	}
	return &TokenBucket{
		client: opts.Client,
		prefix: prefix,
		limit:  opts.Limit,
		window: opts.Window,
	}, nil
}

// Allow consumes one token for the named resource. It returns
// ErrBudgetExhausted when the window's budget is spent, and propagates redis
// errors so callers can decide whether to fail open.
func (b *TokenBucket) Allow(ctx context.Context, resource string) error {
	if resource == "" {
		return errors.New("resource is required")
	}
	key := b.windowKey(resource)

	count, err := b.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment token bucket: %w", err)
	}
	if count == 1 {
		// First token of the window owns the expiry. EXPIRE after INCR is
		// fine here: an orphaned key without TTL only survives until the
		// next window's first caller sets it again.
		if err := b.client.Expire(ctx, key, b.window).Err(); err != nil {
			return fmt.Errorf("set token bucket expiry: %w", err)
		}
	}
	if count > b.limit {
		return ErrBudgetExhausted
	}
	return nil
}

// Remaining reports how many tokens are left in the current window.
func (b *TokenBucket) Remaining(ctx context.Context, resource string) (int64, error) {
	count, err := b.client.Get(ctx, b.windowKey(resource)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return b.limit, nil
		}
		return 0, fmt.Errorf("read token bucket: %w", err)
	}
	remaining := b.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (b *TokenBucket) windowKey(resource string) string {
	window := time.Now().UnixNano() / int64(b.window)
	return fmt.Sprintf("%s:%s:%d", b.prefix, resource, window)
}
