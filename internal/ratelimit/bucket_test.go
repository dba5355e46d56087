package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBucket(t *testing.T, limit int64) (*TokenBucket, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := NewTokenBucket(TokenBucketOptions{
		Client: client,
		Prefix: "test",
		Limit:  limit,
		Window: time.Minute,
	})
	require.NoError(t, err)
	return bucket, mr
}

func TestTokenBucket_AllowWithinLimit(t *testing.T) {
	bucket, _ := newTestBucket(t, 3)
	ctx := context.Background()

	for range 3 {
		assert.NoError(t, bucket.Allow(ctx, "geocode"))
	}
	assert.ErrorIs(t, bucket.Allow(ctx, "geocode"), ErrBudgetExhausted)
}

func TestTokenBucket_ResourcesAreIndependent(t *testing.T) {
	bucket, _ := newTestBucket(t, 1)
	ctx := context.Background()

	require.NoError(t, bucket.Allow(ctx, "geocode"))
	assert.ErrorIs(t, bucket.Allow(ctx, "geocode"), ErrBudgetExhausted)
	assert.NoError(t, bucket.Allow(ctx, "llm"))
}

func TestTokenBucket_Remaining(t *testing.T) {
	bucket, _ := newTestBucket(t, 5)
	ctx := context.Background()

	remaining, err := bucket.Remaining(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, int64(5), remaining)

	require.NoError(t, bucket.Allow(ctx, "mail"))
	require.NoError(t, bucket.Allow(ctx, "mail"))

	remaining, err = bucket.Remaining(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining)
}

func TestNewTokenBucket_Validation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewTokenBucket(TokenBucketOptions{Limit: 1, Window: time.Minute})
	assert.Error(t, err)

	_, err = NewTokenBucket(TokenBucketOptions{Client: client, Window: time.Minute})
	assert.Error(t, err)

	_, err = NewTokenBucket(TokenBucketOptions{Client: client, Limit: 1})
	assert.Error(t, err)
}
