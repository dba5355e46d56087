package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerOptions{
		Threshold: 3,
		Cooldown:  30 * time.Second,
		Now:       func() time.Time { return now },
	})

	boom := errors.New("boom")
	for range 3 {
		require.NoError(t, b.Allow())
		b.Record(boom)
	}

	assert.True(t, b.Tripped())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := NewBreaker(BreakerOptions{Threshold: 2, Cooldown: time.Minute})

	boom := errors.New("boom")
	require.NoError(t, b.Allow())
	b.Record(boom)
	require.NoError(t, b.Allow())
	b.Record(nil)
	require.NoError(t, b.Allow())
	b.Record(boom)

	// One failure after a success does not reach the threshold of two.
	assert.False(t, b.Tripped())
	assert.NoError(t, b.Allow())
}

func TestBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerOptions{
		Threshold: 1,
		Cooldown:  10 * time.Second,
		Now:       func() time.Time { return now },
	})

	require.NoError(t, b.Allow())
	b.Record(errors.New("boom"))
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(11 * time.Second)

	// Only one probe may be in flight at a time.
	require.NoError(t, b.Allow())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	b.Record(nil)
	assert.NoError(t, b.Allow())
	assert.False(t, b.Tripped())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerOptions{
		Threshold: 1,
		Cooldown:  10 * time.Second,
		Now:       func() time.Time { return now },
	})

	require.NoError(t, b.Allow())
	b.Record(errors.New("boom"))

	now = now.Add(11 * time.Second)
	require.NoError(t, b.Allow())
	b.Record(errors.New("still down"))

	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}
