package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackoffPolicy_RejectsNonPositiveBase(t *testing.T) {
	_, err := NewBackoffPolicy(0)
	assert.ErrorIs(t, err, ErrInvalidBackoffBase)

	_, err = NewBackoffPolicy(-time.Second)
	assert.ErrorIs(t, err, ErrInvalidBackoffBase)
}

func TestBackoffPolicy_DoublesPerAttempt(t *testing.T) {
	// Fixed randomness at the midpoint removes jitter from the assertion.
	policy, err := NewBackoffPolicy(time.Second, WithRandFn(func() float64 { return 0.5 }))
	require.NoError(t, err)

	assert.Equal(t, time.Second, policy.Delay(0))
	assert.Equal(t, 2*time.Second, policy.Delay(1))
	assert.Equal(t, 4*time.Second, policy.Delay(2))
}

func TestBackoffPolicy_JitterStaysInBand(t *testing.T) {
	policy, err := NewBackoffPolicy(time.Second)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		d := policy.Delay(1)
		assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
		assert.LessOrEqual(t, d, 2200*time.Millisecond)
	}
}

func TestBackoffPolicy_CapsAtMaxDelay(t *testing.T) {
	policy, err := NewBackoffPolicy(time.Second,
		WithMaxDelay(3*time.Second),
		WithRandFn(func() float64 { return 1.0 }))
	require.NoError(t, err)

	assert.LessOrEqual(t, policy.Delay(10), 3*time.Second)
}

func TestBackoffPolicy_NegativeAttemptTreatedAsFirst(t *testing.T) {
	policy, err := NewBackoffPolicy(time.Second, WithRandFn(func() float64 { return 0.5 }))
	require.NoError(t, err)

	assert.Equal(t, policy.Delay(0), policy.Delay(-3))
}
