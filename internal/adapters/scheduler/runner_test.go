package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

type stubTicker struct {
	ticks atomic.Int64
	err   error
}

func (s *stubTicker) Tick(_ context.Context, _ time.Time) (service.TickResult, error) {
	s.ticks.Add(1)
	if s.err != nil {
		return service.TickResult{}, s.err
	}
	return service.TickResult{Fired: 1, Enqueued: 2}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunner_Run_TicksUntilCancelled(t *testing.T) {
	ticker := &stubTicker{}
	r, err := NewRunner(RunnerOptions{
		Scheduler: ticker,
		Interval:  10 * time.Millisecond,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(3 * time.Second)
	for ticker.ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 ticks, got %d", ticker.ticks.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_Run_SurvivesTickErrors(t *testing.T) {
	ticker := &stubTicker{err: errors.New("db down")}
	r, err := NewRunner(RunnerOptions{
		Scheduler: ticker,
		Interval:  10 * time.Millisecond,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(3 * time.Second)
	for ticker.ticks.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("runner stopped ticking after an error")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestNewRunner_RequiresScheduler(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}
