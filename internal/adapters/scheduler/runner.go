// Package scheduler drives the cron schedule tick loop. The service layer
// owns firing semantics; this adapter only paces it.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// Ticker is the slice of SchedulerService the runner drives.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (service.TickResult, error)
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Scheduler Ticker        // Required: tick target
	Interval  time.Duration // Optional: defaults to 15s
	Logger    *slog.Logger  // Optional: structured logger
}

// Runner calls Tick at a fixed interval until the context is cancelled.
type Runner struct {
	scheduler Ticker
	interval  time.Duration
	logger    *slog.Logger
}

// NewRunner creates a new scheduler runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		scheduler: opts.Scheduler,
		interval:  interval,
		logger:    logger.With("component", "scheduler_runner"),
	}, nil
}

// Run starts the tick loop. A failing tick is logged and the loop keeps
// going; cancellation is the only way out.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "scheduler runner started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scheduler runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			start := time.Now()
			result, err := r.scheduler.Tick(ctx, now)
			if err != nil {
				r.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
				continue
			}
			if result.Fired > 0 {
				r.logger.InfoContext(ctx, "scheduler tick finished",
					"fired", result.Fired,
					"enqueued", result.Enqueued,
					"deduped", result.Skipped,
					"duration", time.Since(start),
				)
			}
		}
	}
}
