// Package autoscaler follows queue depth and resizes the stage worker pools.
// Scaling moves one worker at a time with separate up and down thresholds, so
// a backlog hovering near one boundary cannot make the pools oscillate.
package autoscaler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
)

// QueueStatser reports per-queue job counts.
type QueueStatser interface {
	StatsAll(ctx context.Context) (model.QueueStats, error)
}

// Pool is a resizable stage worker pool.
type Pool interface {
	Queue() model.JobType
	WorkerCount() int
	Resize(n int) int
}

// Options holds the dependencies for creating an Autoscaler.
type Options struct {
	Stats  QueueStatser            // Required: queue depth source
	Pools  []Pool                  // Required: pools under management
	Config config.AutoscalerConfig // Thresholds, bounds, poll interval
	Logger *slog.Logger            // Optional: structured logger
}

// Autoscaler polls queue depth and nudges each pool toward its backlog.
type Autoscaler struct {
	stats  QueueStatser
	pools  []Pool
	cfg    config.AutoscalerConfig
	logger *slog.Logger
}

// New creates an Autoscaler for the given pools.
func New(opts Options) (*Autoscaler, error) {
	if opts.Stats == nil {
		return nil, errors.New("queue stats source is required")
	}
	if len(opts.Pools) == 0 {
		return nil, errors.New("at least one pool is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Autoscaler{
		stats:  opts.Stats,
		pools:  opts.Pools,
		cfg:    cfg,
		logger: logger.With("component", "autoscaler"),
	}, nil
}

// Run polls queue depth until the context is cancelled. A failed poll is
// logged and skipped; pools keep their current size.
func (a *Autoscaler) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "autoscaler started",
		"interval", a.cfg.Interval,
		"scale_up_backlog", a.cfg.ScaleUpBacklog,
		"scale_down_backlog", a.cfg.ScaleDownBacklog,
		"min_workers", a.cfg.MinWorkers,
		"max_workers", a.cfg.MaxWorkers,
	)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Autoscaler) tick(ctx context.Context) {
	stats, err := a.stats.StatsAll(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "queue stats poll failed, keeping pool sizes", "error", err)
		return
	}

	for queue, s := range stats {
		metrics.SetQueueDepth(string(queue), string(model.JobStatusPending), s.Pending)
		metrics.SetQueueDepth(string(queue), string(model.JobStatusRunning), s.Running)
	}

	for _, pool := range a.pools {
		current := pool.WorkerCount()
		target := a.decide(stats[pool.Queue()], current)
		if target == current {
			continue
		}
		applied := pool.Resize(target)
		a.logger.InfoContext(ctx, "worker pool resized",
			"queue", pool.Queue(),
			"from", current,
			"to", applied,
			"pending", stats[pool.Queue()].Pending,
		)
	}
}

// decide returns the next pool size for the observed backlog: one step up
// when the per-worker backlog exceeds the upper threshold, one step down when
// it falls below the lower one, unchanged inside the band.
func (a *Autoscaler) decide(stats model.JobStats, workers int) int {
	if workers < 1 {
		workers = 1
	}

	perWorker := float64(stats.Pending) / float64(workers)
	target := workers
	switch {
	case perWorker > float64(a.cfg.ScaleUpBacklog):
		target = workers + 1
	case perWorker < float64(a.cfg.ScaleDownBacklog):
		target = workers - 1
	}

	if target < a.cfg.MinWorkers {
		target = a.cfg.MinWorkers
	}
	if target > a.cfg.MaxWorkers {
		target = a.cfg.MaxWorkers
	}
	return target
}
