package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/adapters/autoscaler"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/adapters/pipeline"
	schedrunner "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/adapters/scheduler"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// RunOptions groups everything needed to run the enabled services.
type RunOptions struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServices starts every enabled service and blocks until the context is
// cancelled or one of them fails. The first failure stops the rest.
func RunServices(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	svc := opts.Services
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g, ctx := errgroup.WithContext(ctx)

	var pools []autoscaler.Pool
	if cfg.IsPipelineEnabled() {
		runners, err := buildStageRunners(cfg, svc, logger)
		if err != nil {
			return err
		}
		for _, runner := range runners {
			pools = append(pools, runner)
			g.Go(func() error { return runner.Run(ctx) })
		}

		g.Go(func() error { return budgetLoop(ctx, opts, logger) })
	}

	if cfg.IsSchedulerEnabled() {
		runner, err := schedrunner.NewRunner(schedrunner.RunnerOptions{
			Scheduler: svc.Scheduler,
			Interval:  cfg.Scheduler.Interval,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("build scheduler runner: %w", err)
		}
		g.Go(func() error { return runner.Run(ctx) })
	}

	if cfg.IsReaperEnabled() {
		g.Go(func() error { return svc.Reaper.Run(ctx) })
	}

	if cfg.IsAutoscalerEnabled() {
		if len(pools) == 0 {
			logger.Warn("autoscaler enabled without the pipeline service, skipping")
		} else {
			scaler, err := autoscaler.New(autoscaler.Options{
				Stats:  svc.Jobs,
				Pools:  pools,
				Config: cfg.Autoscaler,
				Logger: logger,
			})
			if err != nil {
				return fmt.Errorf("build autoscaler: %w", err)
			}
			g.Go(func() error { return scaler.Run(ctx) })
		}
	}

	if cfg.IsHTTPServerEnabled() {
		g.Go(func() error { return runHTTPServer(ctx, opts) })
	}

	return g.Wait()
}

// buildStageRunners creates one worker pool per stage queue.
func buildStageRunners(
	cfg *config.AppConfig,
	svc ServiceContainer,
	logger *slog.Logger,
) ([]*pipeline.Runner, error) {
	if svc.Comparator == nil {
		return nil, errors.New("audit api key is required to run the pipeline")
	}
	if svc.Outbox == nil {
		return nil, errors.New("mail api url is required to run the pipeline")
	}

	deps := pipeline.StageDeps{
		POIs:    svc.Repos.POIs,
		Crawler: svc.Crawler,
		Places:  svc.Places,
		Auditor: svc.Comparator,
		Results: svc.Results,
		Outbox:  svc.Outbox,
	}

	stages := []struct {
		queue model.JobType
		pool  config.WorkerPoolConfig
	}{
		{model.JobTypeCrawl, cfg.Workers.Crawl},
		{model.JobTypeEnrich, cfg.Workers.Enrich},
		{model.JobTypeAudit, cfg.Workers.Audit},
		{model.JobTypeNotify, cfg.Workers.Notify},
	}

	runners := make([]*pipeline.Runner, 0, len(stages))
	for _, stage := range stages {
		runner, err := pipeline.NewRunner(pipeline.Options{
			Jobs:                 svc.Jobs,
			Queue:                stage.queue,
			Deps:                 deps,
			Lease:                stage.pool.JobLease,
			Concurrency:          stage.pool.Concurrency,
			MaxRetries:           cfg.Workers.MaxRetries,
			NotifyScoreThreshold: cfg.Mail.NotifyScoreThreshold,
			Logger:               logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build %s runner: %w", stage.queue, err)
		}
		runners = append(runners, runner)
	}
	return runners, nil
}

// budgetLoop periodically evaluates the month-end spend projection so a
// budget overrun raises its alert even when nobody watches the API.
func budgetLoop(ctx context.Context, opts RunOptions, logger *slog.Logger) error {
	ticker := time.NewTicker(opts.Config.Budget.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := opts.Services.Costs.CheckBudget(ctx); err != nil {
				logger.WarnContext(ctx, "budget check failed", "error", err)
			}
		}
	}
}
