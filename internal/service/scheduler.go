// Package service provides business logic services for the POI audit pipeline.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
)

// invalidCronRecheck is how long a schedule with an unparseable cron
// expression is parked before the scheduler looks at it again.
const invalidCronRecheck = time.Hour

// StageEnqueuer enqueues one stage job with job-key dedup.
type StageEnqueuer interface {
	EnqueueStage(ctx context.Context, req *model.CreateJobRequest) (*model.Job, bool, error)
}

// SchedulerServiceOptions holds the dependencies for creating a SchedulerService.
type SchedulerServiceOptions struct {
	Schedules  core.ScheduleRepository // Required: schedule store
	POIs       core.POIRepository      // Required: POI store for filter expansion
	Jobs       StageEnqueuer           // Required: crawl job enqueue
	Priority   int                     // Optional: priority of scheduled jobs (default 50)
	MaxRetries int                     // Optional: retry budget of scheduled jobs (default 3)
	Logger     *slog.Logger            // Optional: structured logger
	Now        func() time.Time        // Optional: clock override for tests
}

// SchedulerService fires due schedules: it expands each schedule's POI filter
// and seeds the pipeline with crawl jobs. Safe under concurrent replicas; a
// per-schedule advisory lock ensures only one node fires a schedule, and job
// keys make a double fire a no-op.
type SchedulerService struct {
	schedules  core.ScheduleRepository
	pois       core.POIRepository
	jobs       StageEnqueuer
	priority   int
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewSchedulerService creates a new SchedulerService with the given dependencies.
func NewSchedulerService(opts SchedulerServiceOptions) (*SchedulerService, error) {
	if opts.Schedules == nil {
		return nil, errors.New("ScheduleRepository is required")
	}
	if opts.POIs == nil {
		return nil, errors.New("POIRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("StageEnqueuer is required")
	}

	priority := opts.Priority
	if priority <= 0 {
		priority = 50
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "scheduler_service")
	}

	return &SchedulerService{
		schedules:  opts.Schedules,
		pois:       opts.POIs,
		jobs:       opts.Jobs,
		priority:   priority,
		maxRetries: maxRetries,
		logger:     logger,
		now:        now,
	}, nil
}

// TickResult summarises one scheduler pass.
type TickResult struct {
	Fired    int
	Enqueued int
	Skipped  int
}

// Tick fires every due schedule once. Schedules locked by another replica are
// skipped; a failing schedule is logged and does not stop the pass.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	due, err := s.schedules.FindDue(ctx, now)
	if err != nil {
		return TickResult{}, fmt.Errorf("find due schedules: %w", err)
	}

	var result TickResult
	for _, schedule := range due {
		var enqueued, skipped int
		acquired, fireErr := s.schedules.TryWithScheduleLock(ctx, schedule.ID,
			func(lockCtx context.Context) error {
				var innerErr error
				enqueued, skipped, innerErr = s.fire(lockCtx, schedule, now)
				return innerErr
			})
		if fireErr != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "schedule fire failed",
					"schedule", schedule.Name,
					"error", fireErr,
				)
			}
			continue
		}
		if !acquired {
			continue
		}
		result.Fired++
		result.Enqueued += enqueued
		result.Skipped += skipped
	}

	return result, nil
}

// fire expands one schedule into crawl jobs and records the run. Runs under
// the schedule's advisory lock.
func (s *SchedulerService) fire(
	ctx context.Context,
	schedule *model.ScheduleConfig,
	now time.Time,
) (enqueued, skipped int, err error) {
	spec, parseErr := cron.ParseStandard(schedule.CronExpr)
	if parseErr != nil {
		// Administrative input error: park the schedule instead of failing
		// the tick, so one bad expression cannot wedge the scheduler.
		if s.logger != nil {
			s.logger.WarnContext(ctx, "invalid cron expression, parking schedule",
				"schedule", schedule.Name,
				"cron_expr", schedule.CronExpr,
				"recheck_in", invalidCronRecheck,
				"error", parseErr,
			)
		}
		recheck := now.Add(invalidCronRecheck)
		return 0, 0, s.schedules.RecordRun(ctx, core.RecordScheduleRunParams{
			ScheduleID: schedule.ID,
			RanAt:      now,
			NextRunAt:  &recheck,
		})
	}

	pois, err := s.pois.ListByFilter(ctx, schedule.Filter)
	if err != nil {
		return 0, 0, fmt.Errorf("expand poi filter: %w", err)
	}

	fireKey := uuid.NewString()
	for _, poi := range pois {
		created, enqueueErr := s.enqueueCrawl(ctx, schedule, poi, fireKey)
		if enqueueErr != nil {
			return enqueued, skipped, enqueueErr
		}
		if created {
			enqueued++
		} else {
			skipped++
		}
	}

	if err := s.schedules.SetActiveFireKey(ctx, schedule.ID, fireKey); err != nil {
		return enqueued, skipped, fmt.Errorf("set active fire key: %w", err)
	}

	nextRun := spec.Next(now)
	if err := s.schedules.RecordRun(ctx, core.RecordScheduleRunParams{
		ScheduleID: schedule.ID,
		RanAt:      now,
		NextRunAt:  &nextRun,
	}); err != nil {
		return enqueued, skipped, fmt.Errorf("record schedule run: %w", err)
	}

	metrics.ObserveScheduleFire(schedule.Name)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "schedule fired",
			"schedule", schedule.Name,
			"fire_key", fireKey,
			"enqueued", enqueued,
			"deduped", skipped,
			"next_run_at", nextRun,
		)
	}

	return enqueued, skipped, nil
}

// enqueueCrawl seeds one crawl job. Returns false when the POI already has a
// pending or running crawl job.
func (s *SchedulerService) enqueueCrawl(
	ctx context.Context,
	schedule *model.ScheduleConfig,
	poi *model.POI,
	fireKey string,
) (bool, error) {
	payload, err := json.Marshal(model.CrawlPayload{
		POIID:    poi.ID,
		StartURL: derefString(poi.WebsiteURL),
	})
	if err != nil {
		return false, fmt.Errorf("marshal crawl payload: %w", err)
	}

	metadata, err := json.Marshal(map[string]string{
		"scheduler.schedule_id": schedule.ID,
		"scheduler.fire_key":    fireKey,
	})
	if err != nil {
		return false, fmt.Errorf("marshal scheduler metadata: %w", err)
	}

	requestedBy := "scheduler:" + schedule.Name
	poiID := poi.ID
	_, deduped, err := s.jobs.EnqueueStage(ctx, &model.CreateJobRequest{
		Type:        model.JobTypeCrawl,
		Payload:     payload,
		Metadata:    metadata,
		Priority:    s.priority,
		POIID:       &poiID,
		RequestedBy: &requestedBy,
		MaxRetries:  s.maxRetries,
	})
	if err != nil {
		return false, fmt.Errorf("enqueue crawl for poi %s: %w", poi.ID, err)
	}
	return !deduped, nil
}
