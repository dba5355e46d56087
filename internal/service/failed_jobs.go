package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// FailedJobServiceOptions groups dependencies for FailedJobService.
type FailedJobServiceOptions struct {
	Records    core.FailedJobRepository // Required: failed-job record store
	Jobs       StageEnqueuer            // Required: re-enqueue target
	MaxRetries int                      // Optional: retry budget of resubmitted jobs (default 3)
	Logger     *slog.Logger             // Optional: structured logger
	Now        func() time.Time         // Optional: clock override for tests
}

// FailedJobService re-enqueues jobs that exhausted their retries. Records are
// history: a retry stamps them rather than deleting them, and a record can be
// retried at most once.
type FailedJobService struct {
	records    core.FailedJobRepository
	jobs       StageEnqueuer
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewFailedJobService constructs a new FailedJobService.
func NewFailedJobService(opts FailedJobServiceOptions) (*FailedJobService, error) {
	if opts.Records == nil {
		return nil, errors.New("FailedJobRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("StageEnqueuer is required")
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
		logger = opts.Logger.With("component", "failed_job_service")
	}

	return &FailedJobService{
		records:    opts.Records,
		jobs:       opts.Jobs,
		maxRetries: maxRetries,
		logger:     logger,
		now:        now,
	}, nil
}

// List returns open (not yet retried) failure records, optionally filtered by queue.
func (s *FailedJobService) List(
	ctx context.Context,
	queue *model.JobType,
	limit int,
) ([]*model.FailedJobRecord, error) {
	records, err := s.records.List(ctx, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	return records, nil
}

// Retry resubmits one failed job with a fresh retry budget. The original
// payload is reused verbatim; an in-flight job for the same POI and stage
// makes the retry a no-op without stamping the record.
func (s *FailedJobService) Retry(ctx context.Context, recordID string) (*model.Job, error) {
	if recordID == "" {
		return nil, errors.New("record id is required")
	}

	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load failed job %s: %w", recordID, err)
	}
	if record.RetriedAt != nil {
		return nil, fmt.Errorf("failed job %s: already retried at %s",
			recordID, record.RetriedAt.Format(time.RFC3339))
	}

	requestedBy := "failed-job-retry"
	job, deduped, err := s.jobs.EnqueueStage(ctx, &model.CreateJobRequest{
		Type:        record.Queue,
		Payload:     record.Payload,
		POIID:       record.POIID,
		RequestedBy: &requestedBy,
		MaxRetries:  s.maxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("re-enqueue failed job %s: %w", recordID, err)
	}
	if deduped {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "retry skipped, job already in flight",
				"record_id", recordID,
				"queue", record.Queue,
			)
		}
		return job, nil
	}

	if err := s.records.MarkRetried(ctx, recordID, s.now()); err != nil {
		return nil, fmt.Errorf("mark failed job %s retried: %w", recordID, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "failed job re-enqueued",
			"record_id", recordID,
			"queue", record.Queue,
			"job_id", job.ID,
		)
	}

	return job, nil
}

// RetryAllResult summarises a bulk retry pass.
type RetryAllResult struct {
	Retried int
	Skipped int
}

// RetryAll resubmits every open failure record, optionally restricted to one
// queue. Individual failures are logged and counted as skipped so one bad
// record cannot block the rest.
func (s *FailedJobService) RetryAll(
	ctx context.Context,
	queue *model.JobType,
) (RetryAllResult, error) {
	records, err := s.records.List(ctx, queue, 0)
	if err != nil {
		return RetryAllResult{}, fmt.Errorf("list failed jobs: %w", err)
	}

	var result RetryAllResult
	for _, record := range records {
		if _, retryErr := s.Retry(ctx, record.ID); retryErr != nil {
			result.Skipped++
			if s.logger != nil {
				s.logger.WarnContext(ctx, "bulk retry: record skipped",
					"record_id", record.ID,
					"error", retryErr,
				)
			}
			continue
		}
		result.Retried++
	}

	return result, nil
}
