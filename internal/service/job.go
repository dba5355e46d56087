package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	domainjob "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/job"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/notify"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service/failurenotifier"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required: default lease duration for jobs
	Logger          *slog.Logger              // Optional: structured logger
	FailedJobs      core.FailedJobRepository  // Optional: terminal failure bookkeeping
	FailureNotifier *failurenotifier.Service  // Optional: failure notification fan-out
	Backoff         *domainjob.BackoffPolicy  // Optional: override retry backoff (default 1s base)
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// JobService provides business logic for the four stage queues.
//
// This service manages:
// - Enqueueing with job-key dedup
// - Job reservation and lease management
// - Retry backoff and terminal failure bookkeeping
// - Pub/sub notification system for job availability
// - Graceful shutdown of all listeners.
type JobService struct {
	repo            core.JobRepository
	failedJobs      core.FailedJobRepository
	leasePolicy     *domainjob.LeasePolicy
	backoff         *domainjob.BackoffPolicy
	notifier        domainjob.Notifier
	logger          *slog.Logger
	failureNotifier *failurenotifier.Service
}

// DefaultRetryBackoffBase is the base delay between job-level retry attempts.
const DefaultRetryBackoffBase = time.Second

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	backoff := opts.Backoff
	if backoff == nil {
		var err error
		backoff, err = domainjob.NewBackoffPolicy(DefaultRetryBackoffBase)
		if err != nil {
			return nil, fmt.Errorf("create backoff policy: %w", err)
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_lease", leasePolicy.Default(),
			"backoff_base", backoff.Base(),
		)
	}

	return &JobService{
		repo:            opts.Repo,
		failedJobs:      opts.FailedJobs,
		leasePolicy:     leasePolicy,
		backoff:         backoff,
		notifier:        notifier,
		logger:          logger,
		failureNotifier: opts.FailureNotifier,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create creates a new job with the given request parameters.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job created",
			"id", job.ID,
			"type", job.Type,
			"status", job.Status,
		)
	}

	return job, nil
}

// EnqueueStage enqueues a stage job for a POI, deriving the job key from the
// stage and POI id. When a pending or running job already carries that key the
// call is an idempotent no-op: the existing job is returned and deduped is true.
func (s *JobService) EnqueueStage(
	ctx context.Context,
	req *model.CreateJobRequest,
) (*model.Job, bool, error) {
	if req.POIID != nil && req.JobKey == nil {
		key := model.JobKey(req.Type, *req.POIID)
		req.JobKey = &key
	}

	job, err := s.repo.Create(ctx, req)
	if err == nil {
		return job, false, nil
	}
	if !errors.Is(err, model.ErrDuplicateJobKey) {
		return nil, false, fmt.Errorf("enqueue %s job: %w", req.Type, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "stage job already in flight, skipping enqueue",
			"type", req.Type,
			"job_key", derefString(req.JobKey),
		)
	}

	existing, findErr := s.findPendingByJobKey(ctx, derefString(req.JobKey))
	if findErr != nil {
		// The in-flight job finished between the conflict and the lookup.
		// The dedup contract held at enqueue time, so still report a no-op.
		if errors.Is(findErr, model.ErrJobNotFound) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("find in-flight %s job: %w", req.Type, findErr)
	}
	return existing, true, nil
}

func (s *JobService) findPendingByJobKey(ctx context.Context, key string) (*model.Job, error) {
	type finder interface {
		FindPendingByJobKey(ctx context.Context, jobKey string) (*model.Job, error)
	}
	if f, ok := s.repo.(finder); ok && key != "" {
		return f.FindPendingByJobKey(ctx, key)
	}
	return nil, model.ErrJobNotFound
}

// ReserveNext reserves the next available job of the given type for processing.
func (s *JobService) ReserveNext(
	ctx context.Context,
	jobType model.JobType,
	lease time.Duration,
) (*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested,
			"job_type", jobType)
	}

	job, err := s.repo.ReserveNext(ctx, jobType, decision.Seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve next job: %w", err)
	}

	if s.logger != nil && job != nil {
		s.logger.DebugContext(ctx, "job reserved",
			"id", job.ID,
			"type", jobType,
			"lease_seconds", decision.Seconds,
		)
	}

	return job, nil
}

// Subscribe creates a subscription for job notifications of the given type.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe(jobType)
}

// WaitForNotification waits for a notification indicating new jobs are available.
func (s *JobService) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	return s.repo.WaitForNotification(ctx, jobType)
}

// Heartbeat extends the lease on a job to indicate it's still being processed.
func (s *JobService) Heartbeat(ctx context.Context, id string, extend time.Duration) (bool, error) {
	decision := s.leasePolicy.Resolve(extend)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second heartbeat duration to 1 second",
			"requested_duration", decision.Requested,
			"job_id", id)
	}

	updated, err := s.repo.Heartbeat(ctx, id, decision.Seconds)
	if err != nil {
		return false, fmt.Errorf("heartbeat job %s: %w", id, err)
	}

	if s.logger != nil && updated {
		s.logger.DebugContext(ctx, "job heartbeat updated", "id", id, "extend_seconds", decision.Seconds)
	}

	return updated, nil
}

// Complete marks a job as completed successfully.
func (s *JobService) Complete(ctx context.Context, id string) (bool, error) {
	completed, err := s.repo.Complete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", id, err)
	}

	if completed {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "job completed", "id", id)
		}
	}

	return completed, nil
}

// JobFailureDetails captures optional context for failure handling.
type JobFailureDetails struct {
	// Kind steers the retry decision. Terminal failures skip the remaining
	// retry budget; everything else spends it.
	Kind       obserrors.FailureKind
	StackTrace string
	Metadata   map[string]string
	Severity   string
	OccurredAt time.Time
}

// Fail records a failed attempt with default details.
func (s *JobService) Fail(ctx context.Context, id, errMsg string) (*model.Job, error) {
	return s.FailWithDetails(ctx, id, errMsg, JobFailureDetails{})
}

// FailWithDetails records a failed attempt. Jobs with retry budget left are
// rescheduled with exponential backoff; exhausted or terminal jobs get a
// failed-job record and a notification.
func (s *JobService) FailWithDetails(
	ctx context.Context,
	id, errMsg string,
	details JobFailureDetails,
) (*model.Job, error) {
	if errMsg == "" {
		return nil, errors.New("error message required")
	}

	params := core.FailJobParams{JobID: id, ErrMsg: errMsg}
	if details.Kind != obserrors.FailureTerminal {
		if current, err := s.repo.GetByID(ctx, id); err == nil {
			params.RetryDelay = s.backoff.Delay(current.RetryCount)
		} else {
			params.RetryDelay = s.backoff.Base()
		}
	}

	job, err := s.repo.Fail(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fail job %s: %w", id, err)
	}

	if job.Status != model.JobStatusFailed {
		metrics.ObserveJobTransition(string(job.Type), metrics.ResultRetried)
		if s.logger != nil {
			s.logger.DebugContext(ctx, "job attempt failed, retry scheduled",
				"id", id,
				"type", job.Type,
				"retry_count", job.RetryCount,
				"max_retries", job.MaxRetries,
				"retry_delay", params.RetryDelay,
				"error", errMsg,
			)
		}
		return job, nil
	}

	metrics.ObserveJobTransition(string(job.Type), metrics.ResultFailed)
	if s.logger != nil {
		s.logger.WarnContext(ctx, "job permanently failed",
			"id", id,
			"type", job.Type,
			"attempts", job.RetryCount,
			"error", errMsg,
		)
	}

	s.recordTerminalFailure(ctx, job, errMsg, details)
	s.notifyTerminalFailure(ctx, job, errMsg, details)

	return job, nil
}

// recordTerminalFailure preserves the exhausted job for manual retries.
func (s *JobService) recordTerminalFailure(
	ctx context.Context,
	job *model.Job,
	errMsg string,
	details JobFailureDetails,
) {
	if s.failedJobs == nil {
		return
	}

	stack := details.StackTrace
	if stack == "" {
		stack = string(debug.Stack())
	}

	record := &model.FailedJobRecord{
		Queue:        job.Type,
		JobID:        job.ID,
		POIID:        job.POIID,
		Payload:      job.Payload,
		ErrorMessage: errMsg,
		StackTrace:   stack,
		Attempts:     job.RetryCount,
		MaxAttempts:  job.MaxRetries,
	}

	if _, err := s.failedJobs.Create(ctx, record); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to persist failed-job record",
			"job_id", job.ID,
			"queue", job.Type,
			"error", err,
		)
	}
}

func (s *JobService) notifyTerminalFailure(
	ctx context.Context,
	job *model.Job,
	errMsg string,
	details JobFailureDetails,
) {
	if s.failureNotifier == nil || !s.failureNotifier.Enabled() {
		return
	}

	kind := details.Kind
	if kind == "" {
		kind = obserrors.FailureTerminal
	}

	occurredAt := details.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	payload := notify.JobFailurePayload{
		JobID:       job.ID,
		Queue:       string(job.Type),
		POIID:       derefString(job.POIID),
		Error:       errMsg,
		FailureKind: string(kind),
		Attempts:    job.RetryCount,
		MaxAttempts: job.MaxRetries,
		Severity:    details.Severity,
		OccurredAt:  occurredAt,
		Metadata:    copyMetadata(details.Metadata),
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	s.failureNotifier.NotifyJobFailure(ctx, payload)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" || v == "" {
			continue
		}
		dst[k] = v
	}
	if len(dst) == 0 {
		return nil
	}
	return dst
}

// Stats returns statistics about jobs of the given type in different states.
func (s *JobService) Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, jobType)
	if err != nil {
		return nil, fmt.Errorf("get job stats for type %s: %w", jobType, err)
	}
	return stats, nil
}

// StatsAll returns per-queue statistics for every stage.
func (s *JobService) StatsAll(ctx context.Context) (model.QueueStats, error) {
	stats, err := s.repo.StatsAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return stats, nil
}

// GetStatus returns the status information for a specific job.
func (s *JobService) GetStatus(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	return &model.JobStatusResponse{
		Status:      job.Status,
		CompletedAt: job.CompletedAt,
		LastError:   job.LastError,
	}, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// paginationParams holds normalized pagination parameters.
type paginationParams struct {
	Limit  int
	Offset int
}

// normalizePagination clamps pagination parameters to safe defaults.
// Default limit: 50, max limit: 1000, min offset: 0.
func normalizePagination(limit, offset int) paginationParams {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	return paginationParams{Limit: limit, Offset: offset}
}

// List returns jobs with optional filtering for the operations view.
// This uses an optional repository extension if available; otherwise returns an empty list.
// Pagination defaults are normalized here to avoid drift across layers.
func (s *JobService) List(
	ctx context.Context,
	opts *model.JobListOptions,
) ([]*model.Job, error) {
	p := normalizePagination(opts.Limit, opts.Offset)
	opts.Limit = p.Limit
	opts.Offset = p.Offset

	type lister interface {
		List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error)
	}
	if lr, ok := s.repo.(lister); ok {
		jobs, err := lr.List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		return jobs, nil
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "repository does not support List, returning empty list")
	}
	return []*model.Job{}, nil
}

// ListByPOI returns the most recent jobs touching a POI.
// This uses an optional repository extension if available; otherwise returns an empty list.
func (s *JobService) ListByPOI(
	ctx context.Context,
	poiID string,
	limit int,
) ([]*model.Job, error) {
	if poiID == "" {
		return nil, errors.New("poi id is required")
	}

	type lister interface {
		ListByPOI(ctx context.Context, poiID string, limit int) ([]*model.Job, error)
	}
	if lr, ok := s.repo.(lister); ok {
		jobs, err := lr.ListByPOI(ctx, poiID, limit)
		if err != nil {
			return nil, fmt.Errorf("list jobs for poi %s: %w", poiID, err)
		}
		return jobs, nil
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx,
			"repository does not support ListByPOI, returning empty list",
			"poi_id", poiID,
		)
	}
	return []*model.Job{}, nil
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
