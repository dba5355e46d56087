package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo       core.ReaperRepository    // Required: job retention repository
	CrawlPages core.CrawlPageRepository // Optional: crawl snapshot retention
	Outbox     core.OutboxRepository    // Optional: finished outbox retention
	Config     config.ReaperConfig      // Required: reaper configuration
	Logger     *slog.Logger             // Optional: structured logger
	Now        func() time.Time         // Optional: clock override for tests
}

// ReaperService provides retention cleanup.
//
// This service manages:
// - Failing stale pending jobs that were never picked up.
// - Deleting old completed and failed jobs to prevent database bloat.
// - Deleting old crawl page snapshots.
// - Deleting old finished (SENT/SKIPPED) outbox rows.
//
// It never touches POIs, audit records, or the cost ledger.
type ReaperService struct {
	repo       core.ReaperRepository
	crawlPages core.CrawlPageRepository
	outbox     core.OutboxRepository
	config     config.ReaperConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"pending_max_age", opts.Config.PendingMaxAge,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
		)
	}

	return &ReaperService{
		repo:       opts.Repo,
		crawlPages: opts.CrawlPages,
		outbox:     opts.Outbox,
		config:     opts.Config,
		logger:     logger,
		now:        now,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs cleanup operations at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run cleanup immediately after jitter
	if err := s.RunCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the cleanup loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
				// Continue running despite errors
			}
		}
	}
}

// RunCleanup performs all retention operations once.
func (s *ReaperService) RunCleanup(ctx context.Context) error {
	var errs []error
	allContextCanceled := true

	steps := []cleanupStep{
		{fn: s.failStalePendingJobs, label: "fail stale pending jobs"},
		{fn: s.deleteOldCompletedJobs, label: "delete old completed jobs"},
		{fn: s.deleteOldFailedJobs, label: "delete old failed jobs"},
		{fn: s.deleteOldCrawlPages, label: "delete old crawl pages"},
		{fn: s.deleteFinishedOutbox, label: "delete finished outbox entries"},
	}

	for _, step := range steps {
		if _, err := step.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}

	return nil
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	fn    cleanupFunc
	label string
}

// failStalePendingJobs marks pending jobs older than the configured max age as failed.
// Loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) failStalePendingJobs(ctx context.Context) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.FailStalePendingJobs(ctx, s.config.PendingMaxAge, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale pending jobs",
			"count", totalCount,
			"max_age", s.config.PendingMaxAge,
		)
	}

	return totalCount, nil
}

// deleteOldCompletedJobs deletes completed jobs older than the configured max age.
func (s *ReaperService) deleteOldCompletedJobs(ctx context.Context) (int64, error) {
	return s.deleteOldJobs(ctx, model.JobStatusCompleted, s.config.CompletedMaxAge)
}

// deleteOldFailedJobs deletes failed jobs older than the configured max age.
// The failed_jobs record table is untouched; only the queue rows go.
func (s *ReaperService) deleteOldFailedJobs(ctx context.Context) (int64, error) {
	return s.deleteOldJobs(ctx, model.JobStatusFailed, s.config.FailedMaxAge)
}

// deleteOldJobs deletes jobs in the given terminal status older than maxAge.
// Loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) deleteOldJobs(
	ctx context.Context,
	status model.JobStatus,
	maxAge time.Duration,
) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Status:    status,
			MaxAge:    maxAge,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted old jobs",
			"status", status,
			"count", totalCount,
			"max_age", maxAge,
		)
	}

	return totalCount, nil
}

// deleteOldCrawlPages deletes crawl snapshots older than the configured max age.
func (s *ReaperService) deleteOldCrawlPages(ctx context.Context) (int64, error) {
	if s.crawlPages == nil || s.config.CrawlPageMaxAge <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.config.CrawlPageMaxAge)
	var totalCount int64
	for {
		count, err := s.crawlPages.DeleteOlderThan(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted old crawl pages",
			"count", totalCount,
			"max_age", s.config.CrawlPageMaxAge,
		)
	}

	return totalCount, nil
}

// deleteFinishedOutbox deletes SENT and SKIPPED outbox rows older than the
// configured max age. FAILED rows are kept for inspection.
func (s *ReaperService) deleteFinishedOutbox(ctx context.Context) (int64, error) {
	if s.outbox == nil || s.config.OutboxMaxAge <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.config.OutboxMaxAge)
	var totalCount int64
	for {
		count, err := s.outbox.DeleteFinishedBefore(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted finished outbox entries",
			"count", totalCount,
			"max_age", s.config.OutboxMaxAge,
		)
	}

	return totalCount, nil
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
