package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for job queue data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, queue model.JobType, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, queue model.JobType) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, params FailJobParams) (*model.Job, error)
	Stats(ctx context.Context, queue model.JobType) (*model.JobStats, error)
	StatsAll(ctx context.Context) (model.QueueStats, error)
}

// JobRepositoryTx defines optional transactional job creation support.
type JobRepositoryTx interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateJobRequest) (*model.Job, error)
}

// FailJobParams groups parameters for JobRepository.Fail to keep param count ≤3.
type FailJobParams struct {
	JobID string
	// ErrMsg is recorded as the job's last error.
	ErrMsg string
	// RetryDelay postpones the next attempt when retry budget remains.
	RetryDelay time.Duration
}

// POIRepository defines the interface for point-of-interest data operations.
type POIRepository interface {
	GetByID(ctx context.Context, id string) (*model.POI, error)
	ListByFilter(ctx context.Context, filter model.POIFilter) ([]*model.POI, error)
	UpdateAuditStatus(ctx context.Context, id string, status model.AuditStatus) error
	UpdateWebsiteData(ctx context.Context, id string, data []byte) error
	UpdateMapsData(ctx context.Context, id string, data []byte) error
	RecordAuditOutcome(ctx context.Context, params RecordAuditOutcomeParams) error
}

// RecordAuditOutcomeParams groups the POI-side effects of a finished audit.
type RecordAuditOutcomeParams struct {
	POIID   string
	Status  model.AuditStatus
	Score   *float64
	AuditAt time.Time
}

// AuditRepository defines the interface for audit record and extracted value operations.
type AuditRepository interface {
	CreateRecord(ctx context.Context, record *model.AuditRecord) (*model.AuditRecord, error)
	GetRecordByID(ctx context.Context, id string) (*model.AuditRecord, error)
	ListRecordsByPOI(ctx context.Context, poiID string, limit int) ([]*model.AuditRecord, error)
	// UpsertExtractedValue writes the per-field reconciliation result keyed
	// by POI+field so re-running an audit overwrites rather than duplicates.
	UpsertExtractedValue(ctx context.Context, value *model.ExtractedValue) error
	ListExtractedValues(ctx context.Context, poiID string) ([]*model.ExtractedValue, error)
}

// CostRepository defines the interface for the append-only cost ledger.
type CostRepository interface {
	Append(ctx context.Context, entry *model.CostEntry) (*model.CostEntry, error)
	// SumWindow totals spend in [from, to).
	SumWindow(ctx context.Context, from, to time.Time) (float64, error)
	SumWindowByService(ctx context.Context, from, to time.Time) (map[model.ServiceTag]float64, error)
	ListByPOI(ctx context.Context, poiID string, limit int) ([]*model.CostEntry, error)
}

// OutboxRepository defines the interface for mail outbox data operations.
type OutboxRepository interface {
	Create(ctx context.Context, entry *model.MailOutboxEntry) (*model.MailOutboxEntry, error)
	GetByID(ctx context.Context, id string) (*model.MailOutboxEntry, error)
	UpdateStatus(ctx context.Context, params UpdateOutboxStatusParams) (*model.MailOutboxEntry, error)
	// DispatchedSince reports whether a SENT or SENDING entry with the given
	// content hash exists for the recipient at or after the cutoff. This is
	// the durable half of the spam gate.
	DispatchedSince(ctx context.Context, params DispatchedSinceParams) (bool, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// UpdateOutboxStatusParams groups parameters for OutboxRepository.UpdateStatus.
type UpdateOutboxStatusParams struct {
	ID        string
	Status    model.OutboxStatus
	Attempts  int
	LastError *string
	SentAt    *time.Time
}

// DispatchedSinceParams groups parameters for OutboxRepository.DispatchedSince.
type DispatchedSinceParams struct {
	Recipient   string
	ContentHash string
	Since       time.Time
}

// FailedJobRepository defines the interface for terminal failure bookkeeping.
type FailedJobRepository interface {
	Create(ctx context.Context, record *model.FailedJobRecord) (*model.FailedJobRecord, error)
	GetByID(ctx context.Context, id string) (*model.FailedJobRecord, error)
	List(ctx context.Context, queue *model.JobType, limit int) ([]*model.FailedJobRecord, error)
	// MarkRetried stamps the record after a successful resubmission.
	MarkRetried(ctx context.Context, id string, at time.Time) error
}

// ScheduleRepository defines the interface for cron schedule data operations.
type ScheduleRepository interface {
	GetByID(ctx context.Context, id string) (*model.ScheduleConfig, error)
	ListActive(ctx context.Context) ([]*model.ScheduleConfig, error)
	// FindDue returns active schedules whose next run is at or before now.
	FindDue(ctx context.Context, now time.Time) ([]*model.ScheduleConfig, error)
	RecordRun(ctx context.Context, params RecordScheduleRunParams) error
	// SetActiveFireKey stamps the fire key of the in-flight run; cleared by
	// the job repo when the fired job reaches a terminal state.
	SetActiveFireKey(ctx context.Context, scheduleID, fireKey string) error
	// TryWithScheduleLock runs fn under a per-schedule advisory lock,
	// returning false without running fn when another node holds the lock.
	TryWithScheduleLock(ctx context.Context, scheduleID string, fn func(context.Context) error) (bool, error)
}

// RecordScheduleRunParams groups parameters for ScheduleRepository.RecordRun.
type RecordScheduleRunParams struct {
	ScheduleID string
	RanAt      time.Time
	NextRunAt  *time.Time
}

// CrawlPageRepository defines the interface for persisted crawl pages.
type CrawlPageRepository interface {
	Create(ctx context.Context, page *model.CrawlPage) (*model.CrawlPage, error)
	ListByRun(ctx context.Context, runID string) ([]*model.CrawlPage, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for retention cleanup operations.
type ReaperRepository interface {
	// FailStalePendingJobs marks pending jobs older than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given status older than maxAge.
	// Processes up to batchSize jobs per call to prevent long locks.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}
