// Package model defines the core data types and structures used throughout the POI audit pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType identifies the pipeline stage a job belongs to. Each type has its
// own queue, worker pool, and handler.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeCrawl represents a website crawl stage job.
	JobTypeCrawl JobType = "crawl"
	// JobTypeEnrich represents a places/geocoding enrichment stage job.
	JobTypeEnrich JobType = "enrich"
	// JobTypeAudit represents an AI comparison stage job.
	JobTypeAudit JobType = "audit"
	// JobTypeNotify represents a notification dispatch stage job.
	JobTypeNotify JobType = "notify"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has exhausted its retries.
	JobStatusFailed JobStatus = "failed"
)

// AllJobTypes lists every pipeline stage in causal order.
func AllJobTypes() []JobType {
	return []JobType{JobTypeCrawl, JobTypeEnrich, JobTypeAudit, JobTypeNotify}
}

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrJobNotFound is returned when a job lookup misses.
var ErrJobNotFound = errors.New("job not found")

// ErrDuplicateJobKey is returned when a pending or running job with the same
// job key already exists. Callers treat this as an idempotent no-op.
var ErrDuplicateJobKey = errors.New("duplicate job key")

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeCrawl || t == JobTypeEnrich || t == JobTypeAudit || t == JobTypeNotify
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// JobKey derives the deterministic dedup key for a POI+stage pair. At most one
// pending or running job may carry a given key at a time.
func JobKey(jobType JobType, poiID string) string {
	return string(jobType) + ":" + poiID
}

// Job represents a job in the system with all its metadata and status information.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Type           JobType         `json:"type"                       db:"type"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Priority       int             `json:"priority"                   db:"priority"`
	JobKey         *string         `json:"job_key,omitempty"          db:"job_key"`
	POIID          *string         `json:"poi_id,omitempty"           db:"poi_id"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	Metadata       json.RawMessage `json:"metadata"                   db:"metadata"`
	RequestedBy    *string         `json:"requested_by,omitempty"     db:"requested_by"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	JobKey      *string         `json:"job_key,omitempty"`
	POIID       *string         `json:"poi_id,omitempty"`
	RequestedBy *string         `json:"requested_by,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	MaxRetries  int             `json:"max_retries"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	if r.JobKey != nil && *r.JobKey == "" {
		return errors.New("job key cannot be empty when set")
	}
	return nil
}

// JobStats represents statistics about jobs in different states.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Total returns waiting plus active work, the figure the auto-scaler keys on.
func (s JobStats) Total() int {
	return s.Pending + s.Running
}

// QueueStats holds per-queue statistics keyed by job type.
type QueueStats map[JobType]JobStats

// TotalPending sums waiting jobs across all queues.
func (q QueueStats) TotalPending() int {
	total := 0
	for _, s := range q {
		total += s.Pending
	}
	return total
}

// TotalRunning sums active jobs across all queues.
func (q QueueStats) TotalRunning() int {
	total := 0
	for _, s := range q {
		total += s.Running
	}
	return total
}

// JobListOptions carries optional filters for the operations job listing.
type JobListOptions struct {
	Status *JobStatus
	Type   *JobType
	POIID  *string
	Limit  int
	Offset int
}

// JobStatusResponse represents the status information for a specific job.
type JobStatusResponse struct {
	Status      JobStatus  `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
}
