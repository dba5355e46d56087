package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrFailedJobNotFound is returned when a failed-job lookup misses.
var ErrFailedJobNotFound = errors.New("failed job record not found")

// FailedJobRecord preserves a job that exhausted all its retries. It carries
// the full payload and stack trace so the job can be manually or bulk-retried
// later. Read-only history once written.
type FailedJobRecord struct {
	ID          string          `json:"id"           db:"id"`
	Queue       JobType         `json:"queue"        db:"queue"`
	JobID       string          `json:"job_id"       db:"job_id"`
	POIID       *string         `json:"poi_id,omitempty" db:"poi_id"`
	Payload     json.RawMessage `json:"payload"      db:"payload"`
	ErrorMessage string         `json:"error_message" db:"error_message"`
	StackTrace  string          `json:"stack_trace"  db:"stack_trace"`
	Attempts    int             `json:"attempts"     db:"attempts"`
	MaxAttempts int             `json:"max_attempts" db:"max_attempts"`
	RetriedAt   *time.Time      `json:"retried_at,omitempty" db:"retried_at"`
	CreatedAt   time.Time       `json:"created_at"   db:"created_at"`
}
