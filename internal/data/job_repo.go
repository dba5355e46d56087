package data

import (
	"database/sql"
	"log/slog"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// ErrJobNotFound is returned when a job is not found.
var ErrJobNotFound = model.ErrJobNotFound

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for the four stage queues. All queues
// share one jobs table partitioned logically by type; reservation uses
// FOR UPDATE SKIP LOCKED so concurrent workers never contend on a row.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  type,
  status,
  priority,
  job_key,
  poi_id,
  payload,
  metadata,
  requested_by,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`
