package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// FailedJobRepo provides database operations for terminal failure records.
type FailedJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewFailedJobRepo creates a new FailedJobRepo instance with the given database connection.
func NewFailedJobRepo(db *sql.DB) *FailedJobRepo {
	return &FailedJobRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewFailedJobRepoWithTimeProvider creates a FailedJobRepo with a custom TimeProvider (useful for testing).
func NewFailedJobRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *FailedJobRepo {
	return &FailedJobRepo{DB: db, timeProvider: timeProvider}
}

const failedJobColumns = `
  id,
  queue,
  job_id,
  poi_id,
  payload,
  error_message,
  stack_trace,
  attempts,
  max_attempts,
  retried_at,
  created_at
`

// Create persists a terminal failure with its full payload and stack trace.
func (r *FailedJobRepo) Create(ctx context.Context, record *model.FailedJobRecord) (*model.FailedJobRecord, error) {
	if record == nil {
		return nil, errors.New("failed job record is required")
	}
	if !record.Queue.Valid() {
		return nil, fmt.Errorf("invalid queue: %s", record.Queue)
	}
	if record.JobID == "" {
		return nil, errors.New("job id is required")
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO failed_jobs (queue, job_id, poi_id, payload, error_message, stack_trace, attempts, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+failedJobColumns,
		record.Queue,
		record.JobID,
		record.POIID,
		record.Payload,
		record.ErrorMessage,
		record.StackTrace,
		record.Attempts,
		record.MaxAttempts,
	)
	created, err := scanFailedJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert failed job record: %w", err)
	}
	return created, nil
}

// GetByID retrieves a failed job record by its ID.
func (r *FailedJobRepo) GetByID(ctx context.Context, id string) (*model.FailedJobRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+failedJobColumns+` FROM failed_jobs WHERE id = $1`, id)
	record, err := scanFailedJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrFailedJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed job record: %w", err)
	}
	return record, nil
}

// List returns unretried failure records, newest first, optionally filtered
// by queue.
func (r *FailedJobRepo) List(ctx context.Context, queue *model.JobType, limit int) ([]*model.FailedJobRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + failedJobColumns + `
		FROM failed_jobs
		WHERE retried_at IS NULL
	`
	args := []any{limit}
	if queue != nil {
		query += " AND queue = $2"
		args = append(args, *queue)
	}
	query += " ORDER BY created_at DESC LIMIT $1"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}
	defer rows.Close()

	var records []*model.FailedJobRecord
	for rows.Next() {
		record, scanErr := scanFailedJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan failed job record: %w", scanErr)
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return records, nil
}

// MarkRetried stamps the record after a successful resubmission.
func (r *FailedJobRepo) MarkRetried(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE failed_jobs SET retried_at = $2 WHERE id = $1 AND retried_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("mark failed job retried: %w", err)
	}
	return requireRowAffected(res, model.ErrFailedJobNotFound)
}

type failedJobRowScanner interface {
	Scan(dest ...any) error
}

func scanFailedJob(scanner failedJobRowScanner) (*model.FailedJobRecord, error) {
	record := &model.FailedJobRecord{}
	var poiID sql.NullString
	var retriedAt sql.NullTime

	err := scanner.Scan(
		&record.ID,
		&record.Queue,
		&record.JobID,
		&poiID,
		&record.Payload,
		&record.ErrorMessage,
		&record.StackTrace,
		&record.Attempts,
		&record.MaxAttempts,
		&retriedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.POIID = cloneNullableString(poiID)
	record.RetriedAt = cloneNullableTime(retriedAt)
	return record, nil
}
