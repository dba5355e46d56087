package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// jobFilterQueryBuilder accumulates WHERE clauses with positional args.
type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *jobFilterQueryBuilder) addFilter(column string, value any) {
	b.query += fmt.Sprintf(" AND %s = $%d", column, b.argIdx)
	b.args = append(b.args, value)
	b.argIdx++
}

func buildJobListQuery(opts *model.JobListOptions) (string, []any) {
	builder := &jobFilterQueryBuilder{
		query:  `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`,
		args:   []any{},
		argIdx: 1,
	}

	if opts.Status != nil && *opts.Status != "" {
		builder.addFilter("status", string(*opts.Status))
	}
	if opts.Type != nil && *opts.Type != "" {
		builder.addFilter("type", string(*opts.Type))
	}
	if opts.POIID != nil && *opts.POIID != "" {
		builder.addFilter("poi_id", *opts.POIID)
	}

	builder.query += fmt.Sprintf(
		" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		builder.argIdx, builder.argIdx+1,
	)
	return builder.query, builder.args
}

// List returns jobs with optional filtering for the operations API.
func (r *JobRepo) List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50 // Default limit
	}
	if limit > 1000 {
		limit = 1000 // Max limit
	}
	offset := max(opts.Offset, 0)

	query, args := buildJobListQuery(opts)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return jobs, nil
}

// ListByPOI returns a POI's jobs across all queues, newest first.
func (r *JobRepo) ListByPOI(ctx context.Context, poiID string, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE poi_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, poiID, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs by poi: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := scanJobFromRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return jobs, nil
}

// FindPendingByJobKey looks up an in-flight job carrying the given job key.
// Used to report the existing job when an enqueue deduplicates.
func (r *JobRepo) FindPendingByJobKey(ctx context.Context, jobKey string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE job_key = $1 AND status IN ('pending', 'running')
		ORDER BY created_at DESC
		LIMIT 1
	`, jobKey)
	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by key: %w", err)
	}
	return job, nil
}
