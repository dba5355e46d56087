package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/data/pgxutil"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// ScheduleRepo provides database operations for cron schedule configs.
// Schedules are written by administrative action; the scheduler only records
// run timestamps and holds per-schedule advisory locks while firing.
type ScheduleRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewScheduleRepo creates a new ScheduleRepo instance with the given database connection.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo {
	return &ScheduleRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewScheduleRepoWithTimeProvider creates a ScheduleRepo with a custom TimeProvider (useful for testing).
func NewScheduleRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *ScheduleRepo {
	return &ScheduleRepo{DB: db, timeProvider: timeProvider}
}

// fnvHash computes FNV-1a 64-bit hash of the given string for use as advisory lock key.
func fnvHash(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	// Advisory locks accept BIGINT; constrain the unsigned hash into int64 range before casting.
	u := h.Sum64()
	if u > uint64(math.MaxInt64) {
		u %= uint64(math.MaxInt64)
	}
	return int64(u) // #nosec G115 -- value is explicitly bounded to <= MaxInt64 before casting to int64.
}

const scheduleColumns = `
  id,
  name,
  cron_expr,
  active,
  filter,
  last_run_at,
  next_run_at,
  created_at,
  updated_at
`

// Create inserts a schedule config.
func (r *ScheduleRepo) Create(ctx context.Context, schedule *model.ScheduleConfig) (*model.ScheduleConfig, error) {
	if schedule == nil {
		return nil, errors.New("schedule is required")
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	filter, err := json.Marshal(schedule.Filter)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule filter: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO schedules (name, cron_expr, active, filter, next_run_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+scheduleColumns,
		schedule.Name,
		schedule.CronExpr,
		schedule.Active,
		filter,
		schedule.NextRunAt,
	)
	created, err := scanSchedule(row)
	if err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}
	return created, nil
}

// GetByID retrieves a schedule by its ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id string) (*model.ScheduleConfig, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	schedule, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return schedule, nil
}

// ListActive returns all enabled schedules.
func (r *ScheduleRepo) ListActive(ctx context.Context) ([]*model.ScheduleConfig, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules WHERE active ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// FindDue returns active schedules whose next run is at or before now.
// Schedules that have never computed a next run (next_run_at IS NULL) are
// also due so the scheduler can seed them.
func (r *ScheduleRepo) FindDue(ctx context.Context, now time.Time) ([]*model.ScheduleConfig, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE active
		  AND (next_run_at IS NULL OR next_run_at <= $1)
		ORDER BY next_run_at ASC NULLS FIRST, name ASC
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("find due schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// RecordRun stamps the last run and the computed next run.
func (r *ScheduleRepo) RecordRun(ctx context.Context, params core.RecordScheduleRunParams) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE schedules
		SET last_run_at = $2,
		    next_run_at = $3,
		    updated_at = $4
		WHERE id = $1
	`, params.ScheduleID, params.RanAt.UTC(), params.NextRunAt, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("record schedule run: %w", err)
	}
	return requireRowAffected(res, model.ErrScheduleNotFound)
}

// Advisory lock major key for scheduler coordination.
const advisoryLockScheduleMajor int64 = 1002

// TryWithScheduleLock runs fn under a transaction-scoped advisory lock for
// the schedule. Returns false without running fn when another node holds the
// lock, so only one scheduler instance fires a given schedule.
func (r *ScheduleRepo) TryWithScheduleLock(
	ctx context.Context,
	scheduleID string,
	fn func(context.Context) error,
) (bool, error) {
	acquired := false
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			minor := fnvHash(scheduleID) % int64(math.MaxInt32)
			if lockErr := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockScheduleMajor, minor).Scan(&locked); lockErr != nil {
				return fmt.Errorf("acquire schedule lock: %w", lockErr)
			}
			if !locked {
				return nil
			}
			acquired = true
			return fn(ctx)
		},
	})
	if err != nil {
		return acquired, err
	}
	return acquired, nil
}

// SetActiveFireKey claims the schedule's in-flight fire key, used to make
// scheduled enqueues idempotent across scheduler restarts.
func (r *ScheduleRepo) SetActiveFireKey(ctx context.Context, scheduleID, fireKey string) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE schedules
		SET active_fire_key = $2,
		    active_fire_key_set_at = $3,
		    updated_at = $3
		WHERE id = $1
	`, scheduleID, fireKey, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("set active fire key: %w", err)
	}
	return nil
}

func collectSchedules(rows *sql.Rows) ([]*model.ScheduleConfig, error) {
	var schedules []*model.ScheduleConfig
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}

type scheduleRowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(scanner scheduleRowScanner) (*model.ScheduleConfig, error) {
	schedule := &model.ScheduleConfig{}
	var filter []byte
	var lastRunAt, nextRunAt sql.NullTime

	err := scanner.Scan(
		&schedule.ID,
		&schedule.Name,
		&schedule.CronExpr,
		&schedule.Active,
		&filter,
		&lastRunAt,
		&nextRunAt,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(filter) > 0 {
		if unmarshalErr := json.Unmarshal(filter, &schedule.Filter); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal schedule filter: %w", unmarshalErr)
		}
	}
	schedule.LastRunAt = cloneNullableTime(lastRunAt)
	schedule.NextRunAt = cloneNullableTime(nextRunAt)
	return schedule, nil
}
