package model

import (
	"errors"
	"time"
)

// ErrScheduleNotFound is returned when a schedule lookup misses.
var ErrScheduleNotFound = errors.New("schedule not found")

// ScheduleConfig is a named cron-triggered rule that seeds the pipeline with
// crawl jobs for a filtered POI set. Written only by administrative action;
// the scheduler records run timestamps for observability.
type ScheduleConfig struct {
	ID        string    `json:"id"         db:"id"`
	Name      string    `json:"name"       db:"name"`
	CronExpr  string    `json:"cron_expr"  db:"cron_expr"`
	Active    bool      `json:"active"     db:"active"`
	Filter    POIFilter `json:"filter"     db:"filter"`
	LastRunAt *time.Time `json:"last_run_at,omitempty" db:"last_run_at"`
	NextRunAt *time.Time `json:"next_run_at,omitempty" db:"next_run_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks administrative input for a schedule.
func (s *ScheduleConfig) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.CronExpr == "" {
		return errors.New("cron expression is required")
	}
	return nil
}
