package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModePipeline runs the stage queue worker pools.
	ServiceModePipeline ServiceMode = "pipeline"
	// ServiceModeScheduler runs the cron schedule scanner.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeReaper runs the retention reaper.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeAutoscaler runs the worker pool auto-scaler.
	ServiceModeAutoscaler ServiceMode = "autoscaler"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModePipeline,
		ServiceModeScheduler,
		ServiceModeReaper,
		ServiceModeAutoscaler,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModePipeline,
			ServiceModeScheduler,
			ServiceModeReaper,
			ServiceModeAutoscaler:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, pipeline, scheduler, reaper, autoscaler)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SchedulerConfig contains cron scheduler service configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval. Cron expressions have minute
	// granularity, so sub-minute ticks only bound firing latency.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"15s"`

	// DefaultPriority is the priority assigned to scheduled crawl jobs.
	DefaultPriority int `env:"SCHEDULER_DEFAULT_PRIORITY" envDefault:"50"`

	// MaxRetries is the retry budget for scheduled jobs.
	MaxRetries int `env:"SCHEDULER_MAX_RETRIES" envDefault:"3"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
	if s.DefaultPriority < 0 || s.DefaultPriority > 100 {
		s.DefaultPriority = 50
	}
	if s.MaxRetries < 1 {
		s.MaxRetries = 3
	}
}

// WorkerPoolConfig sizes one stage queue's worker pool.
type WorkerPoolConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"CONCURRENCY"`

	// JobLease is the duration a reserved job is leased for.
	JobLease time.Duration `env:"JOB_LEASE" envDefault:"60s"`
}

// Sanitize applies guardrails to one worker pool configuration.
func (w *WorkerPoolConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.JobLease < 5*time.Second {
		w.JobLease = 5 * time.Second
	}
}

// WorkersConfig sizes the four stage queue worker pools. The audit pool runs
// at roughly half the crawl concurrency because comparator calls are the
// expensive, rate-limited leg of the pipeline.
type WorkersConfig struct {
	Crawl  WorkerPoolConfig `envPrefix:"WORKERS_CRAWL_"`
	Enrich WorkerPoolConfig `envPrefix:"WORKERS_ENRICH_"`
	Audit  WorkerPoolConfig `envPrefix:"WORKERS_AUDIT_"`
	Notify WorkerPoolConfig `envPrefix:"WORKERS_NOTIFY_"`

	// MaxRetries is the default retry budget for pipeline jobs.
	MaxRetries int `env:"WORKERS_MAX_RETRIES" envDefault:"3"`
}

// Sanitize applies guardrails and fills zero concurrency with stage defaults.
func (w *WorkersConfig) Sanitize() {
	if w.Crawl.Concurrency == 0 {
		w.Crawl.Concurrency = 4
	}
	if w.Enrich.Concurrency == 0 {
		w.Enrich.Concurrency = 4
	}
	if w.Audit.Concurrency == 0 {
		w.Audit.Concurrency = 2
	}
	if w.Notify.Concurrency == 0 {
		w.Notify.Concurrency = 4
	}
	w.Crawl.Sanitize()
	w.Enrich.Sanitize()
	w.Audit.Sanitize()
	w.Notify.Sanitize()
	if w.MaxRetries < 1 {
		w.MaxRetries = 3
	}
}

// AutoscalerConfig contains worker pool auto-scaler configuration.
type AutoscalerConfig struct {
	// Interval is the poll interval for queue depth sampling.
	Interval time.Duration `env:"AUTOSCALER_INTERVAL" envDefault:"30s"`

	// ScaleUpBacklog is the per-worker backlog above which the pool grows by
	// one worker.
	ScaleUpBacklog int `env:"AUTOSCALER_SCALE_UP_BACKLOG" envDefault:"10"`

	// ScaleDownBacklog is the per-worker backlog below which the pool shrinks
	// by one worker. Kept well under ScaleUpBacklog for hysteresis.
	ScaleDownBacklog int `env:"AUTOSCALER_SCALE_DOWN_BACKLOG" envDefault:"2"`

	// MinWorkers and MaxWorkers bound every pool.
	MinWorkers int `env:"AUTOSCALER_MIN_WORKERS" envDefault:"1"`
	MaxWorkers int `env:"AUTOSCALER_MAX_WORKERS" envDefault:"16"`
}

// Sanitize applies guardrails to auto-scaler configuration values.
func (a *AutoscalerConfig) Sanitize() {
	if a.Interval < 5*time.Second {
		a.Interval = 5 * time.Second
	}
	if a.MinWorkers < 1 {
		a.MinWorkers = 1
	}
	if a.MaxWorkers < a.MinWorkers {
		a.MaxWorkers = a.MinWorkers
	}
	if a.ScaleUpBacklog < 1 {
		a.ScaleUpBacklog = 10
	}
	if a.ScaleDownBacklog < 0 {
		a.ScaleDownBacklog = 0
	}
	// The bands must not overlap or the scaler oscillates.
	if a.ScaleDownBacklog >= a.ScaleUpBacklog {
		a.ScaleDownBacklog = a.ScaleUpBacklog / 2
	}
}

// ReaperConfig contains retention reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	// Jobs stuck in pending status longer than this will be failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"24h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed queue rows before deletion.
	// Failed-job records are retention-exempt; only the queue rows go.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// CrawlPageMaxAge is the maximum age for persisted crawl page snapshots.
	CrawlPageMaxAge time.Duration `env:"REAPER_CRAWL_PAGE_MAX_AGE" envDefault:"2160h"` // 90 days

	// OutboxMaxAge is the maximum age for finished (SENT/SKIPPED) outbox rows.
	// SENT rows back the notification dedup window, so this must not undercut it.
	OutboxMaxAge time.Duration `env:"REAPER_OUTBOX_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.CrawlPageMaxAge < 24*time.Hour {
		r.CrawlPageMaxAge = 24 * time.Hour
	}
	// SENT rows must outlive the 30-day spam window or repeats slip through.
	if r.OutboxMaxAge < 31*24*time.Hour {
		r.OutboxMaxAge = 31 * 24 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
