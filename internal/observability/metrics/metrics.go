// Package metrics exposes Prometheus collectors for the audit pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job result label values.
const (
	ResultCompleted = "completed"
	ResultRetried   = "retried"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

var (
	jobTransitionsTotal *prometheus.CounterVec
	jobDurationSeconds  *prometheus.HistogramVec
	queueDepth          *prometheus.GaugeVec
	workerPoolSize      *prometheus.GaugeVec
	auditScore          prometheus.Histogram
	costEURTotal        *prometheus.CounterVec
	mailOutcomesTotal   *prometheus.CounterVec
	scheduleFiresTotal  *prometheus.CounterVec
	crawlPagesTotal     *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// Safe to call more than once.
func Init() {
	once.Do(func() {
		jobTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poiaudit_job_transitions_total",
				Help: "Terminal and retry transitions of pipeline jobs, labeled by queue and result.",
			},
			[]string{"queue", "result"},
		)

		jobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poiaudit_job_duration_seconds",
				Help:    "Wall-clock processing time of a single job attempt, labeled by queue.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"queue"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poiaudit_queue_depth",
				Help: "Jobs per queue and status as of the last stats poll.",
			},
			[]string{"queue", "status"},
		)

		workerPoolSize = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poiaudit_worker_pool_size",
				Help: "Current worker count per queue as set by the autoscaler.",
			},
			[]string{"queue"},
		)

		auditScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "poiaudit_audit_score",
				Help:    "Overall audit scores of completed comparator runs.",
				Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		)

		costEURTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poiaudit_cost_eur_total",
				Help: "Accumulated external service cost in EUR, labeled by service.",
			},
			[]string{"service"},
		)

		mailOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poiaudit_mail_outcomes_total",
				Help: "Mail dispatch outcomes, labeled by outcome (sent, skipped, failed).",
			},
			[]string{"outcome"},
		)

		scheduleFiresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poiaudit_schedule_fires_total",
				Help: "Schedule firings, labeled by schedule name.",
			},
			[]string{"schedule"},
		)

		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poiaudit_crawl_pages_total",
				Help: "Pages handled by the crawler, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveJobTransition counts one job transition for the queue.
func ObserveJobTransition(queue, result string) {
	if jobTransitionsTotal == nil {
		return
	}
	jobTransitionsTotal.WithLabelValues(queue, result).Inc()
}

// ObserveJobDuration records the processing time of one job attempt.
func ObserveJobDuration(queue string, duration time.Duration) {
	if jobDurationSeconds == nil {
		return
	}
	jobDurationSeconds.WithLabelValues(queue).Observe(duration.Seconds())
}

// SetQueueDepth publishes the per-status job count for a queue.
func SetQueueDepth(queue, status string, count int) {
	if queueDepth == nil {
		return
	}
	queueDepth.WithLabelValues(queue, status).Set(float64(count))
}

// SetWorkerPoolSize publishes the worker count the autoscaler settled on.
func SetWorkerPoolSize(queue string, workers int) {
	if workerPoolSize == nil {
		return
	}
	workerPoolSize.WithLabelValues(queue).Set(float64(workers))
}

// ObserveAuditScore records the overall score of one completed audit.
func ObserveAuditScore(score float64) {
	if auditScore == nil {
		return
	}
	auditScore.Observe(score)
}

// AddCost accumulates spend for an external service.
func AddCost(service string, eur float64) {
	if costEURTotal == nil || eur <= 0 {
		return
	}
	costEURTotal.WithLabelValues(service).Add(eur)
}

// ObserveMailOutcome counts one mail dispatch outcome.
func ObserveMailOutcome(outcome string) {
	if mailOutcomesTotal == nil {
		return
	}
	mailOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveScheduleFire counts one firing of a named schedule.
func ObserveScheduleFire(schedule string) {
	if scheduleFiresTotal == nil {
		return
	}
	scheduleFiresTotal.WithLabelValues(schedule).Inc()
}

// ObserveCrawlPage counts one crawled page by outcome.
func ObserveCrawlPage(outcome string) {
	if crawlPagesTotal == nil {
		return
	}
	crawlPagesTotal.WithLabelValues(outcome).Inc()
}
