package httpx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// RouterServices holds everything the operations API serves.
type RouterServices struct {
	Jobs       *service.JobService
	FailedJobs *service.FailedJobService
	Results    *service.AuditResultService
	Costs      *service.CostService
	POIs       core.POIRepository
	Schedules  *core.ScheduleCacheService
	MaxRetries int // retry budget for jobs enqueued over the API

	HTTP        config.HTTPConfig
	MetricsPath string // empty disables the scrape endpoint

	Logger *slog.Logger
}

// NewRouter wires the operations API. All mutating routes sit behind the
// role middleware; reads are open to any caller the proxy lets through.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(Recover(logger))
	r.Use(Logging(logger))
	if services.HTTP.CompressionEnabled {
		r.Use(chimw.Compress(services.HTTP.CompressionLevel, "application/json", "text/plain"))
	}
	r.Use(RoleFromHeader(services.HTTP.RoleHeader))

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)
	if services.MetricsPath != "" {
		r.Handle(services.MetricsPath, metrics.Handler())
	}

	jobs := &JobHandlers{Jobs: services.Jobs, POIs: services.POIs, MaxRetries: services.MaxRetries}
	failed := &FailedJobHandlers{Svc: services.FailedJobs}
	audits := &AuditHandlers{Results: services.Results}
	budget := &BudgetHandlers{Costs: services.Costs}
	schedules := &ScheduleHandlers{Cache: services.Schedules}

	r.Route("/api", func(r chi.Router) {
		r.Get("/jobs", jobs.ListJobs)
		r.Get("/jobs/stats", jobs.Stats)
		r.Get("/jobs/{id}", jobs.GetJob)
		r.With(RequireEnqueue).Post("/jobs", jobs.CreateJob)
		r.With(RequireEnqueue).Post("/pois/{id}/audit", jobs.AuditPOI)

		r.Get("/failed-jobs", failed.List)
		r.With(RequireRetry).Post("/failed-jobs/retry", failed.RetryAll)
		r.With(RequireRetry).Post("/failed-jobs/{id}/retry", failed.Retry)

		r.Get("/audits/{id}", audits.GetRecord)
		r.Get("/pois/{id}/audits", audits.History)
		r.Get("/pois/{id}/values", audits.ExtractedValues)

		r.Get("/budget", budget.Projection)
		r.Get("/pois/{id}/costs", budget.POICosts)

		r.Get("/schedules", schedules.ListActive)
	})

	return r
}
