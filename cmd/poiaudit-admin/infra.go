package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/bootstrap"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/data"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// adminJobLease only matters when a resubmitted job is reserved by a worker;
// the admin CLI itself never reserves jobs.
const adminJobLease = time.Minute

func connectDB(logger *slog.Logger, cfg *config.AppConfig) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func closeDB(db *sql.DB) error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// adminServices holds the subset of the service graph the CLI commands need.
// Notification sinks and stage clients stay out; admin commands only read
// state and resubmit dead letters.
type adminServices struct {
	Jobs       *service.JobService
	FailedJobs *service.FailedJobService
	Costs      *service.CostService
}

func buildAdminServices(db *sql.DB, cfg *config.AppConfig, logger *slog.Logger) (adminServices, error) {
	jobRepo := data.NewJobRepo(db, data.RepoConfig{Logger: logger})

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         jobRepo,
		DefaultLease: adminJobLease,
		Logger:       logger,
	})
	if err != nil {
		return adminServices{}, fmt.Errorf("build job service: %w", err)
	}

	failedJobs, err := service.NewFailedJobService(service.FailedJobServiceOptions{
		Records:    data.NewFailedJobRepo(db),
		Jobs:       jobs,
		MaxRetries: cfg.Workers.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		jobs.StopAllListeners()
		return adminServices{}, fmt.Errorf("build failed job service: %w", err)
	}

	costs, err := service.NewCostService(service.CostServiceOptions{
		Repo:           data.NewCostRepo(db),
		MonthlyCeiling: cfg.Budget.MonthlyCeilingEUR,
		Logger:         logger,
	})
	if err != nil {
		jobs.StopAllListeners()
		return adminServices{}, fmt.Errorf("build cost service: %w", err)
	}

	return adminServices{Jobs: jobs, FailedJobs: failedJobs, Costs: costs}, nil
}
