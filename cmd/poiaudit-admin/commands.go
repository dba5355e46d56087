package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/bootstrap"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/devseed"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

func runMigrationsCommand(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultMigrationTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDB(db); cerr != nil {
			cmdCtx.Logger.Error("close database failed", "error", cerr)
		}
	}()

	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

func runDBSeed(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultMigrationTimeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDB(db); cerr != nil {
			cmdCtx.Logger.Error("close database failed", "error", cerr)
		}
	}()

	if err = bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
		return err
	}
	return devseed.Run(ctx, devseed.NewServices(db), cmdCtx.Logger)
}

func runQueueStats(cmdCtx *commandContext, _ []string) error {
	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDB(db); cerr != nil {
			cmdCtx.Logger.Error("close database failed", "error", cerr)
		}
	}()

	svcs, err := buildAdminServices(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer svcs.Jobs.StopAllListeners()

	stats, err := svcs.Jobs.StatsAll(cmdCtx.Ctx)
	if err != nil {
		return fmt.Errorf("load queue stats: %w", err)
	}
	return printQueueStats(stats)
}

func printQueueStats(stats model.QueueStats) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "QUEUE\tPENDING\tRUNNING\tCOMPLETED\tFAILED\tTOTAL"); err != nil {
		return fmt.Errorf("write queue stats header row: %w", err)
	}
	for _, queue := range model.AllJobTypes() {
		s := stats[queue]
		if err := writef(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
			queue, s.Pending, s.Running, s.Completed, s.Failed, s.Total()); err != nil {
			return fmt.Errorf("write queue stats row: %w", err)
		}
	}
	return tw.Flush()
}

func runListFailedJobs(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-failed-jobs", flag.ContinueOnError)
	queueName := fs.String("queue", "", "only show records from this queue (crawl, enrich, audit, notify)")
	limit := fs.Int("limit", 50, "maximum number of records to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	queue, err := parseQueueFlag(*queueName)
	if err != nil {
		return err
	}

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDB(db); cerr != nil {
			cmdCtx.Logger.Error("close database failed", "error", cerr)
		}
	}()

	svcs, err := buildAdminServices(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer svcs.Jobs.StopAllListeners()

	records, err := svcs.FailedJobs.List(cmdCtx.Ctx, queue, *limit)
	if err != nil {
		return err
	}
	return printFailedJobs(records)
}

func printFailedJobs(records []*model.FailedJobRecord) error {
	if len(records) == 0 {
		return writeln(os.Stdout, "no failed jobs found")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "ID\tQUEUE\tPOI\tATTEMPTS\tRETRIED\tCREATED (UTC)\tERROR"); err != nil {
		return fmt.Errorf("write failed jobs header row: %w", err)
	}
	for _, rec := range records {
		poiID := "-"
		if rec.POIID != nil {
			poiID = *rec.POIID
		}
		retried := "no"
		if rec.RetriedAt != nil {
			retried = rec.RetriedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			rec.ID,
			rec.Queue,
			poiID,
			rec.Attempts,
			rec.MaxAttempts,
			retried,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			truncate(rec.ErrorMessage, 80)); err != nil {
			return fmt.Errorf("write failed jobs row: %w", err)
		}
	}
	return tw.Flush()
}

func runRetryFailedJobs(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("retry-failed-jobs", flag.ContinueOnError)
	queueName := fs.String("queue", "", "only retry records from this queue (crawl, enrich, audit, notify)")
	recordID := fs.String("id", "", "retry a single record by id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	queue, err := parseQueueFlag(*queueName)
	if err != nil {
		return err
	}

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDB(db); cerr != nil {
			cmdCtx.Logger.Error("close database failed", "error", cerr)
		}
	}()

	svcs, err := buildAdminServices(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer svcs.Jobs.StopAllListeners()

	if *recordID != "" {
		job, retryErr := svcs.FailedJobs.Retry(cmdCtx.Ctx, *recordID)
		if retryErr != nil {
			return retryErr
		}
		return writef(os.Stdout, "resubmitted record %s as job %s on queue %s\n", *recordID, job.ID, job.Type)
	}

	result, err := svcs.FailedJobs.RetryAll(cmdCtx.Ctx, queue)
	if err != nil {
		return err
	}
	return writef(os.Stdout, "retried %d failed jobs, skipped %d\n", result.Retried, result.Skipped)
}

func runBudget(cmdCtx *commandContext, _ []string) error {
	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeDB(db); cerr != nil {
			cmdCtx.Logger.Error("close database failed", "error", cerr)
		}
	}()

	svcs, err := buildAdminServices(db, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer svcs.Jobs.StopAllListeners()

	projection, err := svcs.Costs.MonthlyProjection(cmdCtx.Ctx)
	if err != nil {
		return err
	}
	byService, err := svcs.Costs.MonthlySpendByService(cmdCtx.Ctx)
	if err != nil {
		return err
	}
	return printBudget(projection, byService)
}

func printBudget(projection *model.BudgetProjection, byService map[model.ServiceTag]float64) error {
	if err := writef(os.Stdout, "Month-to-date spend:  %.4f EUR\n", projection.MonthlySpend); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Projected month-end:  %.4f EUR\n", projection.ProjectedSpend); err != nil {
		return err
	}
	if projection.MonthlyCeiling > 0 {
		if err := writef(os.Stdout, "Monthly ceiling:      %.4f EUR (%.1f%% used)\n",
			projection.MonthlyCeiling, projection.PercentUsed); err != nil {
			return err
		}
		if projection.AlertTriggered {
			if err := writeln(os.Stdout, "WARNING: projected spend exceeds the monthly ceiling"); err != nil {
				return err
			}
		}
	} else if err := writeln(os.Stdout, "Monthly ceiling:      not configured"); err != nil {
		return err
	}

	if len(byService) == 0 {
		return nil
	}
	if err := writeln(os.Stdout); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "SERVICE\tSPEND (EUR)"); err != nil {
		return fmt.Errorf("write budget header row: %w", err)
	}
	for _, tag := range []model.ServiceTag{model.ServiceLLM, model.ServiceGeocode, model.ServiceCrawl} {
		spend, ok := byService[tag]
		if !ok {
			continue
		}
		if err := writef(tw, "%s\t%.4f\n", tag, spend); err != nil {
			return fmt.Errorf("write budget row: %w", err)
		}
	}
	return tw.Flush()
}

func parseQueueFlag(name string) (*model.JobType, error) {
	if name == "" {
		return nil, nil //nolint:nilnil // nil queue means "all queues" downstream.
	}
	queue := model.JobType(name)
	if !queue.Valid() {
		return nil, fmt.Errorf("unknown queue %q", name)
	}
	return &queue, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
