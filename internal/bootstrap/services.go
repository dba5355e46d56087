package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/auditor"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/crawler"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/data"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/mail"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/notify/pagerduty"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/notify/slack"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/places"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/ratelimit"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service/failurenotifier"
)

// defaultJobLease covers jobs reserved outside the stage worker pools, which
// carry their own per-pool lease.
const defaultJobLease = 60 * time.Second

// ServiceContainer holds all application services and stage clients.
type ServiceContainer struct {
	Jobs       *service.JobService
	FailedJobs *service.FailedJobService
	Results    *service.AuditResultService
	Costs      *service.CostService
	Outbox     *service.OutboxService
	Scheduler  *service.SchedulerService
	Reaper     *service.ReaperService

	Crawler    *crawler.Crawler
	Places     *places.Client
	Comparator *auditor.Comparator

	ScheduleCache   *core.ScheduleCacheService
	FailureNotifier *failurenotifier.Service
	Repos           *Repositories
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// Repositories groups the data adapters backing the service ports.
type Repositories struct {
	Jobs       *data.JobRepo
	POIs       *data.POIRepo
	Audits     *data.AuditRepo
	Costs      *data.CostRepo
	Outbox     *data.OutboxRepo
	FailedJobs *data.FailedJobRepo
	Schedules  *data.ScheduleRepo
	CrawlPages *data.CrawlPageRepo
	Cache      *data.RedisCacheRepo
}

func buildRepositories(db *sql.DB, rc redis.UniversalClient, logger *slog.Logger) *Repositories {
	return &Repositories{
		Jobs:       data.NewJobRepo(db, data.RepoConfig{Logger: logger}),
		POIs:       data.NewPOIRepo(db),
		Audits:     data.NewAuditRepo(db),
		Costs:      data.NewCostRepo(db),
		Outbox:     data.NewOutboxRepo(db),
		FailedJobs: data.NewFailedJobRepo(db),
		Schedules:  data.NewScheduleRepo(db),
		CrawlPages: data.NewCrawlPageRepo(db),
		Cache:      data.NewRedisCacheRepo(rc),
	}
}

// buildFailureNotifier wires the configured notification sinks. A disabled
// config yields a notifier with no sinks, which sends nothing.
func buildFailureNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
) *failurenotifier.Service {
	var sinks []failurenotifier.SinkRegistration

	if cfg.Enabled && cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			POIURLPrefix: cfg.Slack.POIURLPrefix,
		})
		if err != nil {
			logger.Error("slack sink disabled", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.Enabled && cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("pagerduty sink disabled", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{Logger: logger, Sinks: sinks})
}

// guardedHTTPClient wraps an HTTP client with the shared call budget and a
// circuit breaker. A zero limit or missing redis client leaves only the
// breaker in place.
func guardedHTTPClient(deps ServiceDeps, resource string, limit int64, timeout time.Duration) *http.Client {
	var bucket *ratelimit.TokenBucket
	if deps.RedisClient != nil && limit > 0 {
		b, err := ratelimit.NewTokenBucket(ratelimit.TokenBucketOptions{
			Client: deps.RedisClient,
			Prefix: "budget",
			Limit:  limit,
			Window: time.Minute,
		})
		if err != nil {
			deps.Logger.Error("token bucket disabled", "resource", resource, "error", err)
		} else {
			bucket = b
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: ratelimit.NewTransport(ratelimit.TransportOptions{
			Bucket:   bucket,
			Resource: resource,
			Breaker:  ratelimit.NewBreaker(ratelimit.BreakerOptions{}),
			Logger:   deps.Logger,
		}),
	}
}

// BuildServices constructs the full service graph. The comparator is only
// built when an audit API key is configured; RunServices rejects a pipeline
// start without it.
func BuildServices(deps ServiceDeps) (ServiceContainer, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repos := buildRepositories(deps.DB, deps.RedisClient, logger)
	notifier := buildFailureNotifier(logger, cfg.Observability.Notifications)

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            repos.Jobs,
		DefaultLease:    defaultJobLease,
		Logger:          logger,
		FailedJobs:      repos.FailedJobs,
		FailureNotifier: notifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}

	failedJobs, err := service.NewFailedJobService(service.FailedJobServiceOptions{
		Records:    repos.FailedJobs,
		Jobs:       jobs,
		MaxRetries: cfg.Workers.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build failed job service: %w", err)
	}

	costs, err := service.NewCostService(service.CostServiceOptions{
		Repo:           repos.Costs,
		MonthlyCeiling: cfg.Budget.MonthlyCeilingEUR,
		Logger:         logger,
		Notifier:       notifier,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build cost service: %w", err)
	}

	results, err := service.NewAuditResultService(service.AuditResultServiceOptions{
		Records:        repos.Audits,
		POIs:           repos.POIs,
		ScoreThreshold: cfg.Audit.ScoreThreshold,
		Logger:         logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build audit result service: %w", err)
	}

	scheduler, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Schedules:  repos.Schedules,
		POIs:       repos.POIs,
		Jobs:       jobs,
		Priority:   cfg.Scheduler.DefaultPriority,
		MaxRetries: cfg.Scheduler.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build scheduler service: %w", err)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:       repos.Jobs,
		CrawlPages: repos.CrawlPages,
		Outbox:     repos.Outbox,
		Config:     cfg.Reaper,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build reaper service: %w", err)
	}

	sender, err := mail.NewSender(mail.Options{Config: cfg.Mail, Logger: logger})
	if err != nil {
		// No mail endpoint is fine outside the notify pool; the outbox is
		// only required when the pipeline runs.
		logger.Warn("mail sender unavailable", "error", err)
	}

	var outbox *service.OutboxService
	if sender != nil {
		outbox, err = service.NewOutboxService(service.OutboxServiceOptions{
			Repo:             repos.Outbox,
			Sender:           sender,
			Cache:            repos.Cache,
			SpamWindow:       cfg.Mail.SpamWindow,
			DeliveryAttempts: cfg.Mail.DeliveryAttempts,
			Logger:           logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("build outbox service: %w", err)
		}
	}

	siteCrawler, err := crawler.New(crawler.Options{
		Pages:  repos.CrawlPages,
		Config: cfg.Crawler,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build crawler: %w", err)
	}

	placesClient, err := places.NewClient(places.Options{
		Config: cfg.Places,
		HTTPClient: guardedHTTPClient(
			deps, "places", cfg.Places.RateLimitPerMinute, cfg.Places.RequestTimeout),
		Costs:  costs,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build places client: %w", err)
	}

	var comparator *auditor.Comparator
	if cfg.Audit.APIKey != "" {
		model, modelErr := auditor.NewModelFromConfig(cfg.Audit, guardedHTTPClient(
			deps, "llm", cfg.Audit.RateLimitPerMinute, cfg.Audit.RequestTimeout))
		if modelErr != nil {
			return ServiceContainer{}, fmt.Errorf("build completion model: %w", modelErr)
		}
		comparator, err = auditor.New(auditor.Options{
			Model:  model,
			Config: cfg.Audit,
			Costs:  costs,
			Logger: logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("build comparator: %w", err)
		}
	}

	scheduleCache := core.NewScheduleCacheService(core.ScheduleCacheServiceOptions{
		Schedules: repos.Schedules,
		Logger:    logger,
	})

	return ServiceContainer{
		Jobs:            jobs,
		FailedJobs:      failedJobs,
		Results:         results,
		Costs:           costs,
		Outbox:          outbox,
		Scheduler:       scheduler,
		Reaper:          reaper,
		Crawler:         siteCrawler,
		Places:          placesClient,
		Comparator:      comparator,
		ScheduleCache:   scheduleCache,
		FailureNotifier: notifier,
		Repos:           repos,
	}, nil
}
