package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, worker, scheduler, and reaper configuration
//   - pipeline.go: Crawl, enrichment, audit, mail, and budget configuration
type AppConfig struct {
	// IsDev controls development mode behavior (seeding, relaxed auth, etc.)
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Services is a comma-delimited list of enabled services.
	// Valid values: http, pipeline, scheduler, reaper, autoscaler
	Services string `env:"SERVICES" envDefault:"http,pipeline"`

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Workers configuration for the four stage queues
	Workers WorkersConfig

	// Autoscaler configuration
	Autoscaler AutoscalerConfig

	// Reaper configuration
	Reaper ReaperConfig

	// Pipeline stage configuration
	Crawler CrawlerConfig
	Places  PlacesConfig
	Audit   AuditConfig
	Mail    MailConfig
	Budget  BudgetConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Scheduler.Sanitize()
	c.Workers.Sanitize()
	c.Autoscaler.Sanitize()
	c.Reaper.Sanitize()
	c.Crawler.Sanitize()
	c.Places.Sanitize()
	c.Audit.Sanitize()
	c.Mail.Sanitize()
	c.Budget.Sanitize()
	c.Observability.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isServiceEnabled(ServiceModeHTTP)
}

// IsPipelineEnabled returns true if the stage worker pools are enabled.
func (c *AppConfig) IsPipelineEnabled() bool {
	return c.isServiceEnabled(ServiceModePipeline)
}

// IsSchedulerEnabled returns true if the scheduler service is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	return c.isServiceEnabled(ServiceModeScheduler)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.isServiceEnabled(ServiceModeReaper)
}

// IsAutoscalerEnabled returns true if the auto-scaler service is enabled.
func (c *AppConfig) IsAutoscalerEnabled() bool {
	return c.isServiceEnabled(ServiceModeAutoscaler)
}

func (c *AppConfig) isServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
