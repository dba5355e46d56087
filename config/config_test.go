package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - http",
			input: "http",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP: true,
			},
			expectError: false,
		},
		{
			name:  "single service - pipeline",
			input: "pipeline",
			expected: map[ServiceMode]bool{
				ServiceModePipeline: true,
			},
			expectError: false,
		},
		{
			name:  "multiple services",
			input: "http,pipeline,scheduler",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:      true,
				ServiceModePipeline:  true,
				ServiceModeScheduler: true,
			},
			expectError: false,
		},
		{
			name:  "all services",
			input: "http,pipeline,scheduler,reaper,autoscaler",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:       true,
				ServiceModePipeline:   true,
				ServiceModeScheduler:  true,
				ServiceModeReaper:     true,
				ServiceModeAutoscaler: true,
			},
			expectError: false,
		},
		{
			name:  "services with spaces",
			input: " http , pipeline , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:     true,
				ServiceModePipeline: true,
				ServiceModeReaper:   true,
			},
			expectError: false,
		},
		{
			name:  "duplicate services",
			input: "http,http,pipeline",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:     true,
				ServiceModePipeline: true,
			},
			expectError: false,
		},
		{
			name:        "empty string",
			input:       "",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "only spaces and commas",
			input:       " , , ",
			expected:    nil,
			expectError: true,
		},
		{
			name:        "invalid service name",
			input:       "http,invalid-service",
			expected:    nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if len(result) != len(tt.expected) {
				t.Errorf("expected %d services, got %d", len(tt.expected), len(result))
				return
			}

			for service, expected := range tt.expected {
				if result[service] != expected {
					t.Errorf("expected service %s to be %v, got %v", service, expected, result[service])
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	tests := []struct {
		name              string
		services          string
		expectedHTTP      bool
		expectedPipeline  bool
		expectedScheduler bool
	}{
		{
			name:              "default - http and pipeline",
			services:          "http,pipeline",
			expectedHTTP:      true,
			expectedPipeline:  true,
			expectedScheduler: false,
		},
		{
			name:              "scheduler only",
			services:          "scheduler",
			expectedHTTP:      false,
			expectedPipeline:  false,
			expectedScheduler: true,
		},
		{
			name:              "pipeline only",
			services:          "pipeline",
			expectedHTTP:      false,
			expectedPipeline:  true,
			expectedScheduler: false,
		},
		{
			name:              "invalid config disables everything",
			services:          "invalid-service",
			expectedHTTP:      false,
			expectedPipeline:  false,
			expectedScheduler: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Services: tt.services}

			if cfg.IsHTTPServerEnabled() != tt.expectedHTTP {
				t.Errorf("IsHTTPServerEnabled(): expected %v, got %v", tt.expectedHTTP, cfg.IsHTTPServerEnabled())
			}
			if cfg.IsPipelineEnabled() != tt.expectedPipeline {
				t.Errorf("IsPipelineEnabled(): expected %v, got %v", tt.expectedPipeline, cfg.IsPipelineEnabled())
			}
			if cfg.IsSchedulerEnabled() != tt.expectedScheduler {
				t.Errorf("IsSchedulerEnabled(): expected %v, got %v", tt.expectedScheduler, cfg.IsSchedulerEnabled())
			}
		})
	}
}

func TestAppConfig_ParseWorkerEnv(t *testing.T) {
	t.Setenv("WORKERS_CRAWL_CONCURRENCY", "8")
	t.Setenv("WORKERS_CRAWL_JOB_LEASE", "90s")
	t.Setenv("WORKERS_AUDIT_CONCURRENCY", "3")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Workers.Crawl.Concurrency != 8 {
		t.Errorf("expected crawl concurrency 8, got %d", cfg.Workers.Crawl.Concurrency)
	}
	if cfg.Workers.Crawl.JobLease != 90*time.Second {
		t.Errorf("expected crawl lease 90s, got %v", cfg.Workers.Crawl.JobLease)
	}
	if cfg.Workers.Audit.Concurrency != 3 {
		t.Errorf("expected audit concurrency 3, got %d", cfg.Workers.Audit.Concurrency)
	}
	// Unset pools get their stage defaults, audit at half the crawl default.
	if cfg.Workers.Enrich.Concurrency != 4 {
		t.Errorf("expected enrich concurrency default 4, got %d", cfg.Workers.Enrich.Concurrency)
	}
	if cfg.Workers.Notify.Concurrency != 4 {
		t.Errorf("expected notify concurrency default 4, got %d", cfg.Workers.Notify.Concurrency)
	}
}

func TestWorkersConfig_SanitizeDefaults(t *testing.T) {
	var w WorkersConfig
	w.Sanitize()

	if w.Crawl.Concurrency != 4 || w.Enrich.Concurrency != 4 {
		t.Errorf("expected crawl/enrich default 4, got %d/%d", w.Crawl.Concurrency, w.Enrich.Concurrency)
	}
	if w.Audit.Concurrency != 2 {
		t.Errorf("expected audit default 2, got %d", w.Audit.Concurrency)
	}
	// Notify mails are cheap, so the pool matches the crawl default.
	if w.Notify.Concurrency != 4 {
		t.Errorf("expected notify default 4, got %d", w.Notify.Concurrency)
	}
	if w.Crawl.JobLease < 5*time.Second {
		t.Errorf("expected lease floor 5s, got %v", w.Crawl.JobLease)
	}
	if w.MaxRetries != 3 {
		t.Errorf("expected max retries default 3, got %d", w.MaxRetries)
	}
}

func TestAutoscalerConfig_Sanitize(t *testing.T) {
	cfg := AutoscalerConfig{
		Interval:         time.Second,
		ScaleUpBacklog:   4,
		ScaleDownBacklog: 6,
		MinWorkers:       0,
		MaxWorkers:       -1,
	}
	cfg.Sanitize()

	if cfg.Interval < 5*time.Second {
		t.Errorf("expected interval floor, got %v", cfg.Interval)
	}
	if cfg.MinWorkers != 1 {
		t.Errorf("expected min workers 1, got %d", cfg.MinWorkers)
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		t.Errorf("expected max >= min, got %d < %d", cfg.MaxWorkers, cfg.MinWorkers)
	}
	if cfg.ScaleDownBacklog >= cfg.ScaleUpBacklog {
		t.Errorf("expected non-overlapping bands, got down=%d up=%d",
			cfg.ScaleDownBacklog, cfg.ScaleUpBacklog)
	}
}

func TestReaperConfig_SanitizeOutboxFloor(t *testing.T) {
	cfg := ReaperConfig{
		Interval:        time.Second,
		OutboxMaxAge:    24 * time.Hour,
		CrawlPageMaxAge: time.Hour,
		BatchSize:       0,
	}
	cfg.Sanitize()

	// Finished outbox rows must outlive the 30-day notification dedup window.
	if cfg.OutboxMaxAge < 31*24*time.Hour {
		t.Errorf("expected outbox max age floor of 31 days, got %v", cfg.OutboxMaxAge)
	}
	if cfg.CrawlPageMaxAge < 24*time.Hour {
		t.Errorf("expected crawl page max age floor, got %v", cfg.CrawlPageMaxAge)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("expected batch size floor 1, got %d", cfg.BatchSize)
	}
}

func TestAuditConfig_Sanitize(t *testing.T) {
	cfg := AuditConfig{ScoreThreshold: 150}
	cfg.Sanitize()
	if cfg.ScoreThreshold != 80 {
		t.Errorf("expected threshold fallback 80, got %v", cfg.ScoreThreshold)
	}

	cfg = AuditConfig{ScoreThreshold: 75}
	cfg.Sanitize()
	if cfg.ScoreThreshold != 75 {
		t.Errorf("expected configured threshold 75 to survive, got %v", cfg.ScoreThreshold)
	}
}

func TestCrawlerConfig_DefaultDepth(t *testing.T) {
	var cfg CrawlerConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.MaxDepth != 3 {
		t.Errorf("expected default max depth 3, got %d", cfg.MaxDepth)
	}
}

func TestMailConfig_SanitizeNotifyThreshold(t *testing.T) {
	cfg := MailConfig{NotifyScoreThreshold: 130}
	cfg.Sanitize()
	if cfg.NotifyScoreThreshold != 80 {
		t.Errorf("expected threshold fallback 80, got %v", cfg.NotifyScoreThreshold)
	}

	cfg = MailConfig{NotifyScoreThreshold: 90}
	cfg.Sanitize()
	if cfg.NotifyScoreThreshold != 90 {
		t.Errorf("expected configured threshold 90 to survive, got %v", cfg.NotifyScoreThreshold)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
			Username:   "",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
			Source:     "",
			Component:  "",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "poiaudit" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}
	if cfg.PagerDuty.Component != "poiaudit" {
		t.Fatalf("expected pagerduty component default, got %q", cfg.PagerDuty.Component)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}
