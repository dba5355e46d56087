package config

import (
	"strings"
	"time"
)

// CrawlerConfig contains website crawl stage configuration.
type CrawlerConfig struct {
	// MaxDepth bounds the BFS link depth from the start URL.
	MaxDepth int `env:"CRAWLER_MAX_DEPTH" envDefault:"3"`

	// MaxPages bounds the number of pages fetched per crawl run.
	MaxPages int `env:"CRAWLER_MAX_PAGES" envDefault:"25"`

	// MinDelay is the minimum delay between requests to one host. A larger
	// robots.txt crawl-delay wins over this value.
	MinDelay time.Duration `env:"CRAWLER_MIN_DELAY" envDefault:"1s"`

	// RequestTimeout bounds one page fetch.
	RequestTimeout time.Duration `env:"CRAWLER_REQUEST_TIMEOUT" envDefault:"15s"`

	// MaxBodyBytes bounds how much of a response body is read.
	MaxBodyBytes int64 `env:"CRAWLER_MAX_BODY_BYTES" envDefault:"2097152"` // 2 MiB

	// UserAgent identifies the crawler to target sites.
	UserAgent string `env:"CRAWLER_USER_AGENT" envDefault:"poiaudit-crawler/1.0"`
}

// Sanitize applies guardrails to crawler configuration values.
func (c *CrawlerConfig) Sanitize() {
	if c.MaxDepth < 0 {
		c.MaxDepth = 0
	}
	if c.MaxPages < 1 {
		c.MaxPages = 1
	}
	if c.MinDelay < 100*time.Millisecond {
		c.MinDelay = 100 * time.Millisecond
	}
	if c.RequestTimeout < time.Second {
		c.RequestTimeout = time.Second
	}
	if c.MaxBodyBytes < 64*1024 {
		c.MaxBodyBytes = 64 * 1024
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = "poiaudit-crawler/1.0"
	}
}

// PlacesConfig contains the places enrichment stage configuration.
type PlacesConfig struct {
	// APIKey authenticates against the places API. Empty disables enrichment;
	// the stage then records missing maps data instead of failing.
	APIKey string `env:"PLACES_API_KEY"`

	// BaseURL overrides the places API endpoint, mainly for tests.
	BaseURL string `env:"PLACES_BASE_URL" envDefault:"https://places.googleapis.com/v1"`

	// RequestTimeout bounds one lookup call.
	RequestTimeout time.Duration `env:"PLACES_REQUEST_TIMEOUT" envDefault:"10s"`

	// LookupCostEUR is the ledger price of one place details lookup.
	LookupCostEUR float64 `env:"PLACES_LOOKUP_COST_EUR" envDefault:"0.015"`

	// RateLimitPerMinute caps lookup calls per minute across all nodes.
	// Zero disables the cap.
	RateLimitPerMinute int64 `env:"PLACES_RATE_LIMIT_PER_MINUTE" envDefault:"300"`
}

// Sanitize applies guardrails to places configuration values.
func (p *PlacesConfig) Sanitize() {
	p.APIKey = strings.TrimSpace(p.APIKey)
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if p.RequestTimeout < time.Second {
		p.RequestTimeout = time.Second
	}
	if p.LookupCostEUR < 0 {
		p.LookupCostEUR = 0
	}
	if p.RateLimitPerMinute < 0 {
		p.RateLimitPerMinute = 0
	}
}

// AuditConfig contains the comparator stage configuration.
type AuditConfig struct {
	// Model names the completion model used for three-way comparison.
	Model string `env:"AUDIT_MODEL" envDefault:"gpt-4o-mini"`

	// APIKey authenticates against the completion API.
	APIKey string `env:"AUDIT_API_KEY"`

	// ScoreThreshold is the overall score at or above which an audit is clean.
	ScoreThreshold float64 `env:"AUDIT_SCORE_THRESHOLD" envDefault:"80"`

	// RequestTimeout bounds one comparator call.
	RequestTimeout time.Duration `env:"AUDIT_REQUEST_TIMEOUT" envDefault:"120s"`

	// MaxOutputTokens bounds the comparator response size.
	MaxOutputTokens int `env:"AUDIT_MAX_OUTPUT_TOKENS" envDefault:"4096"`

	// InputTokenCostEUR and OutputTokenCostEUR price one token each for the
	// cost ledger.
	InputTokenCostEUR  float64 `env:"AUDIT_INPUT_TOKEN_COST_EUR"  envDefault:"0.00000015"`
	OutputTokenCostEUR float64 `env:"AUDIT_OUTPUT_TOKEN_COST_EUR" envDefault:"0.0000006"`

	// RateLimitPerMinute caps comparator calls per minute across all nodes.
	// Zero disables the cap.
	RateLimitPerMinute int64 `env:"AUDIT_RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

// Sanitize applies guardrails to audit configuration values.
func (a *AuditConfig) Sanitize() {
	if a.ScoreThreshold <= 0 || a.ScoreThreshold > 100 {
		a.ScoreThreshold = 80
	}
	if a.RequestTimeout < 5*time.Second {
		a.RequestTimeout = 5 * time.Second
	}
	if a.MaxOutputTokens < 256 {
		a.MaxOutputTokens = 256
	}
	if a.InputTokenCostEUR < 0 {
		a.InputTokenCostEUR = 0
	}
	if a.OutputTokenCostEUR < 0 {
		a.OutputTokenCostEUR = 0
	}
	if a.RateLimitPerMinute < 0 {
		a.RateLimitPerMinute = 0
	}
}

// MailConfig contains the notification dispatch stage configuration.
type MailConfig struct {
	// APIURL is the mail API submission endpoint.
	APIURL string `env:"MAIL_API_URL"`

	// APIKey authenticates against the mail API.
	APIKey string `env:"MAIL_API_KEY"`

	// From is the sender address on outbound notifications.
	From string `env:"MAIL_FROM" envDefault:"audit@poiaudit.example.com"`

	// DefaultLocale picks the template language when the POI has none.
	DefaultLocale string `env:"MAIL_DEFAULT_LOCALE" envDefault:"de"`

	// NotifyScoreThreshold is the overall audit score at or above which a
	// discrepancy notification is suppressed. A POI scoring this well is
	// close enough; only one below it mails its owner.
	NotifyScoreThreshold float64 `env:"MAIL_NOTIFY_SCORE_THRESHOLD" envDefault:"80"`

	// SpamWindow suppresses identical notifications to one recipient.
	SpamWindow time.Duration `env:"MAIL_SPAM_WINDOW" envDefault:"720h"` // 30 days

	// RequestTimeout bounds one submission call.
	RequestTimeout time.Duration `env:"MAIL_REQUEST_TIMEOUT" envDefault:"10s"`

	// DeliveryAttempts is the per-dispatch retry budget against the mail API.
	DeliveryAttempts int `env:"MAIL_DELIVERY_ATTEMPTS" envDefault:"3"`
}

// Sanitize applies guardrails to mail configuration values.
func (m *MailConfig) Sanitize() {
	m.APIURL = strings.TrimSpace(m.APIURL)
	m.From = strings.TrimSpace(m.From)
	if m.DefaultLocale == "" {
		m.DefaultLocale = "de"
	}
	if m.NotifyScoreThreshold <= 0 || m.NotifyScoreThreshold > 100 {
		m.NotifyScoreThreshold = 80
	}
	if m.SpamWindow < time.Hour {
		m.SpamWindow = time.Hour
	}
	if m.RequestTimeout < time.Second {
		m.RequestTimeout = time.Second
	}
	if m.DeliveryAttempts < 1 {
		m.DeliveryAttempts = 1
	}
}

// BudgetConfig contains cost ledger and projection configuration.
type BudgetConfig struct {
	// MonthlyCeilingEUR is the advisory monthly spend ceiling. Zero disables
	// projection alerts; the ledger itself always records.
	MonthlyCeilingEUR float64 `env:"BUDGET_MONTHLY_CEILING_EUR" envDefault:"0"`

	// CheckInterval is how often the projection is evaluated for alerting.
	CheckInterval time.Duration `env:"BUDGET_CHECK_INTERVAL" envDefault:"1h"`
}

// Sanitize applies guardrails to budget configuration values.
func (b *BudgetConfig) Sanitize() {
	if b.MonthlyCeilingEUR < 0 {
		b.MonthlyCeilingEUR = 0
	}
	if b.CheckInterval < time.Minute {
		b.CheckInterval = time.Minute
	}
}
