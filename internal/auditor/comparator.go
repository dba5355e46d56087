// Package auditor implements the audit stage: a three-way comparison of a
// POI's master, website, and maps data snapshots through an LLM, producing
// the immutable per-run audit record.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
)

// CostRecorder receives the token-usage ledger entries of comparator calls.
type CostRecorder interface {
	Record(ctx context.Context, entry *model.CostEntry) (*model.CostEntry, error)
}

// Options groups dependencies for the Comparator.
type Options struct {
	Model  llms.Model         // Required: completion model
	Config config.AuditConfig // Model name, threshold, pricing
	Costs  CostRecorder       // Optional: ledger sink for token usage
	Logger *slog.Logger       // Optional: structured logger
	Now    func() time.Time   // Optional: clock override for tests
}

// Comparator runs the three-way comparison. It returns a fully validated
// AuditRecord; persistence and POI lifecycle updates belong to the caller.
type Comparator struct {
	model  llms.Model
	cfg    config.AuditConfig
	costs  CostRecorder
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Comparator.
func New(opts Options) (*Comparator, error) {
	if opts.Model == nil {
		return nil, errors.New("completion model is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "comparator")
	}

	return &Comparator{
		model:  opts.Model,
		cfg:    cfg,
		costs:  opts.Costs,
		logger: logger,
		now:    now,
	}, nil
}

// NewModelFromConfig builds the completion model the comparator talks to.
// A non-nil httpClient lets the caller insert budget and breaker guards.
func NewModelFromConfig(cfg config.AuditConfig, httpClient *http.Client) (llms.Model, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("audit api key is required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create completion model: %w", err)
	}
	return llm, nil
}

// Compare runs one comparison for a POI. Token usage is billed only when the
// provider reported a usage object; it is never estimated. A malformed model
// response is transient: the next attempt gets a fresh completion.
func (c *Comparator) Compare(ctx context.Context, poi *model.POI) (*model.AuditRecord, error) {
	if poi == nil || poi.ID == "" {
		return nil, errors.New("poi with id is required")
	}

	userPrompt, err := buildUserPrompt(poi)
	if err != nil {
		return nil, obserrors.PermanentInput(fmt.Errorf("build comparison prompt: %w", err))
	}

	start := c.now()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	resp, err := c.model.GenerateContent(callCtx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
		},
		llms.WithMaxTokens(c.cfg.MaxOutputTokens),
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return nil, obserrors.Transient(fmt.Errorf("comparator completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, obserrors.Transient(errors.New("comparator returned no choices"))
	}

	choice := resp.Choices[0]
	c.recordTokenUsage(ctx, poi.ID, choice.GenerationInfo)

	record, err := parseComparison(choice.Content)
	if err != nil {
		return nil, obserrors.Transient(fmt.Errorf("parse comparator response: %w", err))
	}

	record.POIID = poi.ID
	record.Duration = c.now().Sub(start)

	if c.logger != nil {
		c.logger.InfoContext(ctx, "comparison finished",
			"poi_id", poi.ID,
			"overall_score", record.OverallScore,
			"fields", len(record.Fields),
			"discrepancies", len(record.Discrepancies),
			"duration", record.Duration,
		)
	}
	return record, nil
}

// recordTokenUsage bills the call from the provider's usage object. Absent
// or partial usage info bills nothing.
func (c *Comparator) recordTokenUsage(ctx context.Context, poiID string, info map[string]any) {
	if c.costs == nil || info == nil {
		return
	}

	entries := []struct {
		key       string
		operation string
		unitCost  float64
	}{
		{"PromptTokens", "chat.input_tokens", c.cfg.InputTokenCostEUR},
		{"CompletionTokens", "chat.output_tokens", c.cfg.OutputTokenCostEUR},
	}
	for _, e := range entries {
		tokens, ok := tokenCount(info[e.key])
		if !ok || tokens <= 0 {
			continue
		}
		entry := &model.CostEntry{
			Service:   model.ServiceLLM,
			Operation: e.operation,
			Units:     float64(tokens),
			UnitCost:  e.unitCost,
			POIID:     &poiID,
		}
		if _, err := c.costs.Record(ctx, entry); err != nil && c.logger != nil {
			c.logger.WarnContext(ctx, "failed to record llm cost entry",
				"operation", e.operation,
				"error", err,
			)
		}
	}
}

func tokenCount(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
