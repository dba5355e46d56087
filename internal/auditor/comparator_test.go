package auditor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
)

// stubModel returns a canned completion.
type stubModel struct {
	content string
	genInfo map[string]any
	err     error
	prompts []string
}

func (m *stubModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: m.content, GenerationInfo: m.genInfo},
		},
	}, nil
}

func (m *stubModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

type stubCostRecorder struct {
	entries []*model.CostEntry
}

func (r *stubCostRecorder) Record(_ context.Context, entry *model.CostEntry) (*model.CostEntry, error) {
	r.entries = append(r.entries, entry)
	return entry, nil
}

const validResponse = `{
	"overall_score": 87.5,
	"summary": "Phone and name agree; opening hours differ between website and master.",
	"recommendations": ["Update the opening hours in the master record."],
	"fields": [
		{
			"field": "phone",
			"master": {"raw": "08321/123", "normalized": "+498321123"},
			"website": {"raw": "+49 8321 123", "normalized": "+498321123"},
			"maps": {"raw": null, "normalized": null},
			"status": "match",
			"confidence": 0.95,
			"note": "",
			"score": 100
		},
		{
			"field": "opening_hours",
			"master": {"raw": "Mo-Fr 9-17", "normalized": "Mo-Fr 09:00-17:00"},
			"website": {"raw": "Mo-Sa 9-18", "normalized": "Mo-Sa 09:00-18:00"},
			"maps": {"raw": null, "normalized": null},
			"status": "mismatch",
			"confidence": 0.8,
			"note": "Website lists longer hours.",
			"score": 40
		}
	]
}`

func testAuditConfig() config.AuditConfig {
	return config.AuditConfig{
		Model:              "gpt-4o-mini",
		ScoreThreshold:     80,
		RequestTimeout:     30 * time.Second,
		MaxOutputTokens:    4096,
		InputTokenCostEUR:  0.00000015,
		OutputTokenCostEUR: 0.0000006,
	}
}

func testAuditPOI() *model.POI {
	return &model.POI{
		ID:          "poi-1",
		Name:        "Bergbahn Oberstdorf",
		Region:      "Allgäu",
		Category:    "attraction",
		MasterData:  json.RawMessage(`{"phone":"08321/123","opening_hours":"Mo-Fr 9-17"}`),
		WebsiteData: json.RawMessage(`{"phone":"+49 8321 123","opening_hours":"Mo-Sa 9-18"}`),
	}
}

func newTestComparator(t *testing.T, m llms.Model, costs CostRecorder) *Comparator {
	t.Helper()
	c, err := New(Options{
		Model:  m,
		Config: testAuditConfig(),
		Costs:  costs,
		Now:    func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return c
}

func TestComparator_Compare_ParsesResult(t *testing.T) {
	m := &stubModel{content: validResponse}
	c := newTestComparator(t, m, nil)

	record, err := c.Compare(context.Background(), testAuditPOI())
	require.NoError(t, err)

	assert.Equal(t, "poi-1", record.POIID)
	assert.Equal(t, model.AuditRecordCompleted, record.Status)
	assert.InDelta(t, 87.5, record.OverallScore, 0.001)
	require.Len(t, record.Fields, 2)
	assert.Equal(t, model.MatchStatusMatch, record.Fields[0].Status)

	require.Len(t, record.Discrepancies, 1)
	d := record.Discrepancies[0]
	assert.Equal(t, "opening_hours", d.Field)
	assert.Equal(t, model.SeverityHigh, d.Severity)
	require.NotNil(t, d.WebsiteValue)
	assert.Equal(t, "Mo-Sa 09:00-18:00", *d.WebsiteValue)

	// Both snapshots end up in the prompt; an absent maps snapshot is stated.
	require.Len(t, m.prompts, 2)
	assert.Contains(t, m.prompts[1], "Bergbahn Oberstdorf")
	assert.Contains(t, m.prompts[1], "(no data available)")
}

func TestComparator_Compare_BillsReportedTokenUsage(t *testing.T) {
	m := &stubModel{
		content: validResponse,
		genInfo: map[string]any{
			"PromptTokens":     1200,
			"CompletionTokens": 480,
		},
	}
	costs := &stubCostRecorder{}
	c := newTestComparator(t, m, costs)

	_, err := c.Compare(context.Background(), testAuditPOI())
	require.NoError(t, err)

	require.Len(t, costs.entries, 2)
	assert.Equal(t, "chat.input_tokens", costs.entries[0].Operation)
	assert.Equal(t, float64(1200), costs.entries[0].Units)
	assert.Equal(t, model.ServiceLLM, costs.entries[0].Service)
	assert.Equal(t, "chat.output_tokens", costs.entries[1].Operation)
	assert.Equal(t, float64(480), costs.entries[1].Units)
}

func TestComparator_Compare_NoUsageObjectBillsNothing(t *testing.T) {
	m := &stubModel{content: validResponse}
	costs := &stubCostRecorder{}
	c := newTestComparator(t, m, costs)

	_, err := c.Compare(context.Background(), testAuditPOI())
	require.NoError(t, err)
	assert.Empty(t, costs.entries)
}

func TestComparator_Compare_ModelErrorIsTransient(t *testing.T) {
	m := &stubModel{err: errors.New("upstream overloaded")}
	c := newTestComparator(t, m, nil)

	_, err := c.Compare(context.Background(), testAuditPOI())
	require.Error(t, err)
	assert.Equal(t, obserrors.FailureTransient, obserrors.KindOf(err))
}

func TestComparator_Compare_MalformedResponseIsTransient(t *testing.T) {
	m := &stubModel{content: "I could not produce JSON, sorry."}
	c := newTestComparator(t, m, nil)

	_, err := c.Compare(context.Background(), testAuditPOI())
	require.Error(t, err)
	assert.Equal(t, obserrors.FailureTransient, obserrors.KindOf(err))
}

func TestParseComparison_ClampsAndFences(t *testing.T) {
	fenced := "```json\n" + `{
		"overall_score": 140,
		"summary": "ok",
		"fields": [{
			"field": "name",
			"master": {"raw": "A", "normalized": "a"},
			"website": {"raw": "A", "normalized": "a"},
			"maps": {"raw": null, "normalized": null},
			"status": "match",
			"confidence": 1.7,
			"note": "",
			"score": -5
		}]
	}` + "\n```"

	record, err := parseComparison(fenced)
	require.NoError(t, err)
	assert.Equal(t, float64(100), record.OverallScore)
	assert.Equal(t, float64(1), record.Fields[0].Confidence)
	assert.Equal(t, float64(0), record.Fields[0].Score)
}

func TestParseComparison_RejectsUnknownStatus(t *testing.T) {
	_, err := parseComparison(`{
		"overall_score": 50,
		"fields": [{"field": "name", "status": "sort_of_matches", "score": 50}]
	}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestParseComparison_RejectsEmptyFields(t *testing.T) {
	_, err := parseComparison(`{"overall_score": 50, "fields": []}`)
	require.Error(t, err)
}
