package auditor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

type comparisonResponse struct {
	OverallScore    float64           `json:"overall_score"`
	Summary         string            `json:"summary"`
	Recommendations []string          `json:"recommendations"`
	Fields          []comparisonField `json:"fields"`
}

type comparisonField struct {
	Field      string           `json:"field"`
	Master     comparisonSource `json:"master"`
	Website    comparisonSource `json:"website"`
	Maps       comparisonSource `json:"maps"`
	Status     string           `json:"status"`
	Confidence float64          `json:"confidence"`
	Note       string           `json:"note"`
	Score      float64          `json:"score"`
}

type comparisonSource struct {
	Raw        *string `json:"raw"`
	Normalized *string `json:"normalized"`
}

// parseComparison decodes and validates a comparator response into an
// AuditRecord. Scores are clamped rather than rejected; a response without
// fields or with an unusable status is rejected outright.
func parseComparison(content string) (*model.AuditRecord, error) {
	payload := stripCodeFences(content)
	if payload == "" {
		return nil, errors.New("empty response")
	}

	var resp comparisonResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Fields) == 0 {
		return nil, errors.New("response carries no field comparisons")
	}

	record := &model.AuditRecord{
		Status:          model.AuditRecordCompleted,
		OverallScore:    clamp(resp.OverallScore, 0, 100),
		Summary:         strings.TrimSpace(resp.Summary),
		Recommendations: resp.Recommendations,
	}

	for i, f := range resp.Fields {
		if f.Field == "" {
			return nil, fmt.Errorf("field comparison %d has no field name", i)
		}
		status := model.MatchStatus(f.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("field %q has unknown status %q", f.Field, f.Status)
		}

		comparison := model.FieldComparison{
			Field:      f.Field,
			Master:     model.SourceValues{Raw: f.Master.Raw, Normalized: f.Master.Normalized},
			Website:    model.SourceValues{Raw: f.Website.Raw, Normalized: f.Website.Normalized},
			Maps:       model.SourceValues{Raw: f.Maps.Raw, Normalized: f.Maps.Normalized},
			Status:     status,
			Confidence: clamp(f.Confidence, 0, 1),
			Note:       strings.TrimSpace(f.Note),
			Score:      clamp(f.Score, 0, 100),
		}
		record.Fields = append(record.Fields, comparison)

		if status == model.MatchStatusMatch {
			continue
		}
		record.Discrepancies = append(record.Discrepancies, model.Discrepancy{
			Field:          comparison.Field,
			MasterValue:    comparison.Master.Normalized,
			WebsiteValue:   comparison.Website.Normalized,
			MapsValue:      comparison.Maps.Normalized,
			Severity:       comparison.Severity(),
			Recommendation: comparison.Note,
		})
	}

	return record, nil
}

// stripCodeFences tolerates models that wrap the JSON in a markdown block
// despite the JSON-mode instruction.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
