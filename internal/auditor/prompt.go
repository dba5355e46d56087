package auditor

import (
	"encoding/json"
	"fmt"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

const systemPrompt = `You are a data quality auditor for tourism points of interest.
You receive three data snapshots for one POI: the master record, data extracted
from the POI's own website, and data from a maps provider. Compare them field
by field and respond with JSON only, matching exactly this schema:

{
  "overall_score": <number 0-100>,
  "summary": "<one short paragraph>",
  "recommendations": ["<action>", ...],
  "fields": [
    {
      "field": "<canonical field name, e.g. name, phone, address, opening_hours, website, email>",
      "master": {"raw": <string or null>, "normalized": <string or null>},
      "website": {"raw": <string or null>, "normalized": <string or null>},
      "maps": {"raw": <string or null>, "normalized": <string or null>},
      "status": "match" | "partial_match" | "mismatch" | "missing_data",
      "confidence": <number 0-1>,
      "note": "<short explanation, may be empty>",
      "score": <number 0-100>
    }
  ]
}

Rules:
- Normalize before comparing: phone numbers to E.164, whitespace collapsed,
  casing ignored, address components ordered street / postal code / city.
- A field present in only one source is "missing_data", not "mismatch".
- Missing data in a single source must NOT crater the overall score; weigh it
  far more gently than an actual contradiction between two present values.
- "partial_match" is for values that agree in substance but differ in form
  beyond normalization, such as abbreviated street names.
- Confidence reflects how certain you are of the verdict, not data quality.
- Recommendations are concrete edits the data owner should make.`

// buildUserPrompt renders the three snapshots for the model. A missing
// snapshot is stated explicitly so the model grades it as absent data.
func buildUserPrompt(poi *model.POI) (string, error) {
	master, err := snapshotText(poi.MasterData)
	if err != nil {
		return "", fmt.Errorf("master data: %w", err)
	}
	website, err := snapshotText(poi.WebsiteData)
	if err != nil {
		return "", fmt.Errorf("website data: %w", err)
	}
	maps, err := snapshotText(poi.MapsData)
	if err != nil {
		return "", fmt.Errorf("maps data: %w", err)
	}

	return fmt.Sprintf(`POI: %s (%s, %s)

MASTER RECORD:
%s

WEBSITE DATA:
%s

MAPS DATA:
%s`, poi.Name, poi.Category, poi.Region, master, website, maps), nil
}

func snapshotText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "(no data available)", nil
	}
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("invalid snapshot json: %w", err)
	}
	pretty, err := json.MarshalIndent(probe, "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}
