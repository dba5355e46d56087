package crawler

import (
	"encoding/json"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// contactExpressions maps canonical contact fields to the JMESPath queries
// that locate them inside a schema.org entity.
var contactExpressions = map[string]string{
	"name":        "name",
	"phone":       "telephone",
	"email":       "email",
	"website":     "url",
	"street":      "address.streetAddress",
	"postal_code": "address.postalCode",
	"city":        "address.addressLocality",
}

// distillContact reduces the collected JSON-LD entities to a flat contact
// object. The first non-empty string per field wins; entities that are not
// objects or do not carry a field are skipped.
func distillContact(blocks []json.RawMessage) map[string]string {
	contact := make(map[string]string)
	for _, block := range blocks {
		var entity any
		if err := json.Unmarshal(block, &entity); err != nil {
			continue
		}
		for field, expr := range contactExpressions {
			if _, done := contact[field]; done {
				continue
			}
			result, err := jmespath.Search(expr, entity)
			if err != nil {
				continue
			}
			value, ok := result.(string)
			if !ok {
				continue
			}
			if value = strings.TrimSpace(value); value != "" {
				contact[field] = value
			}
		}
	}
	if len(contact) == 0 {
		return nil
	}
	return contact
}

// websiteSnapshot renders the run's JSON-LD harvest as the website data
// snapshot: the distilled contact fields plus the raw entities.
func websiteSnapshot(blocks []json.RawMessage) json.RawMessage {
	if len(blocks) == 0 {
		return nil
	}
	snapshot := struct {
		Contact  map[string]string `json:"contact,omitempty"`
		Entities []json.RawMessage `json:"entities"`
	}{
		Contact:  distillContact(blocks),
		Entities: blocks,
	}
	out, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	return out
}
