package crawler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistillContact_ReadsNestedAddressFields(t *testing.T) {
	blocks := []json.RawMessage{
		json.RawMessage(`{
			"@type": "LocalBusiness",
			"name": "Gasthof Alpenblick",
			"telephone": "+49 8386 654321",
			"address": {
				"streetAddress": "Dorfstraße 12",
				"postalCode": "87534",
				"addressLocality": "Oberstaufen"
			}
		}`),
	}

	contact := distillContact(blocks)

	assert.Equal(t, "Gasthof Alpenblick", contact["name"])
	assert.Equal(t, "+49 8386 654321", contact["phone"])
	assert.Equal(t, "Dorfstraße 12", contact["street"])
	assert.Equal(t, "87534", contact["postal_code"])
	assert.Equal(t, "Oberstaufen", contact["city"])
}

func TestDistillContact_FirstEntityWinsPerField(t *testing.T) {
	blocks := []json.RawMessage{
		json.RawMessage(`{"@type":"WebSite","name":"Alpenblick Online"}`),
		json.RawMessage(`{"@type":"Restaurant","name":"Gasthof Alpenblick","telephone":"+49 8386 654321"}`),
	}

	contact := distillContact(blocks)

	assert.Equal(t, "Alpenblick Online", contact["name"])
	assert.Equal(t, "+49 8386 654321", contact["phone"])
}

func TestDistillContact_SkipsNonStringValues(t *testing.T) {
	blocks := []json.RawMessage{
		json.RawMessage(`{"name": {"@value": "structured"}, "telephone": 12345}`),
		json.RawMessage(`{"telephone": "  "}`),
	}

	assert.Nil(t, distillContact(blocks))
}

func TestWebsiteSnapshot(t *testing.T) {
	assert.Nil(t, websiteSnapshot(nil))

	snapshot := websiteSnapshot([]json.RawMessage{
		json.RawMessage(`{"@type":"Museum","name":"Heimatmuseum"}`),
	})
	assert.JSONEq(t, `{
		"contact": {"name": "Heimatmuseum"},
		"entities": [{"@type":"Museum","name":"Heimatmuseum"}]
	}`, string(snapshot))
}
