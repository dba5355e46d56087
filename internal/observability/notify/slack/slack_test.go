package slack

import (
	"strings"
	"testing"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatFailureMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#audit-alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatFailureMessage(notify.JobFailurePayload{
		JobID:       "123",
		Queue:       "crawl",
		POIID:       "poi-1",
		POIName:     "Schloss Neuschwanstein",
		Error:       "boom",
		FailureKind: "transient",
		Attempts:    3,
		MaxAttempts: 3,
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#audit-alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{"Job failure alert", "123", "crawl", "poi-1", "Schloss Neuschwanstein", "boom", "transient", "3/3"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatFailureMessagePOILink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:   "https://hooks.slack.com/services/test",
		POIURLPrefix: "https://audit.example.com/pois",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatFailureMessage(notify.JobFailurePayload{
		POIID: "poi-123",
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	expected := "<https://audit.example.com/pois/poi-123|poi-123>"
	if !strings.Contains(text, expected) {
		t.Fatalf("expected poi link %q in text: %s", expected, text)
	}
}

func TestFormatFailureMessageEscapesPOIName(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatFailureMessage(notify.JobFailurePayload{
		POIID:   "poi-123",
		POIName: "Café & <Bar>",
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	if !strings.Contains(text, "Café &amp; &lt;Bar&gt;") {
		t.Fatalf("expected escaped poi name, got: %s", text)
	}
}

func TestFormatPOIValuePermutations(t *testing.T) {
	tcs := []struct {
		name   string
		poiID  string
		poi    string
		prefix string
		want   string
	}{
		{
			name:   "id with link",
			poiID:  "poi-1",
			prefix: "https://audit.example/pois",
			want:   "<https://audit.example/pois/poi-1|poi-1>",
		},
		{
			name:   "name only",
			poi:    "Bergbahn",
			prefix: "https://audit.example/pois",
			want:   "Bergbahn",
		},
		{
			name:   "id and name with link",
			poiID:  "poi-2",
			poi:    "Bergbahn",
			prefix: "https://audit.example/pois",
			want:   "<https://audit.example/pois/poi-2|Bergbahn> (poi-2)",
		},
		{
			name:   "id and name without link",
			poiID:  "poi-3",
			poi:    "Bergbahn",
			prefix: "not a url",
			want:   "Bergbahn (poi-3)",
		},
		{
			name:   "empty inputs",
			prefix: "https://audit.example/pois",
			want:   "",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{
				WebhookURL:   "https://hooks.slack.com/services/test",
				POIURLPrefix: tc.prefix,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := client.formatPOIValue(tc.poiID, tc.poi)
			if got != tc.want {
				t.Fatalf("formatPOIValue(%q,%q) = %q, want %q", tc.poiID, tc.poi, got, tc.want)
			}
		})
	}
}

func TestFormatBudgetMessage(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatBudgetMessage(notify.BudgetAlertPayload{
		Month:        "2026-08",
		SpentEUR:     123.456,
		ProjectedEUR: 310.9,
		BudgetEUR:    250,
		OccurredAt:   time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{"Budget projection alert", "2026-08", "123.46 EUR", "310.90 EUR", "250.00 EUR", "2026-08-29T10:00:00Z"},
	) {
		t.Fatalf("budget message missing fields: %s", text)
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
