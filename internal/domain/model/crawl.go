package model

import (
	"encoding/json"
	"time"
)

// PageOutcome classifies the terminal state of a single crawl step.
// Disallowed-by-robots and already-visited are normal outcomes, not errors.
type PageOutcome string

const (
	// PageFetched indicates the page was retrieved and recorded.
	PageFetched PageOutcome = "fetched"
	// PageSkippedRobots indicates a matching robots Disallow rule blocked the fetch.
	PageSkippedRobots PageOutcome = "skipped_robots"
	// PageError indicates the fetch failed (timeout, DNS, non-2xx/3xx).
	PageError PageOutcome = "error"
)

// CrawlPage records one visited URL within a crawl run. The raw body is
// bounded to a configured maximum before persistence.
type CrawlPage struct {
	ID          string      `json:"id"            db:"id"`
	POIID       string      `json:"poi_id"        db:"poi_id"`
	RunID       string      `json:"run_id"        db:"run_id"`
	URL         string      `json:"url"           db:"url"`
	Depth       int         `json:"depth"         db:"depth"`
	Outcome     PageOutcome `json:"outcome"       db:"outcome"`
	HTTPStatus  int         `json:"http_status"   db:"http_status"`
	ContentType string      `json:"content_type"  db:"content_type"`
	Body        []byte      `json:"-"             db:"body"`
	StructData  json.RawMessage `json:"struct_data,omitempty" db:"struct_data"`
	FetchError  *string     `json:"fetch_error,omitempty" db:"fetch_error"`
	FetchedAt   time.Time   `json:"fetched_at"    db:"fetched_at"`
}

// CrawlSummary is the website-derived snapshot the crawl stage writes back to
// the POI, aggregated from every fetched page's structured data.
type CrawlSummary struct {
	RunID        string          `json:"run_id"`
	StartURL     string          `json:"start_url"`
	PagesFetched int             `json:"pages_fetched"`
	PagesSkipped int             `json:"pages_skipped"`
	PageErrors   int             `json:"page_errors"`
	StructData   json.RawMessage `json:"struct_data,omitempty"`
	FinishedAt   time.Time       `json:"finished_at"`
}
