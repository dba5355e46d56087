// Package testutil provides testing utilities and helpers for the POI audit pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type:       model.JobTypeCrawl,
			Priority:   50,
			Payload:    json.RawMessage(`{"poi_id": "00000000-0000-0000-0000-000000000001", "start_url": "https://example.com"}`),
			MaxRetries: 3,
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithPayload sets the job payload.
func (b *JobRequestBuilder) WithPayload(payload json.RawMessage) *JobRequestBuilder {
	b.req.Payload = payload
	return b
}

// WithPayloadString sets the job payload from a string.
func (b *JobRequestBuilder) WithPayloadString(payload string) *JobRequestBuilder {
	b.req.Payload = json.RawMessage(payload)
	return b
}

// WithMetadataString sets the job metadata from a string.
func (b *JobRequestBuilder) WithMetadataString(metadata string) *JobRequestBuilder {
	b.req.Metadata = json.RawMessage(metadata)
	return b
}

// WithPOI sets the POI reference and derives the job key from it.
func (b *JobRequestBuilder) WithPOI(poiID string) *JobRequestBuilder {
	b.req.POIID = &poiID
	key := model.JobKey(b.req.Type, poiID)
	b.req.JobKey = &key
	return b
}

// WithJobKey sets an explicit job key.
func (b *JobRequestBuilder) WithJobKey(key string) *JobRequestBuilder {
	b.req.JobKey = &key
	return b
}

// WithRequestedBy sets the requesting principal.
func (b *JobRequestBuilder) WithRequestedBy(who string) *JobRequestBuilder {
	b.req.RequestedBy = &who
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// WithMaxRetries sets the maximum number of attempts.
func (b *JobRequestBuilder) WithMaxRetries(maxRetries int) *JobRequestBuilder {
	b.req.MaxRetries = maxRetries
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// Common test job request presets.

// CrawlJobRequest creates a crawl job request for the given POI.
func CrawlJobRequest(poiID string) *model.CreateJobRequest {
	payload := fmt.Sprintf(`{"poi_id": %q, "start_url": "https://example.com", "max_depth": 2}`, poiID)
	return NewJobRequest().
		WithType(model.JobTypeCrawl).
		WithPayloadString(payload).
		WithPOI(poiID).
		Build()
}

// EnrichJobRequest creates an enrichment job request for the given POI.
func EnrichJobRequest(poiID string) *model.CreateJobRequest {
	payload := fmt.Sprintf(`{"poi_id": %q}`, poiID)
	return NewJobRequest().
		WithType(model.JobTypeEnrich).
		WithPayloadString(payload).
		WithPOI(poiID).
		Build()
}

// AuditJobRequest creates an audit job request for the given POI.
func AuditJobRequest(poiID string) *model.CreateJobRequest {
	payload := fmt.Sprintf(`{"poi_id": %q}`, poiID)
	return NewJobRequest().
		WithType(model.JobTypeAudit).
		WithPayloadString(payload).
		WithPOI(poiID).
		Build()
}

// ScheduledJobRequest creates a job request scheduled for the future.
func ScheduledJobRequest(scheduledAt time.Time) *model.CreateJobRequest {
	return NewJobRequest().
		WithScheduledAt(scheduledAt).
		Build()
}

// RetryableJobRequest creates a job request with custom retry settings.
func RetryableJobRequest(maxRetries int) *model.CreateJobRequest {
	return NewJobRequest().
		WithMaxRetries(maxRetries).
		Build()
}

// POIBuilder provides a fluent interface for building POI rows for testing.
type POIBuilder struct {
	poi *model.POI
}

// NewPOI creates a POIBuilder with a plausible German tourism POI.
func NewPOI() *POIBuilder {
	return &POIBuilder{
		poi: &model.POI{
			Name:        "Schlossmuseum",
			Street:      "Schlossplatz 1",
			PostalCode:  "99423",
			City:        "Weimar",
			Region:      "Thüringen",
			Category:    "museum",
			MasterData:  json.RawMessage(`{"name": "Schlossmuseum", "phone": "+49 3643 1234"}`),
			AuditStatus: model.AuditStatusPending,
		},
	}
}

// WithName sets the POI name.
func (b *POIBuilder) WithName(name string) *POIBuilder {
	b.poi.Name = name
	return b
}

// WithRegion sets the POI region.
func (b *POIBuilder) WithRegion(region string) *POIBuilder {
	b.poi.Region = region
	return b
}

// WithCategory sets the POI category.
func (b *POIBuilder) WithCategory(category string) *POIBuilder {
	b.poi.Category = category
	return b
}

// WithWebsite sets the POI website URL.
func (b *POIBuilder) WithWebsite(url string) *POIBuilder {
	b.poi.WebsiteURL = &url
	return b
}

// WithContactEmail sets the POI contact email.
func (b *POIBuilder) WithContactEmail(email string) *POIBuilder {
	b.poi.ContactEmail = &email
	return b
}

// WithScore sets the last audit score.
func (b *POIBuilder) WithScore(score float64) *POIBuilder {
	b.poi.LastScore = &score
	return b
}

// WithAuditStatus sets the lifecycle state.
func (b *POIBuilder) WithAuditStatus(status model.AuditStatus) *POIBuilder {
	b.poi.AuditStatus = status
	return b
}

// Build returns the constructed POI.
func (b *POIBuilder) Build() *model.POI {
	return b.poi
}

// CompletedAuditRecord builds an audit record with one clean field comparison.
func CompletedAuditRecord(poiID string, score float64) *model.AuditRecord {
	return &model.AuditRecord{
		POIID:        poiID,
		Status:       model.AuditRecordCompleted,
		OverallScore: score,
		Fields: []model.FieldComparison{
			{
				Field:      "name",
				Master:     model.SourceValues{Raw: StringPtr("Schlossmuseum")},
				Website:    model.SourceValues{Raw: StringPtr("Schlossmuseum")},
				Maps:       model.SourceValues{Raw: StringPtr("Schlossmuseum")},
				Status:     model.MatchStatusMatch,
				Confidence: 0.98,
				Score:      score,
			},
		},
		Summary:  "master data matches website and maps",
		Duration: 1200 * time.Millisecond,
	}
}
