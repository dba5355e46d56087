package model

import (
	"encoding/json"
	"errors"
	"time"
)

// AuditStatus tracks where a POI sits in its audit lifecycle.
type AuditStatus string

const (
	// AuditStatusPending indicates no audit has started for the POI.
	AuditStatusPending AuditStatus = "PENDING"
	// AuditStatusInProgress indicates a pipeline stage currently holds the POI.
	AuditStatusInProgress AuditStatus = "IN_PROGRESS"
	// AuditStatusCompleted indicates the last audit scored at or above the threshold.
	AuditStatusCompleted AuditStatus = "COMPLETED"
	// AuditStatusFailed indicates the last audit terminated with an error.
	AuditStatusFailed AuditStatus = "FAILED"
	// AuditStatusReviewRequired indicates the last audit scored below the threshold.
	AuditStatusReviewRequired AuditStatus = "REVIEW_REQUIRED"
)

// Valid returns true if the AuditStatus is one of the known lifecycle states.
func (s AuditStatus) Valid() bool {
	switch s {
	case AuditStatusPending, AuditStatusInProgress, AuditStatusCompleted,
		AuditStatusFailed, AuditStatusReviewRequired:
		return true
	}
	return false
}

// ErrPOINotFound is returned when a POI lookup misses.
var ErrPOINotFound = errors.New("poi not found")

// POI is a tourism point-of-interest under audit. Pipeline stages mutate the
// snapshots, status, and score; nothing in the pipeline ever deletes a POI.
type POI struct {
	ID           string  `json:"id"                      db:"id"`
	Name         string  `json:"name"                    db:"name"`
	Street       string  `json:"street"                  db:"street"`
	PostalCode   string  `json:"postal_code"             db:"postal_code"`
	City         string  `json:"city"                    db:"city"`
	Region       string  `json:"region"                  db:"region"`
	Category     string  `json:"category"                db:"category"`
	WebsiteURL   *string `json:"website_url,omitempty"   db:"website_url"`
	ContactEmail *string `json:"contact_email,omitempty" db:"contact_email"`
	Latitude     *float64 `json:"latitude,omitempty"     db:"latitude"`
	Longitude    *float64 `json:"longitude,omitempty"    db:"longitude"`

	// The three data snapshots reconciled by the comparator. Master comes
	// from the internal record, website from the crawl stage, maps from the
	// enrichment stage.
	MasterData  json.RawMessage `json:"master_data"            db:"master_data"`
	WebsiteData json.RawMessage `json:"website_data,omitempty" db:"website_data"`
	MapsData    json.RawMessage `json:"maps_data,omitempty"    db:"maps_data"`

	AuditStatus AuditStatus `json:"audit_status"           db:"audit_status"`
	LastScore   *float64    `json:"last_score,omitempty"   db:"last_score"`
	LastAuditAt *time.Time  `json:"last_audit_at,omitempty" db:"last_audit_at"`
	CreatedAt   time.Time   `json:"created_at"             db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"             db:"updated_at"`
}

// Address renders the single-line postal address used for place lookups.
func (p *POI) Address() string {
	addr := p.Street
	if p.PostalCode != "" || p.City != "" {
		if addr != "" {
			addr += ", "
		}
		addr += p.PostalCode
		if p.PostalCode != "" && p.City != "" {
			addr += " "
		}
		addr += p.City
	}
	return addr
}

// POIFilter narrows a POI set for scheduled bulk enqueues. Zero values mean
// "no restriction" for that dimension.
type POIFilter struct {
	Region       string   `json:"region,omitempty"`
	Category     string   `json:"category,omitempty"`
	ScoreCeiling *float64 `json:"score_ceiling,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// ExtractedValue is the per-field reconciliation result kept current for a
// POI. Keyed by POI+field, so re-running an audit overwrites rather than
// duplicates.
type ExtractedValue struct {
	ID          string    `json:"id"           db:"id"`
	POIID       string    `json:"poi_id"       db:"poi_id"`
	Field       string    `json:"field"        db:"field"`
	MasterValue *string   `json:"master_value,omitempty"  db:"master_value"`
	WebsiteValue *string  `json:"website_value,omitempty" db:"website_value"`
	MapsValue   *string   `json:"maps_value,omitempty"    db:"maps_value"`
	MatchStatus MatchStatus `json:"match_status" db:"match_status"`
	Confidence  float64   `json:"confidence"   db:"confidence"`
	FieldScore  float64   `json:"field_score"  db:"field_score"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}
