package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Stage payloads are explicit structs validated at the queue boundary.
// Success of stage N is the sole trigger for enqueuing stage N+1; each
// payload carries everything the next stage needs beyond what it reads from
// the store itself.

// CrawlPayload seeds a website crawl for one POI.
type CrawlPayload struct {
	POIID    string `json:"poi_id"`
	StartURL string `json:"start_url"`
	MaxDepth int    `json:"max_depth,omitempty"`
}

// Validate checks the payload at the queue boundary.
func (p *CrawlPayload) Validate() error {
	if p.POIID == "" {
		return errors.New("poi_id is required")
	}
	if p.MaxDepth < 0 {
		return errors.New("max_depth must be >= 0")
	}
	return nil
}

// EnrichPayload requests a places lookup for one POI.
type EnrichPayload struct {
	POIID string `json:"poi_id"`
	// CrawlPages counts pages the preceding crawl persisted; informational.
	CrawlPages int `json:"crawl_pages,omitempty"`
}

// Validate checks the payload at the queue boundary.
func (p *EnrichPayload) Validate() error {
	if p.POIID == "" {
		return errors.New("poi_id is required")
	}
	return nil
}

// AuditPayload requests a three-way comparison for one POI.
type AuditPayload struct {
	POIID string `json:"poi_id"`
}

// Validate checks the payload at the queue boundary.
func (p *AuditPayload) Validate() error {
	if p.POIID == "" {
		return errors.New("poi_id is required")
	}
	return nil
}

// NotifyPayload requests notification dispatch for one audit result.
type NotifyPayload struct {
	POIID         string `json:"poi_id"`
	AuditRecordID string `json:"audit_record_id"`
}

// Validate checks the payload at the queue boundary.
func (p *NotifyPayload) Validate() error {
	if p.POIID == "" {
		return errors.New("poi_id is required")
	}
	if p.AuditRecordID == "" {
		return errors.New("audit_record_id is required")
	}
	return nil
}

// DecodePayload unmarshals and validates raw job payload bytes into the typed
// payload for its stage. A payload that fails here is a permanent input
// error, not a retryable one.
func DecodePayload[T interface{ Validate() error }](raw json.RawMessage, into T) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := into.Validate(); err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	return nil
}
