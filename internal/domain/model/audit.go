package model

import (
	"errors"
	"time"
)

// MatchStatus classifies how a field compares across the three sources.
type MatchStatus string

const (
	// MatchStatusMatch indicates all available sources agree.
	MatchStatusMatch MatchStatus = "match"
	// MatchStatusPartial indicates sources agree in substance but differ in form.
	MatchStatusPartial MatchStatus = "partial_match"
	// MatchStatusMismatch indicates at least two sources disagree.
	MatchStatusMismatch MatchStatus = "mismatch"
	// MatchStatusMissing indicates one or more sources carry no value.
	MatchStatusMissing MatchStatus = "missing_data"
)

// Valid returns true if the MatchStatus is a known classification.
func (m MatchStatus) Valid() bool {
	switch m {
	case MatchStatusMatch, MatchStatusPartial, MatchStatusMismatch, MatchStatusMissing:
		return true
	}
	return false
}

// Severity grades a discrepancy for notification content. It is derived from
// the field score and never stored redundantly.
type Severity string

const (
	// SeverityHigh flags a field score below 50.
	SeverityHigh Severity = "high"
	// SeverityMedium flags a field score from 50 up to but excluding 75.
	SeverityMedium Severity = "medium"
	// SeverityLow flags a field score of 75 or above.
	SeverityLow Severity = "low"
)

// SeverityForScore maps a field score to its severity grade.
func SeverityForScore(fieldScore float64) Severity {
	switch {
	case fieldScore < 50:
		return SeverityHigh
	case fieldScore < 75:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AuditRecordStatus distinguishes completed audit runs from failed ones.
type AuditRecordStatus string

const (
	// AuditRecordCompleted indicates the comparator produced a full result.
	AuditRecordCompleted AuditRecordStatus = "completed"
	// AuditRecordFailed indicates the comparator errored; score is 0.
	AuditRecordFailed AuditRecordStatus = "failed"
)

// ErrAuditRecordNotFound is returned when an audit record lookup misses.
var ErrAuditRecordNotFound = errors.New("audit record not found")

// SourceValues holds the raw and normalized value a single source reported
// for one field.
type SourceValues struct {
	Raw        *string `json:"raw"`
	Normalized *string `json:"normalized"`
}

// FieldComparison is the comparator's verdict for one canonical field.
type FieldComparison struct {
	Field      string       `json:"field"`
	Master     SourceValues `json:"master"`
	Website    SourceValues `json:"website"`
	Maps       SourceValues `json:"maps"`
	Status     MatchStatus  `json:"status"`
	Confidence float64      `json:"confidence"`
	Note       string       `json:"note,omitempty"`
	Score      float64      `json:"score"`
}

// Severity derives the notification grade for this comparison.
func (f FieldComparison) Severity() Severity {
	return SeverityForScore(f.Score)
}

// Discrepancy is the notification-facing view of a non-matching field.
type Discrepancy struct {
	Field          string   `json:"field"`
	MasterValue    *string  `json:"master_value"`
	WebsiteValue   *string  `json:"website_value"`
	MapsValue      *string  `json:"maps_value"`
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// AuditRecord is the immutable per-run snapshot of a comparator result.
// Created exactly once per completed or failed audit job, never mutated.
type AuditRecord struct {
	ID           string            `json:"id"            db:"id"`
	POIID        string            `json:"poi_id"        db:"poi_id"`
	Status       AuditRecordStatus `json:"status"        db:"status"`
	OverallScore float64           `json:"overall_score" db:"overall_score"`
	Fields       []FieldComparison `json:"fields"        db:"fields"`
	Discrepancies []Discrepancy    `json:"discrepancies" db:"discrepancies"`
	Summary      string            `json:"summary"       db:"summary"`
	Recommendations []string       `json:"recommendations,omitempty" db:"recommendations"`
	ErrorMessage *string           `json:"error_message,omitempty" db:"error_message"`
	Duration     time.Duration     `json:"duration_ms"   db:"duration_ms"`
	CreatedAt    time.Time         `json:"created_at"    db:"created_at"`
}

// HasDiscrepancies reports whether any field failed to fully match.
func (r *AuditRecord) HasDiscrepancies() bool {
	return len(r.Discrepancies) > 0
}
