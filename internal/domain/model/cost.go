package model

import (
	"errors"
	"time"
)

// ServiceTag identifies which external collaborator a cost entry prices.
type ServiceTag string

const (
	// ServiceLLM tags comparator completion calls.
	ServiceLLM ServiceTag = "llm"
	// ServiceGeocode tags places/geocoding lookups.
	ServiceGeocode ServiceTag = "geocode"
	// ServiceCrawl tags crawl-compute work.
	ServiceCrawl ServiceTag = "crawl"
	// ServiceMail tags outbound mail submissions.
	ServiceMail ServiceTag = "mail"
)

// Valid returns true if the ServiceTag is a known external service.
func (t ServiceTag) Valid() bool {
	return t == ServiceLLM || t == ServiceGeocode || t == ServiceCrawl || t == ServiceMail
}

// ErrInvalidCostEntry is returned when a cost entry fails validation.
var ErrInvalidCostEntry = errors.New("invalid cost entry")

// CostEntry prices one external call. Append-only; aggregated by the cost
// ledger and never updated.
type CostEntry struct {
	ID        string     `json:"id"                 db:"id"`
	Service   ServiceTag `json:"service"            db:"service"`
	Operation string     `json:"operation"          db:"operation"`
	Units     float64    `json:"units"              db:"units"`
	UnitCost  float64    `json:"unit_cost"          db:"unit_cost"`
	TotalCost float64    `json:"total_cost"         db:"total_cost"`
	POIID     *string    `json:"poi_id,omitempty"   db:"poi_id"`
	CreatedAt time.Time  `json:"created_at"         db:"created_at"`
}

// Validate checks the entry is well formed and its total is consistent.
func (e *CostEntry) Validate() error {
	if !e.Service.Valid() {
		return errors.New("invalid service tag")
	}
	if e.Operation == "" {
		return errors.New("operation is required")
	}
	if e.Units < 0 {
		return errors.New("units must be >= 0")
	}
	if e.UnitCost < 0 {
		return errors.New("unit cost must be >= 0")
	}
	return nil
}

// BudgetProjection is the advisory month-end spend estimate. It never
// throttles submission on its own; it is input to scheduling decisions.
type BudgetProjection struct {
	MonthlySpend   float64   `json:"monthly_spend"`
	ProjectedSpend float64   `json:"projected_spend"`
	MonthlyCeiling float64   `json:"monthly_ceiling"`
	PercentUsed    float64   `json:"percent_used"`
	AlertTriggered bool      `json:"alert_triggered"`
	AsOf           time.Time `json:"as_of"`
}
