package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// JobFailurePayload captures the canonical data we emit when a job exhausts
// its retries and lands in the failed-jobs table.
type JobFailurePayload struct {
	JobID       string
	Queue       string
	POIID       string
	POIName     string
	Error       string
	FailureKind string
	Attempts    int
	MaxAttempts int
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// BudgetAlertPayload describes a projected monthly cost overrun. Alerts are
// advisory only; the pipeline keeps running after one fires.
type BudgetAlertPayload struct {
	Month        string
	SpentEUR     float64
	ProjectedEUR float64
	BudgetEUR    float64
	Severity     string
	OccurredAt   time.Time
}

// Sink describes a destination capable of consuming job failure notifications.
type Sink interface {
	SendJobFailure(ctx context.Context, payload JobFailurePayload) error
}

// BudgetSink is implemented by sinks that also accept budget overrun alerts.
// Sinks without the method simply never see them.
type BudgetSink interface {
	SendBudgetAlert(ctx context.Context, payload BudgetAlertPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobFailurePayload) error

// SendJobFailure implements the Sink interface.
func (f SinkFunc) SendJobFailure(ctx context.Context, payload JobFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
