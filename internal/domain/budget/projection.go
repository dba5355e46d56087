// Package budget holds the pure month-end spend projection math used by the
// cost ledger. Projections are advisory: they gate scheduling decisions but
// never block a call on their own.
package budget

import (
	"time"
)

// Projection extrapolates month-end spend from spend so far this month.
type Projection struct {
	Spent          float64
	DailyAverage   float64
	ProjectedSpend float64
	PercentUsed    float64
	Ceiling        float64
	AlertTriggered bool
}

// Project computes the projection at the given instant. Elapsed days count
// the current partial day as a full one so a burst on day 1 still projects.
func Project(spent, ceiling float64, now time.Time) Projection {
	daysElapsed := now.Day()
	daysInMonth := daysIn(now)
	daysRemaining := daysInMonth - daysElapsed

	dailyAverage := 0.0
	if daysElapsed > 0 {
		dailyAverage = spent / float64(daysElapsed)
	}

	projected := spent + dailyAverage*float64(daysRemaining)

	percentUsed := 0.0
	if ceiling > 0 {
		percentUsed = projected / ceiling * 100
	}

	return Projection{
		Spent:          spent,
		DailyAverage:   dailyAverage,
		ProjectedSpend: projected,
		PercentUsed:    percentUsed,
		Ceiling:        ceiling,
		AlertTriggered: ceiling > 0 && projected > ceiling,
	}
}

func daysIn(t time.Time) int {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Day()
}

// MonthWindow returns the [start, end) bounds of the month containing t, for
// ledger aggregation queries.
func MonthWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}
