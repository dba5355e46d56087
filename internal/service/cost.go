package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/budget"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/notify"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service/failurenotifier"
)

// CostServiceOptions groups dependencies for CostService.
type CostServiceOptions struct {
	Repo           core.CostRepository      // Required: cost ledger repository
	MonthlyCeiling float64                  // Optional: EUR ceiling; 0 disables alerting
	Logger         *slog.Logger             // Optional: structured logger
	Notifier       *failurenotifier.Service // Optional: budget alert fan-out
	Now            func() time.Time         // Optional: clock override for tests
}

// CostService appends ledger entries and computes the advisory month-end
// projection. The projection never blocks a call; at most it raises one
// alert per month.
type CostService struct {
	repo     core.CostRepository
	ceiling  float64
	logger   *slog.Logger
	notifier *failurenotifier.Service
	now      func() time.Time

	mu               sync.Mutex
	lastAlertedMonth string
}

// NewCostService constructs a new CostService.
func NewCostService(opts CostServiceOptions) (*CostService, error) {
	if opts.Repo == nil {
		return nil, errors.New("CostRepository is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "cost_service")
	}

	return &CostService{
		repo:     opts.Repo,
		ceiling:  opts.MonthlyCeiling,
		logger:   logger,
		notifier: opts.Notifier,
		now:      now,
	}, nil
}

// Record appends a cost entry to the ledger.
func (s *CostService) Record(ctx context.Context, entry *model.CostEntry) (*model.CostEntry, error) {
	recorded, err := s.repo.Append(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("record cost entry: %w", err)
	}

	metrics.AddCost(string(recorded.Service), recorded.TotalCost)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "cost entry recorded",
			"service", recorded.Service,
			"operation", recorded.Operation,
			"total_cost", recorded.TotalCost,
		)
	}

	return recorded, nil
}

// MonthlyProjection extrapolates month-end spend from the ledger.
func (s *CostService) MonthlyProjection(ctx context.Context) (*model.BudgetProjection, error) {
	asOf := s.now()
	from, to := budget.MonthWindow(asOf)

	spent, err := s.repo.SumWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum monthly spend: %w", err)
	}

	p := budget.Project(spent, s.ceiling, asOf)
	return &model.BudgetProjection{
		MonthlySpend:   p.Spent,
		ProjectedSpend: p.ProjectedSpend,
		MonthlyCeiling: p.Ceiling,
		PercentUsed:    p.PercentUsed,
		AlertTriggered: p.AlertTriggered,
		AsOf:           asOf,
	}, nil
}

// MonthlySpendByService breaks the current month's spend down per service.
func (s *CostService) MonthlySpendByService(ctx context.Context) (map[model.ServiceTag]float64, error) {
	from, to := budget.MonthWindow(s.now())
	byService, err := s.repo.SumWindowByService(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum monthly spend by service: %w", err)
	}
	return byService, nil
}

// ListByPOI returns the ledger entries attributed to a POI.
func (s *CostService) ListByPOI(ctx context.Context, poiID string, limit int) ([]*model.CostEntry, error) {
	if poiID == "" {
		return nil, errors.New("poi id is required")
	}
	entries, err := s.repo.ListByPOI(ctx, poiID, limit)
	if err != nil {
		return nil, fmt.Errorf("list cost entries for poi %s: %w", poiID, err)
	}
	return entries, nil
}

// CheckBudget evaluates the projection and raises at most one alert per
// calendar month when the projected spend exceeds the ceiling.
func (s *CostService) CheckBudget(ctx context.Context) (*model.BudgetProjection, error) {
	projection, err := s.MonthlyProjection(ctx)
	if err != nil {
		return nil, err
	}
	if !projection.AlertTriggered {
		return projection, nil
	}

	month := projection.AsOf.Format("2006-01")

	s.mu.Lock()
	alreadyAlerted := s.lastAlertedMonth == month
	if !alreadyAlerted {
		s.lastAlertedMonth = month
	}
	s.mu.Unlock()

	if alreadyAlerted {
		return projection, nil
	}

	if s.logger != nil {
		s.logger.WarnContext(ctx, "projected monthly spend exceeds ceiling",
			"month", month,
			"spent", projection.MonthlySpend,
			"projected", projection.ProjectedSpend,
			"ceiling", projection.MonthlyCeiling,
		)
	}

	if s.notifier != nil {
		s.notifier.NotifyBudgetAlert(ctx, notify.BudgetAlertPayload{
			Month:        month,
			SpentEUR:     projection.MonthlySpend,
			ProjectedEUR: projection.ProjectedSpend,
			BudgetEUR:    projection.MonthlyCeiling,
			OccurredAt:   projection.AsOf,
		})
	}

	return projection, nil
}
