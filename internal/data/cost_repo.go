package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// CostRepo provides database operations for the append-only cost ledger.
// Entries are never updated or deleted; aggregation happens at read time.
type CostRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCostRepo creates a new CostRepo instance with the given database connection.
func NewCostRepo(db *sql.DB) *CostRepo {
	return &CostRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewCostRepoWithTimeProvider creates a CostRepo with a custom TimeProvider (useful for testing).
func NewCostRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *CostRepo {
	return &CostRepo{DB: db, timeProvider: timeProvider}
}

const costEntryColumns = `
  id,
  service,
  operation,
  units,
  unit_cost,
  total_cost,
  poi_id,
  created_at
`

// Append inserts one priced entry. The total is computed in SQL from units
// and unit cost so persisted totals never drift from the factors.
func (r *CostRepo) Append(ctx context.Context, entry *model.CostEntry) (*model.CostEntry, error) {
	if entry == nil {
		return nil, errors.New("cost entry is required")
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidCostEntry, err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO cost_entries (service, operation, units, unit_cost, total_cost, poi_id, created_at)
		VALUES ($1, $2, $3, $4, $3::numeric * $4::numeric, $5, $6)
		RETURNING `+costEntryColumns,
		entry.Service,
		entry.Operation,
		entry.Units,
		entry.UnitCost,
		entry.POIID,
		r.timeProvider.Now().UTC(),
	)

	created, err := scanCostEntry(row)
	if err != nil {
		return nil, fmt.Errorf("append cost entry: %w", err)
	}
	return created, nil
}

type costRowScanner interface {
	Scan(dest ...any) error
}

func scanCostEntry(scanner costRowScanner) (*model.CostEntry, error) {
	entry := &model.CostEntry{}
	var poiID sql.NullString
	err := scanner.Scan(
		&entry.ID,
		&entry.Service,
		&entry.Operation,
		&entry.Units,
		&entry.UnitCost,
		&entry.TotalCost,
		&poiID,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.POIID = cloneNullableString(poiID)
	return entry, nil
}

// SumWindow totals spend in [from, to).
func (r *CostRepo) SumWindow(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := r.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cost), 0)
		FROM cost_entries
		WHERE created_at >= $1 AND created_at < $2
	`, from.UTC(), to.UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cost window: %w", err)
	}
	return total, nil
}

// SumWindowByService totals spend in [from, to) grouped by service tag.
func (r *CostRepo) SumWindowByService(ctx context.Context, from, to time.Time) (map[model.ServiceTag]float64, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT service, COALESCE(SUM(total_cost), 0)
		FROM cost_entries
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY service
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("sum cost window by service: %w", err)
	}
	defer rows.Close()

	totals := make(map[model.ServiceTag]float64)
	for rows.Next() {
		var service model.ServiceTag
		var total float64
		if scanErr := rows.Scan(&service, &total); scanErr != nil {
			return nil, fmt.Errorf("scan service total: %w", scanErr)
		}
		totals[service] = total
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return totals, nil
}

// ListByPOI returns the most recent entries attributed to a POI.
func (r *CostRepo) ListByPOI(ctx context.Context, poiID string, limit int) ([]*model.CostEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+costEntryColumns+`
		FROM cost_entries
		WHERE poi_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, poiID, limit)
	if err != nil {
		return nil, fmt.Errorf("list cost entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.CostEntry
	for rows.Next() {
		entry, scanErr := scanCostEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan cost entry: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return entries, nil
}
