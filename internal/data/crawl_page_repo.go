package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// CrawlPageRepo provides database operations for persisted crawl pages.
// Pages are written once per crawl run and only read back for enrichment
// and audit; old runs are pruned in batches.
type CrawlPageRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCrawlPageRepo creates a new CrawlPageRepo instance with the given database connection.
func NewCrawlPageRepo(db *sql.DB) *CrawlPageRepo {
	return &CrawlPageRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewCrawlPageRepoWithTimeProvider creates a CrawlPageRepo with a custom TimeProvider (useful for testing).
func NewCrawlPageRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *CrawlPageRepo {
	return &CrawlPageRepo{DB: db, timeProvider: timeProvider}
}

const crawlPageColumns = `
  id,
  poi_id,
  run_id,
  url,
  depth,
  outcome,
  http_status,
  content_type,
  body,
  struct_data,
  fetch_error,
  fetched_at
`

// Create persists one visited page.
func (r *CrawlPageRepo) Create(ctx context.Context, page *model.CrawlPage) (*model.CrawlPage, error) {
	if page == nil {
		return nil, errors.New("crawl page is required")
	}
	if page.POIID == "" || page.RunID == "" || page.URL == "" {
		return nil, errors.New("poi id, run id and url are required")
	}

	fetchedAt := page.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = r.timeProvider.Now()
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO crawl_pages (poi_id, run_id, url, depth, outcome, http_status, content_type, body, struct_data, fetch_error, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+crawlPageColumns,
		page.POIID,
		page.RunID,
		page.URL,
		page.Depth,
		page.Outcome,
		page.HTTPStatus,
		page.ContentType,
		page.Body,
		page.StructData,
		page.FetchError,
		fetchedAt.UTC(),
	)
	created, err := scanCrawlPage(row)
	if err != nil {
		return nil, fmt.Errorf("insert crawl page: %w", err)
	}
	return created, nil
}

// ListByRun returns all pages of a crawl run in visit order.
func (r *CrawlPageRepo) ListByRun(ctx context.Context, runID string) ([]*model.CrawlPage, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+crawlPageColumns+`
		FROM crawl_pages
		WHERE run_id = $1
		ORDER BY fetched_at ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list crawl pages: %w", err)
	}
	defer rows.Close()

	var pages []*model.CrawlPage
	for rows.Next() {
		page, scanErr := scanCrawlPage(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan crawl page: %w", scanErr)
		}
		pages = append(pages, page)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return pages, nil
}

// DeleteOlderThan prunes pages fetched before the cutoff, in batches to keep
// lock times short.
func (r *CrawlPageRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, ErrBatchSizeRequired
	}

	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM crawl_pages
		WHERE id IN (
			SELECT id FROM crawl_pages
			WHERE fetched_at < $1
			ORDER BY fetched_at
			LIMIT $2
		)
	`, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old crawl pages: %w", err)
	}
	return res.RowsAffected()
}

type crawlPageRowScanner interface {
	Scan(dest ...any) error
}

func scanCrawlPage(scanner crawlPageRowScanner) (*model.CrawlPage, error) {
	page := &model.CrawlPage{}
	var contentType, fetchError sql.NullString
	var httpStatus sql.NullInt64

	err := scanner.Scan(
		&page.ID,
		&page.POIID,
		&page.RunID,
		&page.URL,
		&page.Depth,
		&page.Outcome,
		&httpStatus,
		&contentType,
		&page.Body,
		&page.StructData,
		&fetchError,
		&page.FetchedAt,
	)
	if err != nil {
		return nil, err
	}
	page.HTTPStatus = int(httpStatus.Int64)
	if contentType.Valid {
		page.ContentType = contentType.String
	}
	page.FetchError = cloneNullableString(fetchError)
	return page, nil
}
