package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// POIRepo provides database operations for points of interest. The pipeline
// only mutates snapshots, status, and score; POIs are never deleted here.
type POIRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewPOIRepo creates a new POIRepo instance with the given database connection.
func NewPOIRepo(db *sql.DB) *POIRepo {
	return &POIRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewPOIRepoWithTimeProvider creates a POIRepo with a custom TimeProvider (useful for testing).
func NewPOIRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *POIRepo {
	return &POIRepo{DB: db, timeProvider: timeProvider}
}

const poiColumns = `
  id,
  name,
  street,
  postal_code,
  city,
  region,
  category,
  website_url,
  contact_email,
  latitude,
  longitude,
  master_data,
  website_data,
  maps_data,
  audit_status,
  last_score,
  last_audit_at,
  created_at,
  updated_at
`

type poiRowScanner interface {
	Scan(dest ...any) error
}

func scanPOI(scanner poiRowScanner) (*model.POI, error) {
	poi := &model.POI{}
	var websiteURL, contactEmail sql.NullString
	var latitude, longitude, lastScore sql.NullFloat64
	var websiteData, mapsData []byte
	var lastAuditAt sql.NullTime

	err := scanner.Scan(
		&poi.ID,
		&poi.Name,
		&poi.Street,
		&poi.PostalCode,
		&poi.City,
		&poi.Region,
		&poi.Category,
		&websiteURL,
		&contactEmail,
		&latitude,
		&longitude,
		&poi.MasterData,
		&websiteData,
		&mapsData,
		&poi.AuditStatus,
		&lastScore,
		&lastAuditAt,
		&poi.CreatedAt,
		&poi.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	poi.WebsiteURL = cloneNullableString(websiteURL)
	poi.ContactEmail = cloneNullableString(contactEmail)
	if latitude.Valid {
		poi.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		poi.Longitude = &longitude.Float64
	}
	if lastScore.Valid {
		poi.LastScore = &lastScore.Float64
	}
	if len(websiteData) > 0 {
		poi.WebsiteData = append(poi.WebsiteData, websiteData...)
	}
	if len(mapsData) > 0 {
		poi.MapsData = append(poi.MapsData, mapsData...)
	}
	poi.LastAuditAt = cloneNullableTime(lastAuditAt)
	return poi, nil
}

// Create inserts a POI. Master data comes from the tourism board import;
// the pipeline never creates POIs itself, only the admin tooling does.
func (r *POIRepo) Create(ctx context.Context, poi *model.POI) (*model.POI, error) {
	if poi == nil {
		return nil, errors.New("poi is required")
	}
	if poi.Name == "" {
		return nil, errors.New("poi name is required")
	}
	status := poi.AuditStatus
	if status == "" {
		status = model.AuditStatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid audit status: %s", status)
	}
	masterData := poi.MasterData
	if len(masterData) == 0 {
		masterData = []byte(`{}`)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO pois (name, street, postal_code, city, region, category, website_url, contact_email, latitude, longitude, master_data, audit_status, last_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+poiColumns,
		poi.Name,
		poi.Street,
		poi.PostalCode,
		poi.City,
		poi.Region,
		poi.Category,
		poi.WebsiteURL,
		poi.ContactEmail,
		poi.Latitude,
		poi.Longitude,
		masterData,
		status,
		poi.LastScore,
	)
	created, err := scanPOI(row)
	if err != nil {
		return nil, fmt.Errorf("insert poi: %w", err)
	}
	return created, nil
}

// GetByID retrieves a POI by its ID.
func (r *POIRepo) GetByID(ctx context.Context, id string) (*model.POI, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+poiColumns+` FROM pois WHERE id = $1`, id)
	poi, err := scanPOI(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrPOINotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get poi: %w", err)
	}
	return poi, nil
}

// ListByFilter returns POIs matching the schedule filter dimensions. Zero
// filter values place no restriction.
func (r *POIRepo) ListByFilter(ctx context.Context, filter model.POIFilter) ([]*model.POI, error) {
	var conditions []string
	var args []any

	if filter.Region != "" {
		args = append(args, filter.Region)
		conditions = append(conditions, fmt.Sprintf("region = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.ScoreCeiling != nil {
		args = append(args, *filter.ScoreCeiling)
		conditions = append(conditions, fmt.Sprintf("(last_score IS NULL OR last_score <= $%d)", len(args)))
	}

	query := `SELECT ` + poiColumns + ` FROM pois`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_audit_at ASC NULLS FIRST, created_at ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pois: %w", err)
	}
	defer rows.Close()

	var pois []*model.POI
	for rows.Next() {
		poi, scanErr := scanPOI(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan poi: %w", scanErr)
		}
		pois = append(pois, poi)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return pois, nil
}

// UpdateAuditStatus moves the POI to a new lifecycle state.
func (r *POIRepo) UpdateAuditStatus(ctx context.Context, id string, status model.AuditStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid audit status: %s", status)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE pois SET audit_status = $2, updated_at = $3 WHERE id = $1
	`, id, status, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update audit status: %w", err)
	}
	return requireRowAffected(res, model.ErrPOINotFound)
}

// UpdateWebsiteData stores the crawl-derived snapshot.
func (r *POIRepo) UpdateWebsiteData(ctx context.Context, id string, data []byte) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE pois SET website_data = $2, updated_at = $3 WHERE id = $1
	`, id, data, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update website data: %w", err)
	}
	return requireRowAffected(res, model.ErrPOINotFound)
}

// UpdateMapsData stores the enrichment-derived snapshot.
func (r *POIRepo) UpdateMapsData(ctx context.Context, id string, data []byte) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE pois SET maps_data = $2, updated_at = $3 WHERE id = $1
	`, id, data, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("update maps data: %w", err)
	}
	return requireRowAffected(res, model.ErrPOINotFound)
}

// RecordAuditOutcome writes the audit's POI-side effects in one statement.
func (r *POIRepo) RecordAuditOutcome(ctx context.Context, params core.RecordAuditOutcomeParams) error {
	if !params.Status.Valid() {
		return fmt.Errorf("invalid audit status: %s", params.Status)
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE pois
		SET audit_status = $2,
		    last_score = COALESCE($3, last_score),
		    last_audit_at = $4,
		    updated_at = $5
		WHERE id = $1
	`, params.POIID, params.Status, params.Score, params.AuditAt.UTC(), r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("record audit outcome: %w", err)
	}
	return requireRowAffected(res, model.ErrPOINotFound)
}

func requireRowAffected(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}
