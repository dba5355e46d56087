package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// AuditRepo provides database operations for audit records and extracted
// values. Records are immutable once created; extracted values are upserted
// keyed by POI+field.
type AuditRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAuditRepo creates a new AuditRepo instance with the given database connection.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewAuditRepoWithTimeProvider creates an AuditRepo with a custom TimeProvider (useful for testing).
func NewAuditRepoWithTimeProvider(db *sql.DB, timeProvider TimeProvider) *AuditRepo {
	return &AuditRepo{DB: db, timeProvider: timeProvider}
}

const auditRecordColumns = `
  id,
  poi_id,
  status,
  overall_score,
  fields,
  discrepancies,
  summary,
  recommendations,
  error_message,
  duration_ms,
  created_at
`

// CreateRecord inserts one immutable audit record.
func (r *AuditRepo) CreateRecord(ctx context.Context, record *model.AuditRecord) (*model.AuditRecord, error) {
	if record == nil {
		return nil, errors.New("audit record is required")
	}
	if record.POIID == "" {
		return nil, errors.New("poi id is required")
	}

	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	discrepancies, err := json.Marshal(record.Discrepancies)
	if err != nil {
		return nil, fmt.Errorf("marshal discrepancies: %w", err)
	}
	recommendations, err := json.Marshal(record.Recommendations)
	if err != nil {
		return nil, fmt.Errorf("marshal recommendations: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO audit_records (poi_id, status, overall_score, fields, discrepancies, summary, recommendations, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+auditRecordColumns,
		record.POIID,
		record.Status,
		record.OverallScore,
		fields,
		discrepancies,
		record.Summary,
		recommendations,
		record.ErrorMessage,
		record.Duration.Milliseconds(),
	)
	created, err := scanAuditRecord(row)
	if err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}
	return created, nil
}

// GetRecordByID retrieves an audit record by its ID.
func (r *AuditRepo) GetRecordByID(ctx context.Context, id string) (*model.AuditRecord, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+auditRecordColumns+` FROM audit_records WHERE id = $1`, id)
	record, err := scanAuditRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrAuditRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit record: %w", err)
	}
	return record, nil
}

// ListRecordsByPOI returns a POI's audit history, most recent first.
func (r *AuditRepo) ListRecordsByPOI(ctx context.Context, poiID string, limit int) ([]*model.AuditRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+auditRecordColumns+`
		FROM audit_records
		WHERE poi_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, poiID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []*model.AuditRecord
	for rows.Next() {
		record, scanErr := scanAuditRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan audit record: %w", scanErr)
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return records, nil
}

type auditRowScanner interface {
	Scan(dest ...any) error
}

func scanAuditRecord(scanner auditRowScanner) (*model.AuditRecord, error) {
	record := &model.AuditRecord{}
	var fields, discrepancies, recommendations []byte
	var errorMessage sql.NullString
	var durationMS int64

	err := scanner.Scan(
		&record.ID,
		&record.POIID,
		&record.Status,
		&record.OverallScore,
		&fields,
		&discrepancies,
		&record.Summary,
		&recommendations,
		&errorMessage,
		&durationMS,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		if unmarshalErr := json.Unmarshal(fields, &record.Fields); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", unmarshalErr)
		}
	}
	if len(discrepancies) > 0 {
		if unmarshalErr := json.Unmarshal(discrepancies, &record.Discrepancies); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal discrepancies: %w", unmarshalErr)
		}
	}
	if len(recommendations) > 0 {
		if unmarshalErr := json.Unmarshal(recommendations, &record.Recommendations); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal recommendations: %w", unmarshalErr)
		}
	}
	record.ErrorMessage = cloneNullableString(errorMessage)
	record.Duration = time.Duration(durationMS) * time.Millisecond
	return record, nil
}

// UpsertExtractedValue writes the current per-field reconciliation result.
// The (poi_id, field) unique constraint makes audit re-runs overwrite.
func (r *AuditRepo) UpsertExtractedValue(ctx context.Context, value *model.ExtractedValue) error {
	if value == nil {
		return errors.New("extracted value is required")
	}
	if value.POIID == "" || value.Field == "" {
		return errors.New("poi id and field are required")
	}
	if !value.MatchStatus.Valid() {
		return fmt.Errorf("invalid match status: %s", value.MatchStatus)
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO extracted_values (poi_id, field, master_value, website_value, maps_value, match_status, confidence, field_score, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (poi_id, field) DO UPDATE
		SET master_value = EXCLUDED.master_value,
		    website_value = EXCLUDED.website_value,
		    maps_value = EXCLUDED.maps_value,
		    match_status = EXCLUDED.match_status,
		    confidence = EXCLUDED.confidence,
		    field_score = EXCLUDED.field_score,
		    updated_at = EXCLUDED.updated_at
	`,
		value.POIID,
		value.Field,
		value.MasterValue,
		value.WebsiteValue,
		value.MapsValue,
		value.MatchStatus,
		value.Confidence,
		value.FieldScore,
		r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert extracted value: %w", err)
	}
	return nil
}

// ListExtractedValues returns the current reconciliation state for a POI.
func (r *AuditRepo) ListExtractedValues(ctx context.Context, poiID string) ([]*model.ExtractedValue, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, poi_id, field, master_value, website_value, maps_value, match_status, confidence, field_score, updated_at
		FROM extracted_values
		WHERE poi_id = $1
		ORDER BY field ASC
	`, poiID)
	if err != nil {
		return nil, fmt.Errorf("list extracted values: %w", err)
	}
	defer rows.Close()

	var values []*model.ExtractedValue
	for rows.Next() {
		value := &model.ExtractedValue{}
		var master, website, maps sql.NullString
		if scanErr := rows.Scan(
			&value.ID,
			&value.POIID,
			&value.Field,
			&master,
			&website,
			&maps,
			&value.MatchStatus,
			&value.Confidence,
			&value.FieldScore,
			&value.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan extracted value: %w", scanErr)
		}
		value.MasterValue = cloneNullableString(master)
		value.WebsiteValue = cloneNullableString(website)
		value.MapsValue = cloneNullableString(maps)
		values = append(values, value)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return values, nil
}
