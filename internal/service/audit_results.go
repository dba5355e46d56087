package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
)

// DefaultScoreThreshold is the overall score at or above which a POI audit
// counts as clean.
const DefaultScoreThreshold = 80.0

// AuditResultServiceOptions groups dependencies for AuditResultService.
type AuditResultServiceOptions struct {
	Records        core.AuditRepository // Required: audit record repository
	POIs           core.POIRepository   // Required: POI repository
	ScoreThreshold float64              // Optional: defaults to DefaultScoreThreshold
	Logger         *slog.Logger         // Optional: structured logger
	Now            func() time.Time     // Optional: clock override for tests
}

// AuditResultService persists comparator outcomes: the immutable per-run
// AuditRecord, the per-field extracted values, and the POI's lifecycle
// status and score.
type AuditResultService struct {
	records   core.AuditRepository
	pois      core.POIRepository
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuditResultService constructs a new AuditResultService.
func NewAuditResultService(opts AuditResultServiceOptions) (*AuditResultService, error) {
	if opts.Records == nil {
		return nil, errors.New("AuditRepository is required")
	}
	if opts.POIs == nil {
		return nil, errors.New("POIRepository is required")
	}

	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "audit_result_service")
	}

	return &AuditResultService{
		records:   opts.Records,
		pois:      opts.POIs,
		threshold: threshold,
		logger:    logger,
		now:       now,
	}, nil
}

// ScoreThreshold returns the configured clean-audit threshold.
func (s *AuditResultService) ScoreThreshold() float64 {
	return s.threshold
}

// ApplyCompleted persists a completed comparator result: the audit record,
// the extracted values per field, and the POI status derived from the
// overall score against the threshold.
func (s *AuditResultService) ApplyCompleted(
	ctx context.Context,
	record *model.AuditRecord,
) (*model.AuditRecord, error) {
	if record == nil || record.POIID == "" {
		return nil, errors.New("audit record with poi id is required")
	}
	record.Status = model.AuditRecordCompleted

	created, err := s.records.CreateRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("persist audit record: %w", err)
	}

	for _, field := range created.Fields {
		value := extractedValueFromComparison(created.POIID, field)
		if err := s.records.UpsertExtractedValue(ctx, value); err != nil {
			return nil, fmt.Errorf("upsert extracted value %q: %w", field.Field, err)
		}
	}

	status := model.AuditStatusReviewRequired
	if created.OverallScore >= s.threshold {
		status = model.AuditStatusCompleted
	}

	score := created.OverallScore
	if err := s.pois.RecordAuditOutcome(ctx, core.RecordAuditOutcomeParams{
		POIID:   created.POIID,
		Status:  status,
		Score:   &score,
		AuditAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("record audit outcome for poi %s: %w", created.POIID, err)
	}

	metrics.ObserveAuditScore(created.OverallScore)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "audit result applied",
			"poi_id", created.POIID,
			"score", created.OverallScore,
			"status", status,
			"discrepancies", len(created.Discrepancies),
		)
	}

	return created, nil
}

// ApplyFailed persists a comparator failure: a FAILED record with score 0 and
// the POI moved to FAILED. The last known good score is left untouched.
func (s *AuditResultService) ApplyFailed(
	ctx context.Context,
	poiID, errMsg string,
	duration time.Duration,
) (*model.AuditRecord, error) {
	if poiID == "" {
		return nil, errors.New("poi id is required")
	}
	if errMsg == "" {
		return nil, errors.New("error message is required")
	}

	created, err := s.records.CreateRecord(ctx, &model.AuditRecord{
		POIID:        poiID,
		Status:       model.AuditRecordFailed,
		OverallScore: 0,
		ErrorMessage: &errMsg,
		Duration:     duration,
	})
	if err != nil {
		return nil, fmt.Errorf("persist failed audit record: %w", err)
	}

	if err := s.pois.RecordAuditOutcome(ctx, core.RecordAuditOutcomeParams{
		POIID:   poiID,
		Status:  model.AuditStatusFailed,
		AuditAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("record failed audit outcome for poi %s: %w", poiID, err)
	}

	if s.logger != nil {
		s.logger.WarnContext(ctx, "audit failed for poi",
			"poi_id", poiID,
			"error", errMsg,
		)
	}

	return created, nil
}

// Record returns a single audit record by id.
func (s *AuditResultService) Record(ctx context.Context, id string) (*model.AuditRecord, error) {
	if id == "" {
		return nil, errors.New("audit record id is required")
	}
	record, err := s.records.GetRecordByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get audit record %s: %w", id, err)
	}
	return record, nil
}

// History returns the most recent audit records for a POI.
func (s *AuditResultService) History(
	ctx context.Context,
	poiID string,
	limit int,
) ([]*model.AuditRecord, error) {
	if poiID == "" {
		return nil, errors.New("poi id is required")
	}
	records, err := s.records.ListRecordsByPOI(ctx, poiID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records for poi %s: %w", poiID, err)
	}
	return records, nil
}

// ExtractedValues returns the current per-field reconciliation state of a POI.
func (s *AuditResultService) ExtractedValues(
	ctx context.Context,
	poiID string,
) ([]*model.ExtractedValue, error) {
	if poiID == "" {
		return nil, errors.New("poi id is required")
	}
	values, err := s.records.ListExtractedValues(ctx, poiID)
	if err != nil {
		return nil, fmt.Errorf("list extracted values for poi %s: %w", poiID, err)
	}
	return values, nil
}

func extractedValueFromComparison(poiID string, f model.FieldComparison) *model.ExtractedValue {
	return &model.ExtractedValue{
		POIID:        poiID,
		Field:        f.Field,
		MasterValue:  f.Master.Normalized,
		WebsiteValue: f.Website.Normalized,
		MapsValue:    f.Maps.Normalized,
		MatchStatus:  f.Status,
		Confidence:   f.Confidence,
		FieldScore:   f.Score,
	}
}
