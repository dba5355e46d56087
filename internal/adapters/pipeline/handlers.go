package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/mail"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// handleCrawl fetches the POI's website, stores the structured snapshot, and
// chains the enrichment stage. A POI without a website skips straight to
// enrichment; its website snapshot stays empty.
func (r *Runner) handleCrawl(ctx context.Context, job *model.Job) error {
	var payload model.CrawlPayload
	if err := model.DecodePayload(job.Payload, &payload); err != nil {
		return obserrors.PermanentInput(err)
	}

	poi, err := r.poiByID(ctx, payload.POIID)
	if err != nil {
		return err
	}

	startURL := payload.StartURL
	if startURL == "" && poi.WebsiteURL != nil {
		startURL = *poi.WebsiteURL
	}

	crawledPages := 0
	if startURL == "" {
		r.logger.InfoContext(ctx, "poi has no website, skipping crawl", "poi_id", poi.ID)
	} else {
		summary, err := r.deps.Crawler.Run(ctx, poi.ID, startURL, payload.MaxDepth)
		if err != nil {
			return fmt.Errorf("crawl poi %s: %w", poi.ID, err)
		}
		crawledPages = summary.PagesFetched

		if len(summary.StructData) > 0 {
			if err := r.deps.POIs.UpdateWebsiteData(ctx, poi.ID, summary.StructData); err != nil {
				return fmt.Errorf("store website data for poi %s: %w", poi.ID, err)
			}
		}

		r.logger.InfoContext(ctx, "crawl finished",
			"poi_id", poi.ID,
			"run_id", summary.RunID,
			"pages_fetched", summary.PagesFetched,
			"pages_skipped", summary.PagesSkipped,
			"page_errors", summary.PageErrors,
		)
	}

	return r.enqueueNext(ctx, model.JobTypeEnrich, poi.ID, model.EnrichPayload{
		POIID:      poi.ID,
		CrawlPages: crawledPages,
	})
}

// handleEnrich resolves the POI against the places API and stores the maps
// snapshot. A lookup that finds nothing is not an error; the audit runs with
// partial data.
func (r *Runner) handleEnrich(ctx context.Context, job *model.Job) error {
	var payload model.EnrichPayload
	if err := model.DecodePayload(job.Payload, &payload); err != nil {
		return obserrors.PermanentInput(err)
	}

	poi, err := r.poiByID(ctx, payload.POIID)
	if err != nil {
		return err
	}

	res, err := r.deps.Places.Resolve(ctx, poi)
	if err != nil {
		return fmt.Errorf("resolve place for poi %s: %w", poi.ID, err)
	}

	if res.Resolved() {
		data, err := json.Marshal(res.Place)
		if err != nil {
			return fmt.Errorf("encode place data for poi %s: %w", poi.ID, err)
		}
		if err := r.deps.POIs.UpdateMapsData(ctx, poi.ID, data); err != nil {
			return fmt.Errorf("store maps data for poi %s: %w", poi.ID, err)
		}
	} else {
		r.logger.InfoContext(ctx, "place lookup yielded no result, auditing with partial data",
			"poi_id", poi.ID,
			"reason", res.Note,
		)
	}

	return r.enqueueNext(ctx, model.JobTypeAudit, poi.ID, model.AuditPayload{POIID: poi.ID})
}

// handleAudit runs the three-way comparison. A comparator failure leaves a
// failed audit record behind and still returns the error, so the job spends
// its retry budget; a later attempt can supersede the failed record.
func (r *Runner) handleAudit(ctx context.Context, job *model.Job) error {
	var payload model.AuditPayload
	if err := model.DecodePayload(job.Payload, &payload); err != nil {
		return obserrors.PermanentInput(err)
	}

	poi, err := r.poiByID(ctx, payload.POIID)
	if err != nil {
		return err
	}

	started := time.Now()
	record, err := r.deps.Auditor.Compare(ctx, poi)
	if err != nil {
		if _, applyErr := r.deps.Results.ApplyFailed(ctx, poi.ID, err.Error(), time.Since(started)); applyErr != nil {
			r.logger.ErrorContext(ctx, "failed to record audit failure",
				"poi_id", poi.ID,
				"error", applyErr,
			)
		}
		return fmt.Errorf("compare poi %s: %w", poi.ID, err)
	}

	applied, err := r.deps.Results.ApplyCompleted(ctx, record)
	if err != nil {
		return fmt.Errorf("apply audit result for poi %s: %w", poi.ID, err)
	}

	return r.enqueueNext(ctx, model.JobTypeNotify, poi.ID, model.NotifyPayload{
		POIID:         poi.ID,
		AuditRecordID: applied.ID,
	})
}

// handleNotify dispatches the discrepancy notification for one audit record.
// Clean audits, audits scoring at or above the notification threshold, and
// missing recipients are quiet successes.
func (r *Runner) handleNotify(ctx context.Context, job *model.Job) error {
	var payload model.NotifyPayload
	if err := model.DecodePayload(job.Payload, &payload); err != nil {
		return obserrors.PermanentInput(err)
	}

	poi, err := r.poiByID(ctx, payload.POIID)
	if err != nil {
		return err
	}

	record, err := r.deps.Results.Record(ctx, payload.AuditRecordID)
	if err != nil {
		if errors.Is(err, model.ErrAuditRecordNotFound) {
			return obserrors.PermanentInput(err)
		}
		return err
	}

	if !record.HasDiscrepancies() {
		r.logger.DebugContext(ctx, "audit clean, nothing to notify",
			"poi_id", poi.ID,
			"audit_record_id", record.ID,
		)
		return nil
	}

	// A well-scoring audit stays quiet even with minor discrepancies.
	if record.OverallScore >= r.notifyThreshold {
		r.logger.DebugContext(ctx, "audit scored above notification threshold, nothing to notify",
			"poi_id", poi.ID,
			"audit_record_id", record.ID,
			"overall_score", record.OverallScore,
			"threshold", r.notifyThreshold,
		)
		return nil
	}

	content, err := notificationContent(poi, record)
	if err != nil {
		return err
	}

	recipient := ""
	if poi.ContactEmail != nil {
		recipient = *poi.ContactEmail
	}

	_, outcome, err := r.deps.Outbox.Dispatch(ctx, service.DispatchRequest{
		Recipient:  recipient,
		TemplateID: mail.TemplateAuditDiscrepancy,
		Payload:    content,
		POIID:      &poi.ID,
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "notification dispatched",
		"poi_id", poi.ID,
		"audit_record_id", record.ID,
		"outcome", outcome,
	)
	return nil
}

func (r *Runner) poiByID(ctx context.Context, id string) (*model.POI, error) {
	poi, err := r.deps.POIs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrPOINotFound) {
			return nil, obserrors.PermanentInput(fmt.Errorf("poi %s: %w", id, err))
		}
		return nil, fmt.Errorf("load poi %s: %w", id, err)
	}
	return poi, nil
}

// enqueueNext chains the following stage. A dedup hit is a success: the
// in-flight job already covers this POI.
func (r *Runner) enqueueNext(ctx context.Context, next model.JobType, poiID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", next, err)
	}

	_, deduped, err := r.jobs.EnqueueStage(ctx, &model.CreateJobRequest{
		Type:       next,
		Payload:    raw,
		POIID:      &poiID,
		MaxRetries: r.maxRetries,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s for poi %s: %w", next, poiID, err)
	}
	if deduped {
		r.logger.DebugContext(ctx, "next stage already in flight",
			"queue", next,
			"poi_id", poiID,
		)
	}
	return nil
}

type notificationDiscrepancy struct {
	Field          string `json:"field"`
	Severity       string `json:"severity"`
	Recommendation string `json:"recommendation,omitempty"`
}

// notificationContent renders the template payload for a discrepancy mail.
// The content hash of this payload drives the spam gate, so it carries only
// fields that make a repeat notification meaningfully different.
func notificationContent(poi *model.POI, record *model.AuditRecord) (json.RawMessage, error) {
	discrepancies := make([]notificationDiscrepancy, 0, len(record.Discrepancies))
	for _, d := range record.Discrepancies {
		discrepancies = append(discrepancies, notificationDiscrepancy{
			Field:          d.Field,
			Severity:       string(d.Severity),
			Recommendation: d.Recommendation,
		})
	}

	content, err := json.Marshal(map[string]any{
		"poi_name":      poi.Name,
		"overall_score": record.OverallScore,
		"summary":       record.Summary,
		"discrepancies": discrepancies,
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}
	return content, nil
}
