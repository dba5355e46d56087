// Package httpx exposes the operations API for the audit pipeline: enqueue,
// queue introspection, failure replay and budget reporting. Authentication is
// terminated upstream; the front proxy forwards the caller's role in a header.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

const (
	defaultEnqueuePriority = 50
	defaultListLimit       = 50
)

// JobHandlers provides HTTP handlers for queue operations.
type JobHandlers struct {
	Jobs       *service.JobService
	POIs       core.POIRepository
	MaxRetries int // retry budget for jobs enqueued over the API
}

type enqueueRequest struct {
	Type     model.JobType   `json:"type"`
	POIID    string          `json:"poi_id"`
	Payload  json.RawMessage `json:"payload"`
	Priority *int            `json:"priority,omitempty"`
}

type enqueueResponse struct {
	Job     *model.Job `json:"job"`
	Deduped bool       `json:"deduped"`
}

// CreateJob enqueues a pipeline stage job with an explicit payload.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !req.Type.Valid() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_type",
			Err:     errors.New("unknown job type"),
		})
		return
	}

	priority := defaultEnqueuePriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	requestedBy := "api:" + string(RoleFromContext(r.Context()))
	create := &model.CreateJobRequest{
		Type:        req.Type,
		Payload:     req.Payload,
		Priority:    priority,
		RequestedBy: &requestedBy,
		MaxRetries:  h.MaxRetries,
	}
	if req.POIID != "" {
		create.POIID = &req.POIID
	}

	job, deduped, err := h.Jobs.EnqueueStage(r.Context(), create)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "enqueue_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusAccepted, enqueueResponse{Job: job, Deduped: deduped})
}

type auditPOIRequest struct {
	StartURL string `json:"start_url,omitempty"`
	MaxDepth int    `json:"max_depth,omitempty"`
	Priority *int   `json:"priority,omitempty"`
}

// AuditPOI kicks off a full pipeline run for one POI, starting at the crawl
// stage. The start URL defaults to the POI's registered website.
func (h *JobHandlers) AuditPOI(w http.ResponseWriter, r *http.Request) {
	poiID := chi.URLParam(r, "id")

	var req auditPOIRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}

	poi, err := h.POIs.GetByID(r.Context(), poiID)
	if err != nil {
		if errors.Is(err, model.ErrPOINotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "poi_not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "poi_lookup_failed", Err: err})
		return
	}

	startURL := req.StartURL
	if startURL == "" && poi.WebsiteURL != nil {
		startURL = *poi.WebsiteURL
	}

	payload, err := json.Marshal(model.CrawlPayload{
		POIID:    poi.ID,
		StartURL: startURL,
		MaxDepth: req.MaxDepth,
	})
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "payload_encode_failed", Err: err})
		return
	}

	priority := defaultEnqueuePriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	requestedBy := "api:" + string(RoleFromContext(r.Context()))
	job, deduped, err := h.Jobs.EnqueueStage(r.Context(), &model.CreateJobRequest{
		Type:        model.JobTypeCrawl,
		Payload:     payload,
		Priority:    priority,
		POIID:       &poi.ID,
		RequestedBy: &requestedBy,
		MaxRetries:  h.MaxRetries,
	})
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "enqueue_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusAccepted, enqueueResponse{Job: job, Deduped: deduped})
}

// GetJob returns the status of a single job.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	status, err := h.Jobs.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "job_lookup_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// ListJobs returns jobs filtered by the optional status, type and poi_id
// query parameters.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	opts := &model.JobListOptions{
		Limit:  parseIntQuery(r, "limit", defaultListLimit),
		Offset: parseIntQuery(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := model.JobStatus(raw)
		opts.Status = &status
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		jobType := model.JobType(raw)
		if !jobType.Valid() {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_type",
				Err:     errors.New("unknown job type"),
			})
			return
		}
		opts.Type = &jobType
	}
	if raw := r.URL.Query().Get("poi_id"); raw != "" {
		opts.POIID = &raw
	}

	jobs, err := h.Jobs.List(r.Context(), opts)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Stats returns per-queue job counts.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Jobs.StatsAll(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
