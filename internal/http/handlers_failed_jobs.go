package httpx

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// FailedJobHandlers provides HTTP handlers for the failure-record surface.
type FailedJobHandlers struct {
	Svc *service.FailedJobService
}

// List returns open failure records, optionally filtered by queue.
func (h *FailedJobHandlers) List(w http.ResponseWriter, r *http.Request) {
	queue, ok := queueFilter(w, r)
	if !ok {
		return
	}

	records, err := h.Svc.List(r.Context(), queue, parseIntQuery(r, "limit", defaultListLimit))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"failed_jobs": records})
}

// Retry resubmits one failure record with a fresh retry budget.
func (h *FailedJobHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, model.ErrFailedJobNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "record_not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "retry_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

// RetryAll resubmits every open failure record, optionally restricted to one
// queue. Individual failures are skipped, not fatal.
func (h *FailedJobHandlers) RetryAll(w http.ResponseWriter, r *http.Request) {
	queue, ok := queueFilter(w, r)
	if !ok {
		return
	}

	result, err := h.Svc.RetryAll(r.Context(), queue)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "retry_all_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]int{
		"retried": result.Retried,
		"skipped": result.Skipped,
	})
}

// queueFilter parses the optional queue query parameter. On an invalid value
// it writes a 400 response and returns false.
func queueFilter(w http.ResponseWriter, r *http.Request) (*model.JobType, bool) {
	raw := r.URL.Query().Get("queue")
	if raw == "" {
		return nil, true
	}
	queue := model.JobType(raw)
	if !queue.Valid() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_queue",
			Err:     errors.New("unknown queue"),
		})
		return nil, false
	}
	return &queue, true
}
