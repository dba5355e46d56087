package httpx

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// AuditHandlers provides read access to audit results and the per-field
// reconciliation state.
type AuditHandlers struct {
	Results *service.AuditResultService
}

// GetRecord returns one audit record by ID.
func (h *AuditHandlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.Results.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, model.ErrAuditRecordNotFound) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "audit_not_found", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "audit_lookup_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// History returns the most recent audit records for a POI.
func (h *AuditHandlers) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.Results.History(
		r.Context(),
		chi.URLParam(r, "id"),
		parseIntQuery(r, "limit", defaultListLimit),
	)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "history_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"audits": records})
}

// ExtractedValues returns the current three-source field state of a POI.
func (h *AuditHandlers) ExtractedValues(w http.ResponseWriter, r *http.Request) {
	values, err := h.Results.ExtractedValues(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "values_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"extracted_values": values})
}
