package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// BudgetHandlers exposes the cost ledger and the month-end projection.
type BudgetHandlers struct {
	Costs *service.CostService
}

type budgetResponse struct {
	Projection *model.BudgetProjection      `json:"projection"`
	ByService  map[model.ServiceTag]float64 `json:"by_service"`
}

// Projection returns the current month's spend, the extrapolated month-end
// figure and the per-service breakdown.
func (h *BudgetHandlers) Projection(w http.ResponseWriter, r *http.Request) {
	projection, err := h.Costs.MonthlyProjection(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "projection_failed", Err: err})
		return
	}

	byService, err := h.Costs.MonthlySpendByService(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "projection_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, budgetResponse{Projection: projection, ByService: byService})
}

// POICosts returns the ledger entries attributed to one POI.
func (h *BudgetHandlers) POICosts(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Costs.ListByPOI(
		r.Context(),
		chi.URLParam(r, "id"),
		parseIntQuery(r, "limit", defaultListLimit),
	)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "costs_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"costs": entries})
}
