package httpx

import (
	"net/http"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

// ScheduleHandlers serves the cron schedule read surface. Responses come
// through the TTL-bounded schedule cache, so they may lag a configuration
// change by up to the cache TTL.
type ScheduleHandlers struct {
	Cache *core.ScheduleCacheService
}

// ListActive returns every active schedule.
func (h *ScheduleHandlers) ListActive(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Cache.ActiveSchedules(r.Context())
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_schedules_failed", Err: err})
		return
	}
	if schedules == nil {
		schedules = []*model.ScheduleConfig{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}
