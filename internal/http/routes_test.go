package httpx

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	head := env.do(http.MethodHead, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, head.Code)
}

func TestMetricsEndpointIsMounted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditRecordLookup(t *testing.T) {
	env := newTestEnv(t)
	env.audits.records["ar-1"] = &model.AuditRecord{
		ID:           "ar-1",
		POIID:        "poi-1",
		Status:       model.AuditRecordCompleted,
		OverallScore: 91,
		Summary:      "all sources agree",
		CreatedAt:    time.Now(),
	}

	rec := env.do(http.MethodGet, "/api/audits/ar-1", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var record model.AuditRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.InDelta(t, 91.0, record.OverallScore, 0.001)

	missing := env.do(http.MethodGet, "/api/audits/ar-404", "viewer", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAuditHistoryForPOI(t *testing.T) {
	env := newTestEnv(t)
	env.audits.records["ar-1"] = &model.AuditRecord{ID: "ar-1", POIID: "poi-1"}
	env.audits.records["ar-2"] = &model.AuditRecord{ID: "ar-2", POIID: "poi-2"}

	rec := env.do(http.MethodGet, "/api/pois/poi-1/audits", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Audits []*model.AuditRecord `json:"audits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Audits, 1)
	assert.Equal(t, "ar-1", resp.Audits[0].ID)
}

func TestExtractedValuesForPOI(t *testing.T) {
	env := newTestEnv(t)
	env.audits.values["poi-1"] = []*model.ExtractedValue{
		{POIID: "poi-1", Field: "phone", MatchStatus: model.MatchStatusMismatch},
	}

	rec := env.do(http.MethodGet, "/api/pois/poi-1/values", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "phone")
}

func TestBudgetProjection(t *testing.T) {
	env := newTestEnv(t)
	env.costs.monthly = 40
	env.costs.byService[model.ServiceLLM] = 30
	env.costs.byService[model.ServiceGeocode] = 10

	rec := env.do(http.MethodGet, "/api/budget", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Projection model.BudgetProjection       `json:"projection"`
		ByService  map[model.ServiceTag]float64 `json:"by_service"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 40.0, resp.Projection.MonthlySpend, 0.001)
	assert.InDelta(t, 100.0, resp.Projection.MonthlyCeiling, 0.001)
	assert.InDelta(t, 30.0, resp.ByService[model.ServiceLLM], 0.001)
}

func TestPOICosts(t *testing.T) {
	env := newTestEnv(t)
	env.costs.entries = []*model.CostEntry{
		{ID: "c-1", Service: model.ServiceLLM, Operation: "compare", TotalCost: 0.02, POIID: strPtr("poi-1")},
		{ID: "c-2", Service: model.ServiceCrawl, Operation: "fetch", TotalCost: 0.001, POIID: strPtr("poi-2")},
	}

	rec := env.do(http.MethodGet, "/api/pois/poi-1/costs", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Costs []*model.CostEntry `json:"costs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Costs, 1)
	assert.Equal(t, "c-1", resp.Costs[0].ID)
}

func TestRoleFromHeader_UnknownValueDegradesToViewer(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/jobs", "superuser", `{"type":"crawl","payload":{}}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListSchedules_ServesFromCacheWithinTTL(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.active = []*model.ScheduleConfig{
		{ID: "sched-1", Name: "nightly-full-audit", CronExpr: "0 2 * * *", Active: true},
	}

	rec := env.do(http.MethodGet, "/api/schedules", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Schedules []*model.ScheduleConfig `json:"schedules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Schedules, 1)
	assert.Equal(t, "nightly-full-audit", resp.Schedules[0].Name)

	// The list is cached, so a store change does not show up immediately.
	env.schedules.active = nil
	rec = env.do(http.MethodGet, "/api/schedules", "viewer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Schedules, 1)
}
