package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	domainjob "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/job"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// stubJobRepo is an in-memory core.JobRepository for handler tests.
type stubJobRepo struct {
	jobs     map[string]*model.Job
	keys     map[string]*model.Job
	statsAll model.QueueStats
	nextID   int
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{
		jobs: make(map[string]*model.Job),
		keys: make(map[string]*model.Job),
	}
}

func (r *stubJobRepo) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.JobKey != nil {
		if _, exists := r.keys[*req.JobKey]; exists {
			return nil, model.ErrDuplicateJobKey
		}
	}

	r.nextID++
	job := &model.Job{
		ID:          fmt.Sprintf("job-%d", r.nextID),
		Type:        req.Type,
		Status:      model.JobStatusPending,
		Priority:    req.Priority,
		JobKey:      req.JobKey,
		POIID:       req.POIID,
		Payload:     req.Payload,
		RequestedBy: req.RequestedBy,
		MaxRetries:  req.MaxRetries,
		CreatedAt:   time.Now(),
	}
	r.jobs[job.ID] = job
	if req.JobKey != nil {
		r.keys[*req.JobKey] = job
	}
	return job, nil
}

func (r *stubJobRepo) FindPendingByJobKey(_ context.Context, jobKey string) (*model.Job, error) {
	if job, ok := r.keys[jobKey]; ok {
		return job, nil
	}
	return nil, model.ErrJobNotFound
}

func (r *stubJobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return job, nil
}

func (r *stubJobRepo) ReserveNext(context.Context, model.JobType, int) (*model.Job, error) {
	return nil, model.ErrNoJobsAvailable
}

func (r *stubJobRepo) WaitForNotification(ctx context.Context, _ model.JobType) error {
	<-ctx.Done()
	return ctx.Err()
}

func (r *stubJobRepo) Heartbeat(context.Context, string, int) (bool, error) { return true, nil }
func (r *stubJobRepo) Complete(context.Context, string) (bool, error)      { return true, nil }

func (r *stubJobRepo) Fail(context.Context, core.FailJobParams) (*model.Job, error) {
	return nil, model.ErrJobNotFound
}

func (r *stubJobRepo) Stats(_ context.Context, queue model.JobType) (*model.JobStats, error) {
	s := r.statsAll[queue]
	return &s, nil
}

func (r *stubJobRepo) StatsAll(context.Context) (model.QueueStats, error) {
	return r.statsAll, nil
}

type stubNotifier struct{}

func (stubNotifier) Subscribe(model.JobType) (func(), <-chan struct{}) {
	return func() {}, make(chan struct{})
}
func (stubNotifier) StopAll() {}

// stubPOIRepo serves POI lookups; mutations are not exercised here.
type stubPOIRepo struct {
	pois map[string]*model.POI
}

func (r *stubPOIRepo) GetByID(_ context.Context, id string) (*model.POI, error) {
	poi, ok := r.pois[id]
	if !ok {
		return nil, model.ErrPOINotFound
	}
	return poi, nil
}

func (r *stubPOIRepo) ListByFilter(context.Context, model.POIFilter) ([]*model.POI, error) {
	return nil, nil
}
func (r *stubPOIRepo) UpdateAuditStatus(context.Context, string, model.AuditStatus) error {
	return nil
}
func (r *stubPOIRepo) UpdateWebsiteData(context.Context, string, []byte) error { return nil }
func (r *stubPOIRepo) UpdateMapsData(context.Context, string, []byte) error    { return nil }
func (r *stubPOIRepo) RecordAuditOutcome(context.Context, core.RecordAuditOutcomeParams) error {
	return nil
}

type stubFailedRepo struct {
	records map[string]*model.FailedJobRecord
}

func (r *stubFailedRepo) Create(_ context.Context, rec *model.FailedJobRecord) (*model.FailedJobRecord, error) {
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *stubFailedRepo) GetByID(_ context.Context, id string) (*model.FailedJobRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, model.ErrFailedJobNotFound
	}
	return rec, nil
}

func (r *stubFailedRepo) List(
	_ context.Context,
	queue *model.JobType,
	_ int,
) ([]*model.FailedJobRecord, error) {
	var out []*model.FailedJobRecord
	for _, rec := range r.records {
		if rec.RetriedAt != nil {
			continue
		}
		if queue != nil && rec.Queue != *queue {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *stubFailedRepo) MarkRetried(_ context.Context, id string, at time.Time) error {
	rec, ok := r.records[id]
	if !ok {
		return model.ErrFailedJobNotFound
	}
	rec.RetriedAt = &at
	return nil
}

type stubAuditRepo struct {
	records map[string]*model.AuditRecord
	values  map[string][]*model.ExtractedValue
}

func (r *stubAuditRepo) CreateRecord(_ context.Context, rec *model.AuditRecord) (*model.AuditRecord, error) {
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *stubAuditRepo) GetRecordByID(_ context.Context, id string) (*model.AuditRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, model.ErrAuditRecordNotFound
	}
	return rec, nil
}

func (r *stubAuditRepo) ListRecordsByPOI(
	_ context.Context,
	poiID string,
	_ int,
) ([]*model.AuditRecord, error) {
	var out []*model.AuditRecord
	for _, rec := range r.records {
		if rec.POIID == poiID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *stubAuditRepo) UpsertExtractedValue(context.Context, *model.ExtractedValue) error {
	return nil
}

func (r *stubAuditRepo) ListExtractedValues(
	_ context.Context,
	poiID string,
) ([]*model.ExtractedValue, error) {
	return r.values[poiID], nil
}

type stubCostRepo struct {
	monthly   float64
	byService map[model.ServiceTag]float64
	entries   []*model.CostEntry
}

func (r *stubCostRepo) Append(_ context.Context, e *model.CostEntry) (*model.CostEntry, error) {
	r.entries = append(r.entries, e)
	return e, nil
}

func (r *stubCostRepo) SumWindow(context.Context, time.Time, time.Time) (float64, error) {
	return r.monthly, nil
}

func (r *stubCostRepo) SumWindowByService(
	context.Context,
	time.Time,
	time.Time,
) (map[model.ServiceTag]float64, error) {
	return r.byService, nil
}

func (r *stubCostRepo) ListByPOI(
	_ context.Context,
	poiID string,
	_ int,
) ([]*model.CostEntry, error) {
	var out []*model.CostEntry
	for _, e := range r.entries {
		if e.POIID != nil && *e.POIID == poiID {
			out = append(out, e)
		}
	}
	return out, nil
}

// testEnv bundles the router and the stub stores behind it.
// stubScheduleRepo is an in-memory core.ScheduleRepository; handler tests
// only exercise the active-list read path.
type stubScheduleRepo struct {
	active []*model.ScheduleConfig
}

func (r *stubScheduleRepo) GetByID(_ context.Context, id string) (*model.ScheduleConfig, error) {
	for _, s := range r.active {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, model.ErrScheduleNotFound
}

func (r *stubScheduleRepo) ListActive(_ context.Context) ([]*model.ScheduleConfig, error) {
	return r.active, nil
}

func (r *stubScheduleRepo) FindDue(_ context.Context, _ time.Time) ([]*model.ScheduleConfig, error) {
	return nil, nil
}

func (r *stubScheduleRepo) RecordRun(_ context.Context, _ core.RecordScheduleRunParams) error {
	return nil
}

func (r *stubScheduleRepo) SetActiveFireKey(_ context.Context, _, _ string) error {
	return nil
}

func (r *stubScheduleRepo) TryWithScheduleLock(
	ctx context.Context,
	_ string,
	fn func(context.Context) error,
) (bool, error) {
	return true, fn(ctx)
}

type testEnv struct {
	router    http.Handler
	jobRepo   *stubJobRepo
	pois      *stubPOIRepo
	failed    *stubFailedRepo
	audits    *stubAuditRepo
	costs     *stubCostRepo
	schedules *stubScheduleRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jobRepo := newStubJobRepo()
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         jobRepo,
		DefaultLease: 30 * time.Second,
		Logger:       logger,
		Notifier:     stubNotifier{},
	})
	require.NoError(t, err)
	t.Cleanup(jobs.StopAllListeners)

	failedRepo := &stubFailedRepo{records: make(map[string]*model.FailedJobRecord)}
	failedJobs, err := service.NewFailedJobService(service.FailedJobServiceOptions{
		Records: failedRepo,
		Jobs:    jobs,
		Logger:  logger,
	})
	require.NoError(t, err)

	pois := &stubPOIRepo{pois: make(map[string]*model.POI)}
	auditRepo := &stubAuditRepo{
		records: make(map[string]*model.AuditRecord),
		values:  make(map[string][]*model.ExtractedValue),
	}
	results, err := service.NewAuditResultService(service.AuditResultServiceOptions{
		Records: auditRepo,
		POIs:    pois,
		Logger:  logger,
	})
	require.NoError(t, err)

	costRepo := &stubCostRepo{byService: make(map[model.ServiceTag]float64)}
	costs, err := service.NewCostService(service.CostServiceOptions{
		Repo:           costRepo,
		MonthlyCeiling: 100,
		Logger:         logger,
	})
	require.NoError(t, err)

	scheduleRepo := &stubScheduleRepo{}
	scheduleCache := core.NewScheduleCacheService(core.ScheduleCacheServiceOptions{
		Schedules: scheduleRepo,
		Logger:    logger,
	})

	httpCfg := config.HTTPConfig{RoleHeader: "X-Audit-Role"}
	router := NewRouter(RouterServices{
		Jobs:        jobs,
		FailedJobs:  failedJobs,
		Results:     results,
		Costs:       costs,
		POIs:        pois,
		Schedules:   scheduleCache,
		MaxRetries:  3,
		HTTP:        httpCfg,
		MetricsPath: "/metrics",
		Logger:      logger,
	})

	return &testEnv{
		router:    router,
		jobRepo:   jobRepo,
		pois:      pois,
		failed:    failedRepo,
		audits:    auditRepo,
		costs:     costRepo,
		schedules: scheduleRepo,
	}
}

// do performs a request against the router with the given role header.
func (e *testEnv) do(method, path, role, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set("X-Audit-Role", role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

var _ domainjob.Notifier = stubNotifier{}
