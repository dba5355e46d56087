// Package pipeline runs the four stage queues. One Runner serves one queue:
// it reserves jobs under a lease, hands them to the stage handler, and chains
// the next stage on success. Worker pools are resizable at runtime so the
// autoscaler can follow queue depth.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/metrics"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/places"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/service"
)

// defaultNotifyScoreThreshold suppresses notifications for audits scoring at
// or above it when no threshold is configured.
const defaultNotifyScoreThreshold = 80

// HandlerFunc processes one reserved job. A returned error spends the job's
// retry budget unless its failure kind is terminal.
type HandlerFunc func(ctx context.Context, job *model.Job) error

// SiteCrawler is the crawl stage dependency.
type SiteCrawler interface {
	Run(ctx context.Context, poiID, startURL string, maxDepth int) (*model.CrawlSummary, error)
}

// PlaceResolver is the enrichment stage dependency.
type PlaceResolver interface {
	Resolve(ctx context.Context, poi *model.POI) (places.Resolution, error)
}

// Comparer is the audit stage dependency.
type Comparer interface {
	Compare(ctx context.Context, poi *model.POI) (*model.AuditRecord, error)
}

// AuditResults persists comparator outcomes and serves past records.
type AuditResults interface {
	ApplyCompleted(ctx context.Context, record *model.AuditRecord) (*model.AuditRecord, error)
	ApplyFailed(ctx context.Context, poiID, errMsg string, duration time.Duration) (*model.AuditRecord, error)
	Record(ctx context.Context, id string) (*model.AuditRecord, error)
}

// MailDispatcher runs one notification through the outbox.
type MailDispatcher interface {
	Dispatch(
		ctx context.Context,
		req service.DispatchRequest,
	) (*model.MailOutboxEntry, service.DispatchOutcome, error)
}

// StageDeps bundles the stage clients a runner may need. Only the
// dependencies of the configured queue are required.
type StageDeps struct {
	POIs    core.POIRepository
	Crawler SiteCrawler
	Places  PlaceResolver
	Auditor Comparer
	Results AuditResults
	Outbox  MailDispatcher
}

// Options configures a stage queue runner.
type Options struct {
	Jobs  *service.JobService // Required: queue access
	Queue model.JobType       // Required: which stage this runner serves
	Deps  StageDeps

	Lease       time.Duration // per-job lease; defaults to 30s
	Concurrency int           // initial worker count; defaults to 1
	MaxRetries  int           // retry budget stamped on chained stage jobs
	Logger      *slog.Logger

	// NotifyScoreThreshold is the overall audit score at or above which the
	// notify stage stays quiet. Defaults to defaultNotifyScoreThreshold.
	NotifyScoreThreshold float64
}

// Runner pulls jobs for one queue and executes the stage handler.
type Runner struct {
	jobs            *service.JobService
	queue           model.JobType
	deps            StageDeps
	lease           time.Duration
	maxRetries      int
	notifyThreshold float64
	logger          *slog.Logger
	handle          HandlerFunc

	mu      sync.Mutex
	workers int
	stops   []chan struct{}
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	notify  <-chan struct{}
	errCh   chan error
	wg      sync.WaitGroup
}

// NewRunner builds a runner for one stage queue and validates that the
// dependencies of that stage are present.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if !opts.Queue.Valid() {
		return nil, fmt.Errorf("invalid queue %q", opts.Queue)
	}

	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	threshold := opts.NotifyScoreThreshold
	if threshold <= 0 {
		threshold = defaultNotifyScoreThreshold
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", string(opts.Queue)+"_runner")

	r := &Runner{
		jobs:            opts.Jobs,
		queue:           opts.Queue,
		deps:            opts.Deps,
		lease:           lease,
		maxRetries:      opts.MaxRetries,
		notifyThreshold: threshold,
		logger:          logger,
		workers:         workers,
	}

	handle, err := r.resolveHandler()
	if err != nil {
		return nil, err
	}
	r.handle = handle
	return r, nil
}

func (r *Runner) resolveHandler() (HandlerFunc, error) {
	if r.deps.POIs == nil {
		return nil, errors.New("POIRepository is required")
	}
	switch r.queue {
	case model.JobTypeCrawl:
		if r.deps.Crawler == nil {
			return nil, errors.New("crawler is required for the crawl queue")
		}
		return r.handleCrawl, nil
	case model.JobTypeEnrich:
		if r.deps.Places == nil {
			return nil, errors.New("place resolver is required for the enrich queue")
		}
		return r.handleEnrich, nil
	case model.JobTypeAudit:
		if r.deps.Auditor == nil || r.deps.Results == nil {
			return nil, errors.New("comparator and audit results are required for the audit queue")
		}
		return r.handleAudit, nil
	case model.JobTypeNotify:
		if r.deps.Outbox == nil || r.deps.Results == nil {
			return nil, errors.New("outbox and audit results are required for the notify queue")
		}
		return r.handleNotify, nil
	default:
		return nil, fmt.Errorf("no handler for queue %q", r.queue)
	}
}

// Queue returns the stage this runner serves.
func (r *Runner) Queue() model.JobType {
	return r.queue
}

// Run processes jobs until the context is cancelled or a worker hits a fatal
// reservation error. The first fatal error cancels every worker.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, ch := r.jobs.Subscribe(r.queue)
	defer unsub()

	r.mu.Lock()
	r.running = true
	r.runCtx = ctx
	r.cancel = cancel
	r.notify = ch
	r.errCh = make(chan error, 1)
	initial := r.workers
	for range initial {
		r.startWorkerLocked()
	}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "stage runner started",
		"queue", r.queue,
		"workers", initial,
		"lease", r.lease,
	)
	metrics.SetWorkerPoolSize(string(r.queue), initial)

	r.wg.Wait()

	r.mu.Lock()
	r.running = false
	r.stops = nil
	r.mu.Unlock()

	select {
	case err := <-r.errCh:
		return err
	default:
		return ctx.Err()
	}
}

// Resize grows or shrinks the worker pool to n, clamped to at least one
// worker. Safe to call from the autoscaler while Run is active; before Run it
// only adjusts the initial pool size. Returns the effective count.
func (r *Runner) Resize(n int) int {
	if n < 1 {
		n = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		r.workers = n
		return n
	}

	for r.workers < n {
		r.startWorkerLocked()
	}
	for r.workers > n {
		last := len(r.stops) - 1
		close(r.stops[last])
		r.stops = r.stops[:last]
		r.workers--
	}

	metrics.SetWorkerPoolSize(string(r.queue), r.workers)
	return r.workers
}

// WorkerCount returns the current worker pool size.
func (r *Runner) WorkerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workers
}

// startWorkerLocked spawns one worker goroutine. Caller holds r.mu and the
// runner must be running; the worker count tracks the stop channel list.
func (r *Runner) startWorkerLocked() {
	stop := make(chan struct{})
	r.stops = append(r.stops, stop)
	r.workers = len(r.stops)

	ctx := r.runCtx
	notify := r.notify
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.workerLoop(ctx, stop, notify); err != nil {
			select {
			case r.errCh <- err:
				r.cancel()
			default:
			}
		}
	}()
}

func (r *Runner) workerLoop(ctx context.Context, stop <-chan struct{}, notify <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}

		job, err := r.jobs.ReserveNext(ctx, r.queue, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			select {
			case <-ctx.Done():
				return nil
			case <-stop:
				return nil
			case <-notify:
			}
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return fmt.Errorf("reserve next %s job: %w", r.queue, err)
		}
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go r.heartbeatLoop(hbCtx, job.ID)

	err := r.handle(ctx, job)
	stopHeartbeat()

	metrics.ObserveJobDuration(string(r.queue), time.Since(start))

	if err != nil {
		details := service.JobFailureDetails{
			Kind:       obserrors.KindOf(err),
			Metadata:   map[string]string{"component": string(r.queue) + "_runner"},
			OccurredAt: time.Now(),
		}
		if _, ferr := r.jobs.FailWithDetails(ctx, job.ID, err.Error(), details); ferr != nil {
			r.logger.ErrorContext(ctx, "failed to record job failure",
				"job_id", job.ID,
				"error", ferr,
				"original_error", err,
			)
		}
		return
	}

	completed, err := r.jobs.Complete(ctx, job.ID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to complete job", "job_id", job.ID, "error", err)
		return
	}
	if completed {
		metrics.ObserveJobTransition(string(r.queue), metrics.ResultCompleted)
	}
}

// heartbeatLoop extends the lease while a handler is busy, so long crawls and
// slow comparator calls do not lose their job to lease expiry.
func (r *Runner) heartbeatLoop(ctx context.Context, jobID string) {
	interval := r.lease / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.jobs.Heartbeat(ctx, jobID, r.lease); err != nil {
				r.logger.WarnContext(ctx, "job heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}
