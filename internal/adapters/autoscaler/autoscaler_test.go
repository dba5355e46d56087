package autoscaler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/config"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
)

type stubStats struct {
	stats model.QueueStats
	err   error
}

func (s *stubStats) StatsAll(_ context.Context) (model.QueueStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stats, nil
}

type stubPool struct {
	queue   model.JobType
	workers int
	resizes []int
}

func (p *stubPool) Queue() model.JobType { return p.queue }
func (p *stubPool) WorkerCount() int     { return p.workers }

func (p *stubPool) Resize(n int) int {
	p.workers = n
	p.resizes = append(p.resizes, n)
	return n
}

func testConfig() config.AutoscalerConfig {
	return config.AutoscalerConfig{
		Interval:         30 * time.Second,
		ScaleUpBacklog:   10,
		ScaleDownBacklog: 2,
		MinWorkers:       1,
		MaxWorkers:       8,
	}
}

func newTestAutoscaler(t *testing.T, stats *stubStats, pools ...Pool) *Autoscaler {
	t.Helper()
	a, err := New(Options{
		Stats:  stats,
		Pools:  pools,
		Config: testConfig(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return a
}

func TestTick_ScalesUpOneStep(t *testing.T) {
	pool := &stubPool{queue: model.JobTypeCrawl, workers: 2}
	stats := &stubStats{stats: model.QueueStats{
		// 50 pending over 2 workers is well past the upper threshold.
		model.JobTypeCrawl: {Pending: 50, Running: 2},
	}}
	a := newTestAutoscaler(t, stats, pool)

	a.tick(context.Background())
	assert.Equal(t, []int{3}, pool.resizes)
}

func TestTick_ScalesDownOneStep(t *testing.T) {
	pool := &stubPool{queue: model.JobTypeAudit, workers: 4}
	stats := &stubStats{stats: model.QueueStats{
		model.JobTypeAudit: {Pending: 1},
	}}
	a := newTestAutoscaler(t, stats, pool)

	a.tick(context.Background())
	assert.Equal(t, []int{3}, pool.resizes)
}

func TestTick_HoldsInsideTheBand(t *testing.T) {
	pool := &stubPool{queue: model.JobTypeEnrich, workers: 3}
	stats := &stubStats{stats: model.QueueStats{
		// 15 pending over 3 workers sits between both thresholds.
		model.JobTypeEnrich: {Pending: 15},
	}}
	a := newTestAutoscaler(t, stats, pool)

	a.tick(context.Background())
	assert.Empty(t, pool.resizes)
}

func TestTick_RespectsBounds(t *testing.T) {
	atMax := &stubPool{queue: model.JobTypeCrawl, workers: 8}
	atMin := &stubPool{queue: model.JobTypeNotify, workers: 1}
	stats := &stubStats{stats: model.QueueStats{
		model.JobTypeCrawl:  {Pending: 500},
		model.JobTypeNotify: {Pending: 0},
	}}
	a := newTestAutoscaler(t, stats, atMax, atMin)

	a.tick(context.Background())
	assert.Empty(t, atMax.resizes)
	assert.Empty(t, atMin.resizes)
}

func TestTick_PollFailureKeepsSizes(t *testing.T) {
	pool := &stubPool{queue: model.JobTypeCrawl, workers: 2}
	a := newTestAutoscaler(t, &stubStats{err: errors.New("db down")}, pool)

	a.tick(context.Background())
	assert.Empty(t, pool.resizes)
}

func TestRun_StopsOnCancel(t *testing.T) {
	pool := &stubPool{queue: model.JobTypeCrawl, workers: 1}
	a := newTestAutoscaler(t, &stubStats{stats: model.QueueStats{}}, pool)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("autoscaler did not stop")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Pools: []Pool{&stubPool{}}})
	require.Error(t, err)

	_, err = New(Options{Stats: &stubStats{}})
	require.Error(t, err)
}
