package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	domainjob "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/job"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	obserrors "github.com/PrinzMichiDE/tourismusgpt-sub000/internal/observability/errors"
)

// stubOutboxRepo keeps outbox rows in memory.
type stubOutboxRepo struct {
	entries []*model.MailOutboxEntry
}

func (r *stubOutboxRepo) Create(
	_ context.Context,
	entry *model.MailOutboxEntry,
) (*model.MailOutboxEntry, error) {
	entry.ID = "ob-" + strconv.Itoa(len(r.entries)+1)
	// Align with the fixed service clock used in these tests.
	entry.CreatedAt = time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *stubOutboxRepo) GetByID(_ context.Context, id string) (*model.MailOutboxEntry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, model.ErrOutboxEntryNotFound
}

func (r *stubOutboxRepo) UpdateStatus(
	_ context.Context,
	params core.UpdateOutboxStatusParams,
) (*model.MailOutboxEntry, error) {
	for _, e := range r.entries {
		if e.ID != params.ID {
			continue
		}
		e.Status = params.Status
		e.Attempts = params.Attempts
		e.LastError = params.LastError
		e.SentAt = params.SentAt
		return e, nil
	}
	return nil, model.ErrOutboxEntryNotFound
}

func (r *stubOutboxRepo) DispatchedSince(
	_ context.Context,
	params core.DispatchedSinceParams,
) (bool, error) {
	for _, e := range r.entries {
		if e.Recipient != params.Recipient || e.ContentHash != params.ContentHash {
			continue
		}
		if e.Status != model.OutboxStatusSent && e.Status != model.OutboxStatusSending {
			continue
		}
		if !e.CreatedAt.Before(params.Since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubOutboxRepo) DeleteFinishedBefore(
	_ context.Context,
	cutoff time.Time,
	_ int,
) (int64, error) {
	var kept []*model.MailOutboxEntry
	var deleted int64
	for _, e := range r.entries {
		finished := e.Status == model.OutboxStatusSent || e.Status == model.OutboxStatusSkipped
		if finished && e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return deleted, nil
}

// stubMailSender fails the first failures deliveries, then succeeds.
type stubMailSender struct {
	failures int
	sent     []*model.MailOutboxEntry
	calls    int
}

func (s *stubMailSender) Send(_ context.Context, entry *model.MailOutboxEntry) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("mail api 502")
	}
	s.sent = append(s.sent, entry)
	return nil
}

// stubCache is a map-backed CacheRepository without expiry.
type stubCache struct {
	data map[string][]byte
	err  error
}

func newStubCache() *stubCache {
	return &stubCache{data: make(map[string][]byte)}
}

func (c *stubCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.data[key], nil
}

func (c *stubCache) Delete(_ context.Context, key string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.data[key]
	delete(c.data, key)
	return ok, nil
}

func (c *stubCache) Exists(_ context.Context, key string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	_, ok := c.data[key]
	return ok, nil
}

func (c *stubCache) SetIfNotExists(
	_ context.Context,
	key string,
	value []byte,
	_ time.Duration,
) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}

func (c *stubCache) Health(_ context.Context) error { return c.err }

func fastBackoff(t *testing.T) *domainjob.BackoffPolicy {
	t.Helper()
	policy, err := domainjob.NewBackoffPolicy(time.Millisecond)
	require.NoError(t, err)
	return policy
}

func newTestOutboxService(
	t *testing.T,
	repo *stubOutboxRepo,
	sender *stubMailSender,
	cache core.CacheRepository,
) *OutboxService {
	t.Helper()
	svc, err := NewOutboxService(OutboxServiceOptions{
		Repo:    repo,
		Sender:  sender,
		Cache:   cache,
		Backoff: fastBackoff(t),
		Now:     func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func discrepancyRequest(recipient string) DispatchRequest {
	poiID := "p1"
	return DispatchRequest{
		Recipient:  recipient,
		Subject:    "Datenabweichungen bei POI p1",
		TemplateID: "discrepancy-report",
		Payload:    []byte(`{"poi_id":"p1","score":62.5}`),
		Locale:     "de",
		POIID:      &poiID,
	}
}

func TestOutboxService_Dispatch_Sent(t *testing.T) {
	repo := &stubOutboxRepo{}
	sender := &stubMailSender{}
	svc := newTestOutboxService(t, repo, sender, newStubCache())

	entry, outcome, err := svc.Dispatch(context.Background(), discrepancyRequest("poi@example.com"))
	require.NoError(t, err)

	assert.Equal(t, DispatchSent, outcome)
	assert.Equal(t, model.OutboxStatusSent, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
	require.NotNil(t, entry.SentAt)
	assert.Len(t, sender.sent, 1)
	assert.NotEmpty(t, entry.ContentHash)
}

func TestOutboxService_Dispatch_NoRecipientIsQuietNoOp(t *testing.T) {
	repo := &stubOutboxRepo{}
	sender := &stubMailSender{}
	svc := newTestOutboxService(t, repo, sender, newStubCache())

	entry, outcome, err := svc.Dispatch(context.Background(), discrepancyRequest(""))
	require.NoError(t, err)

	assert.Equal(t, DispatchNoRecipient, outcome)
	assert.Nil(t, entry)
	assert.Empty(t, repo.entries)
	assert.Zero(t, sender.calls)
}

func TestOutboxService_Dispatch_RepeatIsSkippedWithoutAttempt(t *testing.T) {
	repo := &stubOutboxRepo{}
	sender := &stubMailSender{}
	svc := newTestOutboxService(t, repo, sender, newStubCache())
	ctx := context.Background()

	_, outcome, err := svc.Dispatch(ctx, discrepancyRequest("poi@example.com"))
	require.NoError(t, err)
	require.Equal(t, DispatchSent, outcome)

	entry, outcome, err := svc.Dispatch(ctx, discrepancyRequest("poi@example.com"))
	require.NoError(t, err)

	assert.Equal(t, DispatchSkipped, outcome)
	assert.Equal(t, model.OutboxStatusSkipped, entry.Status)
	assert.Zero(t, entry.Attempts)
	// Exactly one delivery attempt across both dispatches.
	assert.Equal(t, 1, sender.calls)
	// Both rows persisted; the skip is auditable.
	assert.Len(t, repo.entries, 2)
}

func TestOutboxService_Dispatch_DifferentContentPassesGate(t *testing.T) {
	repo := &stubOutboxRepo{}
	sender := &stubMailSender{}
	svc := newTestOutboxService(t, repo, sender, newStubCache())
	ctx := context.Background()

	_, _, err := svc.Dispatch(ctx, discrepancyRequest("poi@example.com"))
	require.NoError(t, err)

	changed := discrepancyRequest("poi@example.com")
	changed.Payload = []byte(`{"poi_id":"p1","score":41.0}`)
	_, outcome, err := svc.Dispatch(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, DispatchSent, outcome)
	assert.Equal(t, 2, sender.calls)
}

func TestOutboxService_Dispatch_CacheOutageFallsBackToHistory(t *testing.T) {
	repo := &stubOutboxRepo{}
	sender := &stubMailSender{}
	cache := newStubCache()
	svc := newTestOutboxService(t, repo, sender, cache)
	ctx := context.Background()

	_, _, err := svc.Dispatch(ctx, discrepancyRequest("poi@example.com"))
	require.NoError(t, err)

	// Redis goes away; the durable outbox history still suppresses the repeat.
	cache.err = errors.New("connection refused")
	_, outcome, err := svc.Dispatch(ctx, discrepancyRequest("poi@example.com"))
	require.NoError(t, err)
	assert.Equal(t, DispatchSkipped, outcome)
	assert.Equal(t, 1, sender.calls)
}

func TestOutboxService_Dispatch_RetriesThenSends(t *testing.T) {
	repo := &stubOutboxRepo{}
	sender := &stubMailSender{failures: 2}
	svc := newTestOutboxService(t, repo, sender, newStubCache())

	entry, outcome, err := svc.Dispatch(context.Background(), discrepancyRequest("poi@example.com"))
	require.NoError(t, err)

	assert.Equal(t, DispatchSent, outcome)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, 3, sender.calls)
}

func TestOutboxService_Dispatch_ExhaustedDeliveryFailsTransient(t *testing.T) {
	repo := &stubOutboxRepo{}
	sender := &stubMailSender{failures: 10}
	cache := newStubCache()
	svc := newTestOutboxService(t, repo, sender, cache)

	entry, outcome, err := svc.Dispatch(context.Background(), discrepancyRequest("poi@example.com"))
	require.Error(t, err)

	assert.Equal(t, DispatchFailed, outcome)
	assert.Equal(t, model.OutboxStatusFailed, entry.Status)
	assert.Equal(t, DefaultDeliveryAttempts, entry.Attempts)
	require.NotNil(t, entry.LastError)

	// The failure is retryable at the job level.
	assert.Equal(t, obserrors.FailureTransient, obserrors.KindOf(err))

	// The fast-path gate is disarmed so a job retry is not suppressed.
	assert.Empty(t, cache.data)
}

func TestOutboxService_Dispatch_FailedDeliveryDoesNotArmGate(t *testing.T) {
	repo := &stubOutboxRepo{}
	sender := &stubMailSender{failures: DefaultDeliveryAttempts}
	svc := newTestOutboxService(t, repo, sender, newStubCache())
	ctx := context.Background()

	_, outcome, err := svc.Dispatch(ctx, discrepancyRequest("poi@example.com"))
	require.Error(t, err)
	require.Equal(t, DispatchFailed, outcome)

	// The retry goes through: FAILED rows never count as dispatched.
	entry, outcome, err := svc.Dispatch(ctx, discrepancyRequest("poi@example.com"))
	require.NoError(t, err)
	assert.Equal(t, DispatchSent, outcome)
	assert.Equal(t, model.OutboxStatusSent, entry.Status)
}
