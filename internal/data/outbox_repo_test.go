package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/testutil"
)

func newOutboxEntry(recipient string) *model.MailOutboxEntry {
	payload := json.RawMessage(`{"poi_name": "Schlossmuseum", "score": 62.5}`)
	return &model.MailOutboxEntry{
		Recipient:   recipient,
		Subject:     "Datenprüfung Schlossmuseum",
		TemplateID:  "audit-discrepancy",
		Payload:     payload,
		ContentHash: model.ContentHash(recipient, "audit-discrepancy", payload),
	}
}

func TestOutboxRepo_CreateDefaults(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewOutboxRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newOutboxEntry("redaktion@example.de"))
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusPending, created.Status)
	assert.Equal(t, "de", created.Locale)
	assert.Zero(t, created.Attempts)
	assert.Nil(t, created.SentAt)

	_, err = repo.Create(ctx, &model.MailOutboxEntry{TemplateID: "audit-discrepancy"})
	require.Error(t, err)
}

func TestOutboxRepo_UpdateStatus(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	tp := NewFixedTimeProvider(testutil.TestTime())
	repo := NewOutboxRepoWithTimeProvider(db, tp)
	ctx := context.Background()

	created, err := repo.Create(ctx, newOutboxEntry("redaktion@example.de"))
	require.NoError(t, err)

	sentAt := tp.Now()
	updated, err := repo.UpdateStatus(ctx, core.UpdateOutboxStatusParams{
		ID:       created.ID,
		Status:   model.OutboxStatusSent,
		Attempts: 1,
		SentAt:   &sentAt,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusSent, updated.Status)
	assert.Equal(t, 1, updated.Attempts)
	require.NotNil(t, updated.SentAt)

	_, err = repo.UpdateStatus(ctx, core.UpdateOutboxStatusParams{
		ID:     "00000000-0000-0000-0000-0000000000ff",
		Status: model.OutboxStatusFailed,
	})
	require.ErrorIs(t, err, model.ErrOutboxEntryNotFound)
}

func TestOutboxRepo_DispatchedSince(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewOutboxRepo(db)
	ctx := context.Background()

	entry := newOutboxEntry("redaktion@example.de")
	created, err := repo.Create(ctx, entry)
	require.NoError(t, err)

	params := core.DispatchedSinceParams{
		Recipient:   entry.Recipient,
		ContentHash: entry.ContentHash,
		Since:       time.Now().Add(-30 * 24 * time.Hour),
	}

	// PENDING does not arm the gate.
	armed, err := repo.DispatchedSince(ctx, params)
	require.NoError(t, err)
	assert.False(t, armed)

	sentAt := time.Now()
	_, err = repo.UpdateStatus(ctx, core.UpdateOutboxStatusParams{
		ID:       created.ID,
		Status:   model.OutboxStatusSent,
		Attempts: 1,
		SentAt:   &sentAt,
	})
	require.NoError(t, err)

	armed, err = repo.DispatchedSince(ctx, params)
	require.NoError(t, err)
	assert.True(t, armed)

	// Different content to the same recipient passes.
	other := newOutboxEntry("redaktion@example.de")
	other.ContentHash = model.ContentHash(other.Recipient, other.TemplateID, json.RawMessage(`{"score": 99}`))
	armed, err = repo.DispatchedSince(ctx, core.DispatchedSinceParams{
		Recipient:   other.Recipient,
		ContentHash: other.ContentHash,
		Since:       params.Since,
	})
	require.NoError(t, err)
	assert.False(t, armed)

	// A cutoff after the send does not match.
	armed, err = repo.DispatchedSince(ctx, core.DispatchedSinceParams{
		Recipient:   entry.Recipient,
		ContentHash: entry.ContentHash,
		Since:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, armed)
}

func TestOutboxRepo_DeleteFinishedBefore(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewOutboxRepo(db)
	ctx := context.Background()

	sent, err := repo.Create(ctx, newOutboxEntry("a@example.de"))
	require.NoError(t, err)
	sentAt := time.Now()
	_, err = repo.UpdateStatus(ctx, core.UpdateOutboxStatusParams{
		ID: sent.ID, Status: model.OutboxStatusSent, Attempts: 1, SentAt: &sentAt,
	})
	require.NoError(t, err)

	failed, err := repo.Create(ctx, newOutboxEntry("b@example.de"))
	require.NoError(t, err)
	errMsg := "550 mailbox unavailable"
	_, err = repo.UpdateStatus(ctx, core.UpdateOutboxStatusParams{
		ID: failed.ID, Status: model.OutboxStatusFailed, Attempts: 3, LastError: &errMsg,
	})
	require.NoError(t, err)

	deleted, err := repo.DeleteFinishedBefore(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	// FAILED entries survive for inspection.
	_, err = repo.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	_, err = repo.GetByID(ctx, sent.ID)
	require.ErrorIs(t, err, model.ErrOutboxEntryNotFound)

	_, err = repo.DeleteFinishedBefore(ctx, time.Now(), 0)
	require.ErrorIs(t, err, ErrBatchSizeRequired)
}
