package data

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/testutil"
)

func newFailedJobRecord(queue model.JobType) *model.FailedJobRecord {
	return &model.FailedJobRecord{
		Queue:        queue,
		JobID:        "00000000-0000-0000-0000-000000000070",
		Payload:      json.RawMessage(`{"poi_id": "p1"}`),
		ErrorMessage: "comparator returned malformed JSON",
		StackTrace:   "goroutine 1 [running]:\nmain.main()",
		Attempts:     3,
		MaxAttempts:  3,
	}
}

func TestFailedJobRepo_CreateAndList(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewFailedJobRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newFailedJobRecord(model.JobTypeAudit))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Nil(t, created.RetriedAt)

	other := newFailedJobRecord(model.JobTypeNotify)
	other.JobID = "00000000-0000-0000-0000-000000000071"
	_, err = repo.Create(ctx, other)
	require.NoError(t, err)

	all, err := repo.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	audit := model.JobTypeAudit
	filtered, err := repo.List(ctx, &audit, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, created.ID, filtered[0].ID)

	_, err = repo.Create(ctx, &model.FailedJobRecord{Queue: "bogus", JobID: "x"})
	require.Error(t, err)
}

func TestFailedJobRepo_MarkRetried(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewFailedJobRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newFailedJobRecord(model.JobTypeCrawl))
	require.NoError(t, err)

	require.NoError(t, repo.MarkRetried(ctx, created.ID, time.Now()))

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RetriedAt)

	// Retried records leave the open list and cannot be retried twice.
	open, err := repo.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
	require.ErrorIs(t, repo.MarkRetried(ctx, created.ID, time.Now()), model.ErrFailedJobNotFound)
}
