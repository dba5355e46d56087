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

func TestCrawlPageRepo_CreateAndListByRun(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewCrawlPageRepo(db)
	ctx := context.Background()

	poiID := "00000000-0000-0000-0000-000000000080"
	runID := "00000000-0000-0000-0000-000000000081"

	fetched, err := repo.Create(ctx, &model.CrawlPage{
		POIID:       poiID,
		RunID:       runID,
		URL:         "https://example.com",
		Depth:       0,
		Outcome:     model.PageFetched,
		HTTPStatus:  200,
		ContentType: "text/html",
		Body:        []byte("<html><body>Schlossmuseum</body></html>"),
		StructData:  json.RawMessage(`{"@type": "Museum"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, fetched.ID)
	assert.False(t, fetched.FetchedAt.IsZero())

	blockedErr := "disallowed by robots.txt"
	_, err = repo.Create(ctx, &model.CrawlPage{
		POIID:      poiID,
		RunID:      runID,
		URL:        "https://example.com/intern",
		Depth:      1,
		Outcome:    model.PageSkippedRobots,
		FetchError: &blockedErr,
	})
	require.NoError(t, err)

	pages, err := repo.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, model.PageFetched, pages[0].Outcome)
	assert.Equal(t, model.PageSkippedRobots, pages[1].Outcome)
	require.NotNil(t, pages[1].FetchError)

	_, err = repo.Create(ctx, &model.CrawlPage{RunID: runID, URL: "https://example.com"})
	require.Error(t, err)
}

func TestCrawlPageRepo_DeleteOlderThan(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	tp := NewFixedTimeProvider(testutil.TestTime())
	repo := NewCrawlPageRepoWithTimeProvider(db, tp)
	ctx := context.Background()

	old := &model.CrawlPage{
		POIID:     "00000000-0000-0000-0000-000000000082",
		RunID:     "00000000-0000-0000-0000-000000000083",
		URL:       "https://example.com/alt",
		Outcome:   model.PageFetched,
		FetchedAt: tp.Now().Add(-40 * 24 * time.Hour),
	}
	_, err := repo.Create(ctx, old)
	require.NoError(t, err)

	recent := &model.CrawlPage{
		POIID:   "00000000-0000-0000-0000-000000000082",
		RunID:   "00000000-0000-0000-0000-000000000083",
		URL:     "https://example.com/neu",
		Outcome: model.PageFetched,
	}
	_, err = repo.Create(ctx, recent)
	require.NoError(t, err)

	deleted, err := repo.DeleteOlderThan(ctx, tp.Now().Add(-30*24*time.Hour), 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	remaining, err := repo.ListByRun(ctx, "00000000-0000-0000-0000-000000000083")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "https://example.com/neu", remaining[0].URL)

	_, err = repo.DeleteOlderThan(ctx, tp.Now(), 0)
	require.ErrorIs(t, err, ErrBatchSizeRequired)
}
