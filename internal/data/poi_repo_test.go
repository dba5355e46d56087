package data

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/testutil"
)

func TestPOIRepo_CreateAndGet(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewPOIRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, testutil.NewPOI().
		WithWebsite("https://schlossmuseum.example").
		WithContactEmail("info@schlossmuseum.example").
		Build())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, model.AuditStatusPending, created.AuditStatus)
	assert.Nil(t, created.LastScore)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
	require.NotNil(t, got.WebsiteURL)
	assert.Equal(t, "https://schlossmuseum.example", *got.WebsiteURL)

	_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-0000000000ff")
	require.ErrorIs(t, err, model.ErrPOINotFound)
}

func TestPOIRepo_ListByFilter(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewPOIRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, testutil.NewPOI().
		WithName("Bergbahn").WithRegion("Bayern").WithCategory("attraction").Build())
	require.NoError(t, err)
	_, err = repo.Create(ctx, testutil.NewPOI().
		WithName("Stadtmuseum").WithRegion("Bayern").WithCategory("museum").WithScore(92).Build())
	require.NoError(t, err)
	_, err = repo.Create(ctx, testutil.NewPOI().
		WithName("Hafenrundfahrt").WithRegion("Hamburg").WithCategory("attraction").Build())
	require.NoError(t, err)

	byRegion, err := repo.ListByFilter(ctx, model.POIFilter{Region: "Bayern"})
	require.NoError(t, err)
	assert.Len(t, byRegion, 2)

	byBoth, err := repo.ListByFilter(ctx, model.POIFilter{Region: "Bayern", Category: "museum"})
	require.NoError(t, err)
	require.Len(t, byBoth, 1)
	assert.Equal(t, "Stadtmuseum", byBoth[0].Name)

	// Ceiling keeps unaudited POIs (NULL score) and drops high scorers.
	ceiling := 80.0
	lowScored, err := repo.ListByFilter(ctx, model.POIFilter{Region: "Bayern", ScoreCeiling: &ceiling})
	require.NoError(t, err)
	require.Len(t, lowScored, 1)
	assert.Equal(t, "Bergbahn", lowScored[0].Name)
}

func TestPOIRepo_RecordAuditOutcome(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	tp := NewFixedTimeProvider(testutil.TestTime())
	repo := NewPOIRepoWithTimeProvider(db, tp)
	ctx := context.Background()

	created, err := repo.Create(ctx, testutil.NewPOI().Build())
	require.NoError(t, err)

	score := 87.5
	err = repo.RecordAuditOutcome(ctx, core.RecordAuditOutcomeParams{
		POIID:   created.ID,
		Status:  model.AuditStatusCompleted,
		Score:   &score,
		AuditAt: tp.Now(),
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusCompleted, got.AuditStatus)
	require.NotNil(t, got.LastScore)
	assert.InDelta(t, 87.5, *got.LastScore, 0.001)
	require.NotNil(t, got.LastAuditAt)

	// Failed outcome keeps the previous score.
	err = repo.RecordAuditOutcome(ctx, core.RecordAuditOutcomeParams{
		POIID:   created.ID,
		Status:  model.AuditStatusFailed,
		Score:   nil,
		AuditAt: tp.Now(),
	})
	require.NoError(t, err)

	got, err = repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusFailed, got.AuditStatus)
	require.NotNil(t, got.LastScore)
	assert.InDelta(t, 87.5, *got.LastScore, 0.001)
}

func TestPOIRepo_Snapshots(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewPOIRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, testutil.NewPOI().Build())
	require.NoError(t, err)

	websiteData := json.RawMessage(`{"pages_fetched": 4, "phone": "+49 3643 1234"}`)
	require.NoError(t, repo.UpdateWebsiteData(ctx, created.ID, websiteData))

	mapsData := json.RawMessage(`{"place_id": "abc", "rating": 4.5}`)
	require.NoError(t, repo.UpdateMapsData(ctx, created.ID, mapsData))

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(websiteData), string(got.WebsiteData))
	assert.JSONEq(t, string(mapsData), string(got.MapsData))

	require.ErrorIs(t,
		repo.UpdateWebsiteData(ctx, "00000000-0000-0000-0000-0000000000ff", websiteData),
		model.ErrPOINotFound)
}
