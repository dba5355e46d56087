package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/testutil"
)

func TestCostRepo_Append(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewCostRepo(db)
	ctx := context.Background()

	entry, err := repo.Append(ctx, &model.CostEntry{
		Service:   model.ServiceLLM,
		Operation: "compare",
		Units:     1250, // tokens
		UnitCost:  0.000002,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.InDelta(t, 0.0025, entry.TotalCost, 1e-9)

	_, err = repo.Append(ctx, &model.CostEntry{Service: "unknown", Operation: "x", Units: 1, UnitCost: 1})
	require.ErrorIs(t, err, model.ErrInvalidCostEntry)

	_, err = repo.Append(ctx, nil)
	require.Error(t, err)
}

func TestCostRepo_SumWindow(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	tp := NewFixedTimeProvider(testutil.TestTime())
	repo := NewCostRepoWithTimeProvider(db, tp)
	ctx := context.Background()

	poiID := "00000000-0000-0000-0000-000000000060"
	for _, e := range []*model.CostEntry{
		{Service: model.ServiceLLM, Operation: "compare", Units: 1000, UnitCost: 0.000002, POIID: &poiID},
		{Service: model.ServiceGeocode, Operation: "find_place", Units: 1, UnitCost: 0.017, POIID: &poiID},
		{Service: model.ServiceMail, Operation: "send", Units: 1, UnitCost: 0.0004},
	} {
		_, err := repo.Append(ctx, e)
		require.NoError(t, err)
	}

	from := tp.Now().Add(-time.Hour)
	to := tp.Now().Add(time.Hour)

	total, err := repo.SumWindow(ctx, from, to)
	require.NoError(t, err)
	assert.InDelta(t, 0.002+0.017+0.0004, total, 1e-9)

	byService, err := repo.SumWindowByService(ctx, from, to)
	require.NoError(t, err)
	assert.InDelta(t, 0.002, byService[model.ServiceLLM], 1e-9)
	assert.InDelta(t, 0.017, byService[model.ServiceGeocode], 1e-9)

	// Window excludes entries outside [from, to).
	empty, err := repo.SumWindow(ctx, from.Add(-2*time.Hour), from)
	require.NoError(t, err)
	assert.Zero(t, empty)

	byPOI, err := repo.ListByPOI(ctx, poiID, 10)
	require.NoError(t, err)
	assert.Len(t, byPOI, 2)
}
