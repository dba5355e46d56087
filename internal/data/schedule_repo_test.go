package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/core"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/domain/model"
	"github.com/PrinzMichiDE/tourismusgpt-sub000/internal/testutil"
)

func newSchedule(name string) *model.ScheduleConfig {
	return &model.ScheduleConfig{
		Name:     name,
		CronExpr: "0 3 * * 1",
		Active:   true,
		Filter:   model.POIFilter{Region: "Bayern", Limit: 100},
	}
}

func TestScheduleRepo_CreateAndFindDue(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewScheduleRepo(db)
	ctx := context.Background()

	// Never-run schedule (next_run_at NULL) is due immediately.
	fresh, err := repo.Create(ctx, newSchedule("bayern-weekly"))
	require.NoError(t, err)
	assert.Equal(t, "Bayern", fresh.Filter.Region)

	future := newSchedule("hamburg-weekly")
	nextRun := time.Now().Add(time.Hour)
	future.NextRunAt = &nextRun
	_, err = repo.Create(ctx, future)
	require.NoError(t, err)

	due, err := repo.FindDue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, fresh.ID, due[0].ID)

	due, err = repo.FindDue(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestScheduleRepo_RecordRun(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewScheduleRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSchedule("thueringen-weekly"))
	require.NoError(t, err)

	ranAt := time.Now()
	nextRun := ranAt.Add(7 * 24 * time.Hour)
	require.NoError(t, repo.RecordRun(ctx, core.RecordScheduleRunParams{
		ScheduleID: created.ID,
		RanAt:      ranAt,
		NextRunAt:  &nextRun,
	}))

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)

	// No longer due until the next slot.
	due, err := repo.FindDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	err = repo.RecordRun(ctx, core.RecordScheduleRunParams{
		ScheduleID: "00000000-0000-0000-0000-0000000000ff",
		RanAt:      ranAt,
	})
	require.ErrorIs(t, err, model.ErrScheduleNotFound)
}

func TestScheduleRepo_TryWithScheduleLock(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupAutoDB(t)
	repo := NewScheduleRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSchedule("lock-test"))
	require.NoError(t, err)

	t.Run("runs fn when lock is free", func(t *testing.T) {
		ran := false
		acquired, err := repo.TryWithScheduleLock(ctx, created.ID, func(context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, acquired)
		assert.True(t, ran)
	})

	t.Run("fn error rolls back and propagates", func(t *testing.T) {
		sentinel := errors.New("fire failed")
		acquired, err := repo.TryWithScheduleLock(ctx, created.ID, func(context.Context) error {
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)
		assert.True(t, acquired)
	})

	t.Run("held lock skips the fn", func(t *testing.T) {
		inLock := make(chan struct{})
		release := make(chan struct{})
		done := make(chan error, 1)

		go func() {
			_, lockErr := repo.TryWithScheduleLock(ctx, created.ID, func(context.Context) error {
				close(inLock)
				<-release
				return nil
			})
			done <- lockErr
		}()

		<-inLock
		acquired, err := repo.TryWithScheduleLock(ctx, created.ID, func(context.Context) error {
			t.Error("fn must not run while the lock is held")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, acquired)

		close(release)
		require.NoError(t, <-done)
	})
}
