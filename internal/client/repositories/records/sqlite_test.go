package records_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/records"
	"github.com/dmitrijs2005/nutrisync/internal/client/store"
	"github.com/dmitrijs2005/nutrisync/internal/dbx"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func weight(owner, day string, kg float64) *models.Record[models.Weight] {
	return &models.Record[models.Weight]{
		OwnerID:   owner,
		Data:      models.Weight{Date: day, WeightKg: kg},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
}

func TestAdd_AssignsIncreasingKeys(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	a := weight("u1", "2024-03-01", 70)
	b := weight("u1", "2024-03-02", 71)

	ka, err := s.Weights.Add(ctx, a)
	require.NoError(t, err)
	kb, err := s.Weights.Add(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, ka, a.LocalKey)
	assert.Greater(t, kb, ka)
}

func TestAdd_KeysAreNotReused(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	k1, err := s.Weights.Add(ctx, weight("u1", "2024-03-01", 70))
	require.NoError(t, err)
	require.NoError(t, s.Weights.Delete(ctx, k1))

	k2, err := s.Weights.Add(ctx, weight("u1", "2024-03-01", 70))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestAdd_SyncedWithoutRemoteIDIsRejected(t *testing.T) {
	s := setupStore(t)
	rec := weight("u1", "2024-03-01", 70)
	rec.Synced = true

	_, err := s.Weights.Add(context.Background(), rec)
	require.ErrorIs(t, err, dbx.ErrConflict)
}

func TestGet_Absent(t *testing.T) {
	s := setupStore(t)

	got, err := s.Foods.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindByRemoteID_ScopedByOwner(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	rec := weight("u1", "2024-03-01", 70)
	rec.RemoteID = "srv1"
	rec.Synced = true
	_, err := s.Weights.Add(ctx, rec)
	require.NoError(t, err)

	got, err := s.Weights.FindByRemoteID(ctx, "u1", "srv1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.LocalKey, got.LocalKey)
	assert.True(t, got.Synced)

	got, err = s.Weights.FindByRemoteID(ctx, "u2", "srv1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRemoteID_UniquePerOwnerAmongLiveRows(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	a := weight("u1", "2024-03-01", 70)
	a.RemoteID = "srv1"
	_, err := s.Weights.Add(ctx, a)
	require.NoError(t, err)

	dup := weight("u1", "2024-03-01", 70)
	dup.RemoteID = "srv1"
	_, err = s.Weights.Add(ctx, dup)
	require.ErrorIs(t, err, dbx.ErrConflict)

	other := weight("u2", "2024-03-01", 70)
	other.RemoteID = "srv1"
	_, err = s.Weights.Add(ctx, other)
	require.NoError(t, err)
}

func TestFindByRemoteID_PrefersPendingDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	a := weight("u1", "2024-03-01", 70)
	a.RemoteID = "srv1"
	_, err := s.Weights.Add(ctx, a)
	require.NoError(t, err)
	require.NoError(t, s.Weights.Update(ctx, a.LocalKey, models.Patch[models.Weight]{Deleted: models.Ptr(true)}))

	got, err := s.Weights.FindByRemoteID(ctx, "u1", "srv1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Deleted)
}

func TestQueryByOwner_Filters(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, r := range []*models.Record[models.Weight]{
		weight("u1", "2024-03-03", 71),
		weight("u1", "2024-03-01", 70),
		weight("u1", "2024-04-01", 69),
		weight("u2", "2024-03-01", 90),
	} {
		_, err := s.Weights.Add(ctx, r)
		require.NoError(t, err)
	}
	hidden := weight("u1", "2024-03-02", 1)
	hidden.Deleted = true
	_, err := s.Weights.Add(ctx, hidden)
	require.NoError(t, err)

	days := func(rs []models.Record[models.Weight]) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Data.Date)
		}
		return out
	}

	all, err := s.Weights.QueryByOwner(ctx, "u1", models.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-03-03", "2024-04-01"}, days(all))

	one, err := s.Weights.QueryByOwner(ctx, "u1", models.Filter{Date: "2024-03-03"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-03"}, days(one))

	march, err := s.Weights.QueryByOwner(ctx, "u1", models.Filter{From: "2024-03-01", To: "2024-03-31"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-03-03"}, days(march))

	none, err := s.Weights.QueryByOwner(ctx, "nobody", models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdate_PartialFields(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	rec := &models.Record[models.Food]{
		OwnerID:   "u1",
		Data:      models.Food{Name: "Oats", Macros: models.Macros{Kcal: 389}},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	key, err := s.Foods.Add(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, s.Foods.Update(ctx, key, models.Patch[models.Food]{RemoteID: models.Ptr("srv9")}))

	got, err := s.Foods.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "srv9", got.RemoteID)
	assert.Equal(t, "Oats", got.Data.Name)
	assert.Equal(t, t0, got.UpdatedAt, "store must not touch updatedAt")
	assert.False(t, got.Synced, "store must not infer synced")

	t1 := t0.Add(time.Hour)
	require.NoError(t, s.Foods.Update(ctx, key, models.Patch[models.Food]{
		Data:      &models.Food{Name: "Rolled oats"},
		UpdatedAt: &t1,
		Synced:    models.Ptr(true),
	}))

	got, err = s.Foods.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Rolled oats", got.Data.Name)
	assert.Equal(t, t1, got.UpdatedAt)
	assert.True(t, got.Synced)
	assert.Equal(t, t0, got.CreatedAt)
}

func TestUpdate_MovesDay(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	key, err := s.Weights.Add(ctx, weight("u1", "2024-03-01", 70))
	require.NoError(t, err)
	require.NoError(t, s.Weights.Update(ctx, key, models.Patch[models.Weight]{
		Data: &models.Weight{Date: "2024-03-05", WeightKg: 70},
	}))

	got, err := s.Weights.QueryByOwner(ctx, "u1", models.Filter{Date: "2024-03-05"})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestUpdate_Missing(t *testing.T) {
	s := setupStore(t)
	err := s.Water.Update(context.Background(), 7, models.Patch[models.Water]{Synced: models.Ptr(false)})
	require.ErrorIs(t, err, records.ErrNotFound)

	require.NoError(t, s.Water.Update(context.Background(), 7, models.Patch[models.Water]{}))
}

func TestDelete_HardRemovesAndIsIdempotent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	key, err := s.Water.Add(ctx, &models.Record[models.Water]{
		OwnerID: "u1", Data: models.Water{Date: "2024-03-01", AmountMl: 250},
		CreatedAt: t0, UpdatedAt: t0,
	})
	require.NoError(t, err)

	require.NoError(t, s.Water.Delete(ctx, key))
	require.NoError(t, s.Water.Delete(ctx, key))

	got, err := s.Water.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEntity(t *testing.T) {
	s := setupStore(t)
	assert.Equal(t, models.EntityEntry, s.Entries.Entity())
	assert.Equal(t, models.EntityWater, s.Water.Entity())
}
