package outbox_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/nutrisync/internal/client/store"
	"github.com/dmitrijs2005/nutrisync/internal/dbx"
)

func setupRepo(t *testing.T) (*outbox.SQLiteRepository, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.Outbox, s
}

func enqueue(t *testing.T, r outbox.Repository, item models.OutboxItem) models.OutboxItem {
	t.Helper()
	require.NoError(t, r.Enqueue(context.Background(), &item))
	return item
}

func TestEnqueue_FillsIdentity(t *testing.T) {
	r, _ := setupRepo(t)

	it := enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityFood, Op: models.OpCreate, LocalKey: 1,
		Payload: []byte(`{"name":"Oats"}`)})

	assert.NotZero(t, it.ID)
	assert.Len(t, it.ChangeID, 26)
	assert.False(t, it.CreatedAt.IsZero())
}

func TestEnqueue_RejectsUnknownEntity(t *testing.T) {
	r, _ := setupRepo(t)
	err := r.Enqueue(context.Background(), &models.OutboxItem{OwnerID: "u1", Entity: "steps", Op: models.OpCreate})
	require.ErrorIs(t, err, models.ErrUnknownEntity)
}

func TestListByOwner_IsFIFOEvenWithClockJitter(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()
	now := time.Now()

	create := enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityFood, Op: models.OpCreate, LocalKey: 1, CreatedAt: now})
	// the clock went backwards between the two writes
	update := enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityFood, Op: models.OpUpdate, LocalKey: 1, CreatedAt: now.Add(-time.Second)})
	enqueue(t, r, models.OutboxItem{OwnerID: "u2", Entity: models.EntityFood, Op: models.OpCreate, LocalKey: 2})

	items, err := r.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, create.ID, items[0].ID)
	assert.Equal(t, models.OpCreate, items[0].Op)
	assert.Equal(t, update.ID, items[1].ID)
}

func TestEnqueue_AllowsDuplicates(t *testing.T) {
	r, _ := setupRepo(t)
	item := models.OutboxItem{OwnerID: "u1", Entity: models.EntityWater, Op: models.OpUpdate, LocalKey: 3}

	enqueue(t, r, item)
	enqueue(t, r, item)

	n, err := r.Count(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecordFailure_KeepsItem(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()
	it := enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityWeight, Op: models.OpCreate, LocalKey: 1})

	require.NoError(t, r.RecordFailure(ctx, it.ID, errors.New("server unavailable")))
	require.NoError(t, r.RecordFailure(ctx, it.ID, errors.New("status 500")))

	items, err := r.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].RetryCount)
	assert.Equal(t, "status 500", items[0].LastError)

	require.NoError(t, r.RecordFailure(ctx, 999, errors.New("gone")))
}

func TestExhausted(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()
	bad := enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityEntry, Op: models.OpCreate, LocalKey: 1})
	enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityEntry, Op: models.OpCreate, LocalKey: 2})

	for i := 0; i < 6; i++ {
		require.NoError(t, r.RecordFailure(ctx, bad.ID, errors.New("rejected")))
	}

	items, err := r.Exhausted(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, bad.ID, items[0].ID)
}

func TestRemove(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()
	it := enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityFood, Op: models.OpCreate, LocalKey: 1})

	ok, err := r.Has(ctx, it.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.Remove(ctx, it.ID))
	require.NoError(t, r.Remove(ctx, it.ID))

	ok, err = r.Has(ctx, it.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := r.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveByLocalKey_AndPendingFor(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()
	enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityFood, Op: models.OpCreate, LocalKey: 1})
	enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityFood, Op: models.OpUpdate, LocalKey: 1})
	enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityWater, Op: models.OpCreate, LocalKey: 1})

	n, err := r.PendingFor(ctx, "u1", models.EntityFood, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := r.RemoveByLocalKey(ctx, "u1", models.EntityFood, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	left, err := r.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, models.EntityWater, left[0].Entity)
}

func TestRetarget_KeepsQueuePositions(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()
	first := enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityWeight, Op: models.OpUpdate, LocalKey: 7})
	enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityWeight, Op: models.OpCreate, LocalKey: 3})
	enqueue(t, r, models.OutboxItem{OwnerID: "u1", Entity: models.EntityWater, Op: models.OpCreate, LocalKey: 7})

	moved, err := r.Retarget(ctx, "u1", models.EntityWeight, 7, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	n, err := r.PendingFor(ctx, "u1", models.EntityWeight, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := r.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, first.ID, items[0].ID)
	assert.EqualValues(t, 3, items[0].LocalKey)
	assert.EqualValues(t, 7, items[2].LocalKey, "other entities are untouched")
}

func TestClosedStore_Faults(t *testing.T) {
	r, s := setupRepo(t)
	require.NoError(t, s.Close())

	_, err := r.ListByOwner(context.Background(), "u1")
	require.ErrorIs(t, err, dbx.ErrStoreFault)

	err = r.Enqueue(context.Background(), &models.OutboxItem{OwnerID: "u1", Entity: models.EntityFood, Op: models.OpCreate})
	require.ErrorIs(t, err, dbx.ErrStoreFault)
}
