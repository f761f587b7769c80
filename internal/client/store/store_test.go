package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
)

func TestOpen_CreatesSchemaAndPragmas(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	for _, table := range []string{"foods", "entries", "weights", "water", "outbox", "metadata"} {
		var n int
		err := s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestOpen_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestReopen_KeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	s, err := Open(ctx, path)
	require.NoError(t, err)

	rec := &models.Record[models.DiaryEntry]{
		OwnerID: "u1",
		Data: models.DiaryEntry{
			Date: "2024-03-01", MealType: models.MealLunch, FoodLocalKey: 4,
			Quantity: models.Quantity{Grams: 150, Unit: "g"},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
	key, err := s.Entries.Add(ctx, rec)
	require.NoError(t, err)

	item := &models.OutboxItem{OwnerID: "u1", Entity: models.EntityEntry, Op: models.OpCreate, LocalKey: key}
	require.NoError(t, s.Outbox.Enqueue(ctx, item))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Entries.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *rec, *got)

	items, err := s.Outbox.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ChangeID, items[0].ChangeID)
}

func TestWithTx_RecordAndOutboxAreAtomic(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	write := func(entity models.Entity) error {
		return s.WithTx(ctx, func(tx *Store) error {
			key, err := tx.Weights.Add(ctx, &models.Record[models.Weight]{
				OwnerID: "u1", Data: models.Weight{Date: "2024-03-01", WeightKg: 70},
				CreatedAt: at, UpdatedAt: at,
			})
			if err != nil {
				return err
			}
			return tx.Outbox.Enqueue(ctx, &models.OutboxItem{OwnerID: "u1", Entity: entity, Op: models.OpCreate, LocalKey: key})
		})
	}

	require.ErrorIs(t, write("bogus"), models.ErrUnknownEntity)
	weights, err := s.Weights.QueryByOwner(ctx, "u1", models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, weights, "the record is rolled back with the failed enqueue")

	require.NoError(t, write(models.EntityWeight))
	weights, err = s.Weights.QueryByOwner(ctx, "u1", models.Filter{})
	require.NoError(t, err)
	require.Len(t, weights, 1)
	n, err := s.Outbox.PendingFor(ctx, "u1", models.EntityWeight, weights[0].LocalKey)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClosedStore_ReportsFault(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Weights.Add(ctx, &models.Record[models.Weight]{
		OwnerID: "u1", Data: models.Weight{Date: "2024-03-01", WeightKg: 70},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	require.ErrorIs(t, err, ErrStoreFault)
}

func TestClose_NilDB(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}
