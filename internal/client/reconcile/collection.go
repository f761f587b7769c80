package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/records"
)

var (
	// ErrFoodPending means a diary entry references a food that has no
	// remote identity yet.
	ErrFoodPending = errors.New("referenced food is not synced yet")
	// ErrFoodMissing means a diary entry references a food that no longer
	// exists locally.
	ErrFoodMissing = errors.New("referenced food no longer exists")
)

// Shadow is the sync-relevant state of a local record.
type Shadow struct {
	LocalKey  int64
	RemoteID  string
	UpdatedAt time.Time
	Synced    bool
	Deleted   bool
}

// Collection is one entity's local records seen without their payload
// type, so the sync engine can walk every entity with the same code.
type Collection interface {
	Entity() models.Entity
	// Shadow returns nil when the record does not exist.
	Shadow(ctx context.Context, localKey int64) (*Shadow, error)
	// Ack returns the local key of a duplicate folded into the record, or 0.
	Ack(ctx context.Context, localKey int64, ack gateway.Ack, settled bool) (int64, error)
	// Forget hard-deletes a record whose remote delete was confirmed.
	Forget(ctx context.Context, localKey int64) error
	Merge(ctx context.Context, ownerID string, rr gateway.RemoteRecord) (Outcome, error)
}

type collection[T models.Payload] struct {
	repo records.Repository[T]
}

// NewCollection adapts a typed repository to Collection.
func NewCollection[T models.Payload](repo records.Repository[T]) Collection {
	return collection[T]{repo: repo}
}

func (c collection[T]) Entity() models.Entity {
	var zero T
	return zero.Entity()
}

func (c collection[T]) Shadow(ctx context.Context, localKey int64) (*Shadow, error) {
	rec, err := c.repo.Get(ctx, localKey)
	if err != nil || rec == nil {
		return nil, err
	}
	return &Shadow{
		LocalKey:  rec.LocalKey,
		RemoteID:  rec.RemoteID,
		UpdatedAt: rec.UpdatedAt,
		Synced:    rec.Synced,
		Deleted:   rec.Deleted,
	}, nil
}

func (c collection[T]) Ack(ctx context.Context, localKey int64, ack gateway.Ack, settled bool) (int64, error) {
	return Ack(ctx, c.repo, localKey, ack, settled)
}

func (c collection[T]) Forget(ctx context.Context, localKey int64) error {
	return c.repo.Delete(ctx, localKey)
}

func (c collection[T]) Merge(ctx context.Context, ownerID string, rr gateway.RemoteRecord) (Outcome, error) {
	return Merge(ctx, c.repo, ownerID, rr)
}

// ResolveFood returns a copy of a diary entry that references its food by
// remote identity instead of local key. Other payloads are returned as is.
func ResolveFood(ctx context.Context, foods Collection, p models.Payload) (models.Payload, error) {
	entry, ok := p.(models.DiaryEntry)
	if !ok || entry.Resolved() {
		return p, nil
	}

	food, err := foods.Shadow(ctx, entry.FoodLocalKey)
	if err != nil {
		return nil, err
	}
	switch {
	case food == nil || food.Deleted:
		return nil, fmt.Errorf("food %d: %w", entry.FoodLocalKey, ErrFoodMissing)
	case food.RemoteID == "":
		return nil, fmt.Errorf("food %d: %w", entry.FoodLocalKey, ErrFoodPending)
	}
	entry.FoodID = food.RemoteID
	entry.FoodLocalKey = 0
	return entry, nil
}
