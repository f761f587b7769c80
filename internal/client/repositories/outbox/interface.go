// Package outbox persists mutations that the server has not confirmed yet.
package outbox

import (
	"context"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
)

// Repository is the durable outbox queue. Items are listed in insertion
// order, which is the order they must be replayed in.
type Repository interface {
	// Enqueue appends item, filling in ID, ChangeID and CreatedAt when unset.
	// Duplicates are accepted.
	Enqueue(ctx context.Context, item *models.OutboxItem) error

	// ListByOwner returns the owner's items oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]models.OutboxItem, error)

	// Has reports whether the item is still queued.
	Has(ctx context.Context, id int64) (bool, error)

	// Remove deletes an item after its replay was confirmed.
	Remove(ctx context.Context, id int64) error

	// RecordFailure increments the retry counter and stores the error.
	RecordFailure(ctx context.Context, id int64, cause error) error

	// RemoveByLocalKey deletes every item targeting the given local record.
	RemoveByLocalKey(ctx context.Context, ownerID string, entity models.Entity, localKey int64) (int64, error)

	// Retarget moves the items targeting local record from onto local
	// record to, keeping their queue positions.
	Retarget(ctx context.Context, ownerID string, entity models.Entity, from, to int64) (int64, error)

	// PendingFor counts the items targeting the given local record.
	PendingFor(ctx context.Context, ownerID string, entity models.Entity, localKey int64) (int, error)

	// Count returns the number of queued items of the owner.
	Count(ctx context.Context, ownerID string) (int, error)

	// Exhausted lists items that failed more than threshold times.
	Exhausted(ctx context.Context, ownerID string, threshold int) ([]models.OutboxItem, error)
}
