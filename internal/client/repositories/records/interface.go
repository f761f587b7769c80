package records

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
)

// ErrNotFound is returned by Update when no row has the given local key.
var ErrNotFound = errors.New("record not found")

// Repository is the local store of one entity collection. It performs no
// network I/O; every error it returns other than ErrNotFound wraps
// dbx.ErrStoreFault.
type Repository[T models.Payload] interface {
	// Add inserts rec and returns the local key assigned to it. rec.LocalKey
	// is updated in place.
	Add(ctx context.Context, rec *models.Record[T]) (int64, error)

	// Get returns the record with the given local key, or nil if absent.
	// Rows pending remote deletion are returned too.
	Get(ctx context.Context, localKey int64) (*models.Record[T], error)

	// FindByRemoteID returns the owner's shadow of a remote record, or nil.
	FindByRemoteID(ctx context.Context, ownerID, remoteID string) (*models.Record[T], error)

	// QueryByOwner returns the owner's live records matching f, ordered by
	// day and local key.
	QueryByOwner(ctx context.Context, ownerID string, f models.Filter) ([]models.Record[T], error)

	// Update overwrites the fields set in p. It never touches UpdatedAt or
	// Synced unless p says so.
	Update(ctx context.Context, localKey int64, p models.Patch[T]) error

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, localKey int64) error
}
