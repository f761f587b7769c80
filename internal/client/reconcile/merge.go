// Package reconcile folds server state into the local store.
//
// Merge applies whole-record last-write-wins: a remote copy replaces the
// local shadow when its updatedAt is not older, so the server wins ties,
// and an older remote copy never regresses a local edit. Ack applies a
// server confirmation of a replayed write.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/records"
)

// Outcome says what Merge did with a remote record.
type Outcome int

const (
	// Inserted means no shadow existed and one was created.
	Inserted Outcome = iota
	// Overwritten means the remote copy replaced the shadow.
	Overwritten
	// Unchanged means the shadow already matched the remote copy.
	Unchanged
	// KeptLocal means the shadow holds a newer local edit.
	KeptLocal
	// PendingDelete means the shadow is waiting for its remote delete.
	PendingDelete
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Overwritten:
		return "overwritten"
	case Unchanged:
		return "unchanged"
	case KeptLocal:
		return "kept_local"
	case PendingDelete:
		return "pending_delete"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Merge folds one remote record of the owner into repo.
func Merge[T models.Payload](ctx context.Context, repo records.Repository[T], ownerID string, rr gateway.RemoteRecord) (Outcome, error) {
	var data T
	if err := json.Unmarshal(rr.Data, &data); err != nil {
		return 0, fmt.Errorf("decode remote %s %s: %w", data.Entity(), rr.RemoteID, err)
	}
	remoteAt := remoteTime(rr)

	local, err := repo.FindByRemoteID(ctx, ownerID, rr.RemoteID)
	if err != nil {
		return 0, err
	}

	if local == nil {
		created := rr.CreatedAt
		if created.IsZero() {
			created = remoteAt
		}
		_, err := repo.Add(ctx, &models.Record[T]{
			RemoteID:  rr.RemoteID,
			OwnerID:   ownerID,
			Data:      data,
			CreatedAt: created,
			UpdatedAt: remoteAt,
			Synced:    true,
		})
		if err != nil {
			return 0, err
		}
		return Inserted, nil
	}

	switch {
	case local.Deleted:
		return PendingDelete, nil
	case remoteAt.Before(local.UpdatedAt):
		return KeptLocal, nil
	case local.Synced && remoteAt.Equal(local.UpdatedAt):
		return Unchanged, nil
	}

	err = repo.Update(ctx, local.LocalKey, models.Patch[T]{
		Data:      &data,
		UpdatedAt: &remoteAt,
		Synced:    models.Ptr(true),
	})
	if err != nil {
		return 0, err
	}
	return Overwritten, nil
}

// remoteTime is the record's updatedAt, falling back to createdAt and then
// to the Unix epoch so that any local edit beats a record without times.
func remoteTime(rr gateway.RemoteRecord) time.Time {
	switch {
	case !rr.UpdatedAt.IsZero():
		return rr.UpdatedAt
	case !rr.CreatedAt.IsZero():
		return rr.CreatedAt
	default:
		return time.Unix(0, 0).UTC()
	}
}

// Ack records a server confirmation for the record at localKey.
//
// When settled is true no further outbox items target the record, so it
// becomes synced with the server's updatedAt. Otherwise only the remote
// identity is stored and updatedAt is moved to the later of the two clocks,
// which keeps a pull from overwriting the edits still waiting in the outbox.
//
// A pull may already have stored the acknowledged remote record under
// another local key, for instance when the response to a create was lost.
// That duplicate is folded into the record and its local key is returned so
// the caller can move the duplicate's queued mutations over.
func Ack[T models.Payload](ctx context.Context, repo records.Repository[T], localKey int64, ack gateway.Ack, settled bool) (int64, error) {
	rec, err := repo.Get(ctx, localKey)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, fmt.Errorf("ack for %d: %w", localKey, records.ErrNotFound)
	}

	var (
		p      models.Patch[T]
		folded int64
	)
	if rec.RemoteID == "" && ack.RemoteID != "" {
		dup, err := repo.FindByRemoteID(ctx, rec.OwnerID, ack.RemoteID)
		if err != nil {
			return 0, err
		}
		if dup != nil && dup.LocalKey != localKey {
			if err := repo.Delete(ctx, dup.LocalKey); err != nil {
				return 0, err
			}
			folded = dup.LocalKey
			settled = settled && fold(rec, dup, &p)
		}
		p.RemoteID = &ack.RemoteID
	}

	deleted := rec.Deleted || (p.Deleted != nil && *p.Deleted)
	at := ack.UpdatedAt
	switch {
	case settled && !deleted && (rec.RemoteID != "" || ack.RemoteID != ""):
		if at.IsZero() {
			at = rec.UpdatedAt
		}
		p.UpdatedAt = &at
		p.Synced = models.Ptr(true)
	case at.After(rec.UpdatedAt):
		p.UpdatedAt = &at
	}

	return folded, repo.Update(ctx, localKey, p)
}

// fold carries the local edits of dup over to rec with last-write-wins and
// reports whether rec may still settle. A synced duplicate holds nothing the
// acknowledged write has not replaced on the server.
func fold[T models.Payload](rec, dup *models.Record[T], p *models.Patch[T]) bool {
	if dup.Synced {
		return true
	}
	switch {
	case dup.Deleted:
		p.Deleted = models.Ptr(true)
	case dup.UpdatedAt.After(rec.UpdatedAt):
		p.Data = &dup.Data
	default:
		return true
	}
	if dup.UpdatedAt.After(rec.UpdatedAt) {
		rec.UpdatedAt = dup.UpdatedAt
		p.UpdatedAt = &dup.UpdatedAt
	}
	return false
}
