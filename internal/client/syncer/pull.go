package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/reconcile"
	"github.com/dmitrijs2005/nutrisync/internal/dbx"
	"github.com/dmitrijs2005/nutrisync/internal/logging"
)

// pull fetches every collection and merges it. A collection that cannot be
// fetched does not stop the others; the combined error is returned at the
// end.
func (e *Engine) pull(ctx context.Context, log logging.Logger, ownerID string, rep *Report) error {
	var errs []error

	for _, entity := range models.Entities {
		col, ok := e.collections[entity]
		if !ok {
			continue
		}

		remote, err := e.gw.List(ctx, entity, ownerID, e.pullFilter(entity))
		if err != nil {
			log.Warn(ctx, "pull failed", "entity", entity, "error", err)
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrPullFailed, entity.Collection(), err))
			continue
		}

		for _, rr := range remote {
			if rr.OwnerID != "" && rr.OwnerID != ownerID {
				continue
			}

			var out reconcile.Outcome
			err := e.locked(func() error {
				var err error
				out, err = col.Merge(ctx, ownerID, rr)
				return err
			})
			if errors.Is(err, dbx.ErrStoreFault) {
				return err
			}
			if err != nil {
				log.Warn(ctx, "skipping remote record", "entity", entity, "remote_id", rr.RemoteID, "error", err)
				continue
			}
			rep.count(out)
		}
	}

	return errors.Join(errs...)
}

// pullFilter limits dated collections to the pull window.
func (e *Engine) pullFilter(entity models.Entity) models.Filter {
	if entity == models.EntityFood {
		return models.Filter{}
	}
	days := int(e.pullWindow / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	return models.Window(e.now(), days)
}

func (r *Report) count(o reconcile.Outcome) {
	switch o {
	case reconcile.Inserted:
		r.Inserted++
	case reconcile.Overwritten:
		r.Overwritten++
	case reconcile.KeptLocal, reconcile.PendingDelete:
		r.KeptLocal++
	case reconcile.Unchanged:
		r.Unchanged++
	}
}
