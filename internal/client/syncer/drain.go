package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/reconcile"
	"github.com/dmitrijs2005/nutrisync/internal/dbx"
	"github.com/dmitrijs2005/nutrisync/internal/logging"
)

var (
	errNoRemoteID   = errors.New("record has no remote identity")
	errAckWithoutID = errors.New("create acknowledged without remote id")
	errUnknownOp    = errors.New("unknown outbox operation")
)

// batch is a run of outbox items with the same operation and target. It is
// replayed once, at the position of its first item, with the payload of its
// newest item.
type batch struct {
	items []models.OutboxItem
}

func (b *batch) head() models.OutboxItem   { return b.items[0] }
func (b *batch) latest() models.OutboxItem { return b.items[len(b.items)-1] }

func plan(items []models.OutboxItem) []*batch {
	var (
		out   []*batch
		byKey = make(map[string]*batch)
	)
	for _, it := range items {
		key := string(it.Op) + " " + it.Target()
		if b, ok := byKey[key]; ok {
			b.items = append(b.items, it)
			continue
		}
		b := &batch{items: []models.OutboxItem{it}}
		byKey[key] = b
		out = append(out, b)
	}
	return out
}

// result is the fate of one replayed batch. An error returned next to it
// is a store fault and aborts the drain. moved names a target whose items
// now belong to the replayed record.
type result struct {
	failure  error
	deferred error
	moved    string
}

func (e *Engine) drain(ctx context.Context, log logging.Logger, ownerID string, rep *Report) error {
	items, err := e.outbox.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	// a target whose item failed or was deferred keeps its later items
	// queued so they are not replayed out of order
	blocked := make(map[string]bool)

	for _, b := range plan(items) {
		head := b.head()
		target := head.Target()
		if blocked[target] {
			continue
		}

		var (
			res  result
			gone bool
		)
		err := e.locked(func() error {
			var err error
			if gone, err = e.refresh(ctx, b); err != nil || gone {
				return err
			}
			res, err = e.replay(ctx, ownerID, b)
			return err
		})
		if errors.Is(err, dbx.ErrConflict) {
			res, err = result{failure: err}, nil
		}
		if err != nil {
			return err
		}
		if gone {
			continue
		}
		// moved items keep their old queue positions, so the merged target
		// waits for the next run to be replayed in order
		if res.moved != "" {
			blocked[res.moved] = true
			blocked[target] = true
		}

		switch {
		case res.deferred != nil:
			rep.Deferred++
			blocked[target] = true
			log.Debug(ctx, "outbox item deferred", "entity", head.Entity, "op", head.Op, "target", target, "reason", res.deferred)
		case res.failure != nil:
			rep.Failed++
			blocked[target] = true
			if err := e.recordFailure(ctx, log, b, res.failure, rep); err != nil {
				return err
			}
		default:
			rep.Replayed++
		}
	}
	return nil
}

// refresh drops the items a concurrent writer confirmed after the queue was
// listed and reports whether none are left.
func (e *Engine) refresh(ctx context.Context, b *batch) (bool, error) {
	kept := b.items[:0]
	for _, it := range b.items {
		ok, err := e.outbox.Has(ctx, it.ID)
		if err != nil {
			return false, err
		}
		if ok {
			kept = append(kept, it)
		}
	}
	b.items = kept
	return len(b.items) == 0, nil
}

func (e *Engine) recordFailure(ctx context.Context, log logging.Logger, b *batch, cause error, rep *Report) error {
	head := b.head()
	exhausted := false
	for _, it := range b.items {
		if err := e.outbox.RecordFailure(ctx, it.ID, cause); err != nil {
			return err
		}
		// reported once, on the failure that crosses the threshold
		if it.RetryCount == e.maxRetries {
			exhausted = true
		}
	}

	log.Warn(ctx, "outbox replay failed",
		"entity", head.Entity, "op", head.Op, "target", head.Target(),
		"attempt", head.RetryCount+1, "error", cause)
	if exhausted {
		rep.Exhausted++
		log.Warn(ctx, "outbox item needs attention",
			"entity", head.Entity, "op", head.Op, "target", head.Target(),
			"change_id", head.ChangeID, "max_retries", e.maxRetries)
	}
	return nil
}

func (e *Engine) replay(ctx context.Context, ownerID string, b *batch) (result, error) {
	head := b.head()
	col, err := e.collection(head.Entity)
	if err != nil {
		return result{failure: err}, nil
	}

	var sh *reconcile.Shadow
	if head.LocalKey != 0 {
		if sh, err = col.Shadow(ctx, head.LocalKey); err != nil {
			return result{}, err
		}
	}

	switch head.Op {
	case models.OpCreate:
		return e.replayCreate(ctx, ownerID, col, sh, b)
	case models.OpUpdate:
		return e.replayUpdate(ctx, ownerID, col, sh, b)
	case models.OpDelete:
		return e.replayDelete(ctx, ownerID, col, sh, b)
	default:
		return result{failure: fmt.Errorf("%w: %q", errUnknownOp, string(head.Op))}, nil
	}
}

func (e *Engine) replayCreate(ctx context.Context, ownerID string, col reconcile.Collection, sh *reconcile.Shadow, b *batch) (result, error) {
	// the record is gone or its create was already acknowledged
	if sh == nil || sh.RemoteID != "" {
		return result{}, e.remove(ctx, b)
	}

	payload, res, err := e.payload(ctx, b)
	if err != nil || res != (result{}) {
		return res, err
	}

	head := b.head()
	ack, err := e.gw.Create(ctx, gateway.Mutation{
		Entity:   head.Entity,
		OwnerID:  ownerID,
		ChangeID: head.ChangeID,
		Payload:  payload,
	})
	if err != nil {
		return result{failure: err}, nil
	}
	if ack.RemoteID == "" {
		return result{failure: errAckWithoutID}, nil
	}

	return e.confirm(ctx, ownerID, col, b, ack)
}

func (e *Engine) replayUpdate(ctx context.Context, ownerID string, col reconcile.Collection, sh *reconcile.Shadow, b *batch) (result, error) {
	head := b.head()
	if head.LocalKey != 0 && (sh == nil || sh.Deleted) {
		return result{}, e.remove(ctx, b)
	}

	remoteID := head.RemoteID
	if sh != nil && sh.RemoteID != "" {
		remoteID = sh.RemoteID
	}
	if remoteID == "" {
		return result{failure: errNoRemoteID}, nil
	}

	payload, res, err := e.payload(ctx, b)
	if err != nil || res != (result{}) {
		return res, err
	}

	ack, err := e.gw.Update(ctx, gateway.Mutation{
		Entity:   head.Entity,
		OwnerID:  ownerID,
		RemoteID: remoteID,
		ChangeID: b.latest().ChangeID,
		Payload:  payload,
	})
	if err != nil {
		return result{failure: err}, nil
	}
	if sh == nil {
		return result{}, e.remove(ctx, b)
	}
	return e.confirm(ctx, ownerID, col, b, ack)
}

func (e *Engine) replayDelete(ctx context.Context, ownerID string, col reconcile.Collection, sh *reconcile.Shadow, b *batch) (result, error) {
	head := b.head()
	remoteID := head.RemoteID
	if sh != nil && sh.RemoteID != "" {
		remoteID = sh.RemoteID
	}

	if remoteID != "" {
		err := e.gw.Delete(ctx, gateway.Mutation{
			Entity:   head.Entity,
			OwnerID:  ownerID,
			RemoteID: remoteID,
			ChangeID: head.ChangeID,
		})
		if err != nil {
			return result{failure: err}, nil
		}
	}

	if sh != nil {
		if err := col.Forget(ctx, sh.LocalKey); err != nil {
			return result{}, err
		}
		if _, err := e.outbox.RemoveByLocalKey(ctx, ownerID, head.Entity, sh.LocalKey); err != nil {
			return result{}, err
		}
	}
	return result{}, e.remove(ctx, b)
}

// payload decodes the newest payload of the batch and resolves diary
// entries' food references.
func (e *Engine) payload(ctx context.Context, b *batch) (models.Payload, result, error) {
	p, err := b.latest().Decode()
	if err != nil {
		return nil, result{failure: err}, nil
	}
	if p == nil {
		return nil, result{failure: fmt.Errorf("%s without payload", b.head().Op)}, nil
	}

	foods, err := e.collection(models.EntityFood)
	if err != nil {
		return p, result{}, nil
	}
	p, err = reconcile.ResolveFood(ctx, foods, p)
	switch {
	case err == nil:
		return p, result{}, nil
	case errors.Is(err, reconcile.ErrFoodPending):
		return nil, result{deferred: err}, nil
	case errors.Is(err, dbx.ErrStoreFault):
		return nil, result{}, err
	default:
		return nil, result{failure: err}, nil
	}
}

// confirm stores the server's acknowledgement and drops the batch. The
// record becomes synced only when nothing else is queued for it. Items of a
// duplicate folded into the record are moved onto it and wait for the next
// run.
func (e *Engine) confirm(ctx context.Context, ownerID string, col reconcile.Collection, b *batch, ack gateway.Ack) (result, error) {
	head := b.head()
	pending, err := e.outbox.PendingFor(ctx, ownerID, head.Entity, head.LocalKey)
	if err != nil {
		return result{}, err
	}
	settled := pending <= len(b.items)

	folded, err := col.Ack(ctx, head.LocalKey, ack, settled)
	if err != nil {
		return result{}, err
	}
	var res result
	if folded != 0 {
		if _, err := e.outbox.Retarget(ctx, ownerID, head.Entity, folded, head.LocalKey); err != nil {
			return result{}, err
		}
		res.moved = models.OutboxItem{Entity: head.Entity, LocalKey: folded}.Target()
	}
	return res, e.remove(ctx, b)
}

func (e *Engine) remove(ctx context.Context, b *batch) error {
	for _, it := range b.items {
		if err := e.outbox.Remove(ctx, it.ID); err != nil {
			return err
		}
	}
	return nil
}
