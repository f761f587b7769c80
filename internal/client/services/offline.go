// Package services is the offline-first facade the application talks to.
//
// Every write lands in the local store, together with its outbox item, in
// one transaction before any network attempt. When the client is online
// the write is then sent to the server once and its item is dropped on
// success; otherwise the item waits for the sync engine. Only local store
// faults are returned to the caller.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/nutrisync/internal/client/connectivity"
	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/reconcile"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/records"
	"github.com/dmitrijs2005/nutrisync/internal/client/store"
	"github.com/dmitrijs2005/nutrisync/internal/dbx"
	"github.com/dmitrijs2005/nutrisync/internal/logging"
)

// ErrNotFound is returned for a local key that names no live record.
var ErrNotFound = errors.New("record not found")

// Result describes where a write ended up. Synced is true when the server
// confirmed it right away; otherwise it waits in the outbox.
type Result struct {
	LocalKey int64
	Synced   bool
	RemoteID string
}

// Options are shared by every service of a facade.
type Options struct {
	// Locker must be the one given to the sync engine of the same store.
	Locker sync.Locker
	Logger logging.Logger
	Clock  func() time.Time
}

// OfflineService is the offline-first facade of one entity collection.
type OfflineService[T models.Payload] struct {
	entity models.Entity
	store  *store.Store
	pick   func(*store.Store) records.Repository[T]
	repo   records.Repository[T]
	outbox outbox.Repository
	gw     gateway.Gateway
	signal connectivity.Signal
	foods  reconcile.Collection

	lock sync.Locker
	log  logging.Logger
	now  func() time.Time
}

// NewOfflineService builds the service of T over the repository pick
// selects from st. foods resolves the food references of diary entries and
// may be nil for other entities.
func NewOfflineService[T models.Payload](st *store.Store, pick func(*store.Store) records.Repository[T], gw gateway.Gateway,
	signal connectivity.Signal, foods reconcile.Collection, opts Options) *OfflineService[T] {

	var zero T
	s := &OfflineService[T]{
		entity: zero.Entity(),
		store:  st,
		pick:   pick,
		repo:   pick(st),
		outbox: st.Outbox,
		gw:     gw,
		signal: signal,
		foods:  foods,
		lock:   opts.Locker,
		log:    opts.Logger,
		now:    opts.Clock,
	}
	if s.lock == nil {
		s.lock = &sync.Mutex{}
	}
	if s.log == nil {
		s.log = logging.NewNop()
	}
	s.log = s.log.With("component", "services", "entity", s.entity)
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create stores data as a new record of the owner together with its queued
// create, and then tries to push it.
func (s *OfflineService[T]) Create(ctx context.Context, ownerID string, data T) (Result, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now().UTC()
	item := models.OutboxItem{
		ChangeID: ulid.Make().String(),
		OwnerID:  ownerID,
		Op:       models.OpCreate,
	}
	err := s.atomic(ctx, func(repo records.Repository[T], ob outbox.Repository) error {
		key, err := repo.Add(ctx, &models.Record[T]{
			OwnerID:   ownerID,
			Data:      data,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		item.LocalKey = key
		return s.enqueue(ctx, ob, &item, data)
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{LocalKey: item.LocalKey}

	payload, ok, err := s.pushable(ctx, ownerID, item.LocalKey, data)
	if err != nil || !ok {
		return res, err
	}
	ack, err := s.gw.Create(ctx, gateway.Mutation{
		Entity:   s.entity,
		OwnerID:  ownerID,
		ChangeID: item.ChangeID,
		Payload:  payload,
	})
	if err != nil || ack.RemoteID == "" {
		s.log.Debug(ctx, "create stays queued after failed push", "local_key", item.LocalKey, "error", err)
		return res, nil
	}
	return s.confirmed(ctx, item, ack)
}

// Update replaces the data of a live record, queues the change and tries
// to push it.
func (s *OfflineService[T]) Update(ctx context.Context, localKey int64, data T) (Result, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, err := s.live(ctx, localKey)
	if err != nil {
		return Result{}, err
	}
	at := s.stamp(rec.UpdatedAt)
	item := models.OutboxItem{
		ChangeID: ulid.Make().String(),
		OwnerID:  rec.OwnerID,
		Op:       models.OpUpdate,
		LocalKey: localKey,
		RemoteID: rec.RemoteID,
	}
	err = s.atomic(ctx, func(repo records.Repository[T], ob outbox.Repository) error {
		err := repo.Update(ctx, localKey, models.Patch[T]{
			Data:      &data,
			UpdatedAt: &at,
			Synced:    models.Ptr(false),
		})
		if err != nil {
			return err
		}
		return s.enqueue(ctx, ob, &item, data)
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{LocalKey: localKey, RemoteID: rec.RemoteID}

	if rec.RemoteID == "" {
		return res, nil
	}
	payload, ok, err := s.pushable(ctx, rec.OwnerID, localKey, data)
	if err != nil || !ok {
		return res, err
	}
	ack, err := s.gw.Update(ctx, gateway.Mutation{
		Entity:   s.entity,
		OwnerID:  rec.OwnerID,
		RemoteID: rec.RemoteID,
		ChangeID: item.ChangeID,
		Payload:  payload,
	})
	if err != nil {
		s.log.Debug(ctx, "update stays queued after failed push", "local_key", localKey, "error", err)
		return res, nil
	}
	return s.confirmed(ctx, item, ack)
}

// Delete removes a record. A record the server never saw is removed at
// once together with its queued mutations. Otherwise the record is hidden
// and removed after the server confirms the delete.
func (s *OfflineService[T]) Delete(ctx context.Context, localKey int64) (Result, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rec, err := s.repo.Get(ctx, localKey)
	if err != nil {
		return Result{}, err
	}
	if rec == nil {
		return Result{}, fmt.Errorf("%s %d: %w", s.entity, localKey, ErrNotFound)
	}
	res := Result{LocalKey: localKey, RemoteID: rec.RemoteID}

	if rec.RemoteID == "" {
		res.Synced = true
		return res, s.atomic(ctx, func(repo records.Repository[T], ob outbox.Repository) error {
			if _, err := ob.RemoveByLocalKey(ctx, rec.OwnerID, s.entity, localKey); err != nil {
				return err
			}
			return repo.Delete(ctx, localKey)
		})
	}

	item := models.OutboxItem{
		ChangeID: ulid.Make().String(),
		OwnerID:  rec.OwnerID,
		Entity:   s.entity,
		Op:       models.OpDelete,
		LocalKey: localKey,
		RemoteID: rec.RemoteID,
	}
	err = s.atomic(ctx, func(repo records.Repository[T], ob outbox.Repository) error {
		// pending updates are superseded by the delete
		if _, err := ob.RemoveByLocalKey(ctx, rec.OwnerID, s.entity, localKey); err != nil {
			return err
		}
		if !rec.Deleted {
			err := repo.Update(ctx, localKey, models.Patch[T]{
				UpdatedAt: models.Ptr(s.stamp(rec.UpdatedAt)),
				Synced:    models.Ptr(false),
				Deleted:   models.Ptr(true),
			})
			if err != nil {
				return err
			}
		}
		return ob.Enqueue(ctx, &item)
	})
	if err != nil || !s.signal.Online() {
		return res, err
	}

	err = s.gw.Delete(ctx, gateway.Mutation{
		Entity:   s.entity,
		OwnerID:  rec.OwnerID,
		RemoteID: rec.RemoteID,
		ChangeID: item.ChangeID,
	})
	if err != nil {
		s.log.Debug(ctx, "delete stays queued after failed push", "local_key", localKey, "error", err)
		return res, nil
	}
	res.Synced = true
	return res, s.atomic(ctx, func(repo records.Repository[T], ob outbox.Repository) error {
		if err := repo.Delete(ctx, localKey); err != nil {
			return err
		}
		return ob.Remove(ctx, item.ID)
	})
}

// Get returns a live record.
func (s *OfflineService[T]) Get(ctx context.Context, localKey int64) (*models.Record[T], error) {
	return s.live(ctx, localKey)
}

// Load returns the owner's records matching f. When online the server
// copy is fetched while the local store is read, and merged before the
// result is returned. A failed fetch falls back to the local result.
func (s *OfflineService[T]) Load(ctx context.Context, ownerID string, f models.Filter) ([]models.Record[T], error) {
	if !s.signal.Online() {
		return s.repo.QueryByOwner(ctx, ownerID, f)
	}

	var (
		local  []models.Record[T]
		remote []gateway.RemoteRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = s.repo.QueryByOwner(gctx, ownerID, f)
		return err
	})
	g.Go(func() error {
		var err error
		remote, err = s.gw.List(gctx, s.entity, ownerID, f)
		if err != nil {
			s.log.Debug(ctx, "load falls back to local records", "error", err)
			remote = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(remote) == 0 {
		return local, nil
	}

	changed, err := s.merge(ctx, ownerID, remote)
	if err != nil {
		return nil, err
	}
	if !changed {
		return local, nil
	}
	return s.repo.QueryByOwner(ctx, ownerID, f)
}

func (s *OfflineService[T]) merge(ctx context.Context, ownerID string, remote []gateway.RemoteRecord) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	changed := false
	for _, rr := range remote {
		if rr.OwnerID != "" && rr.OwnerID != ownerID {
			continue
		}
		out, err := reconcile.Merge(ctx, s.repo, ownerID, rr)
		if errors.Is(err, dbx.ErrStoreFault) {
			return changed, err
		}
		if err != nil {
			s.log.Debug(ctx, "skipping remote record", "remote_id", rr.RemoteID, "error", err)
			continue
		}
		if out == reconcile.Inserted || out == reconcile.Overwritten {
			changed = true
		}
	}
	return changed, nil
}

// pushable decides whether a write may go to the server right away and
// returns the payload to send. Writes wait for the outbox while the client
// is offline, while older mutations of the record are queued ahead of the
// one just enqueued, or while a diary entry's food is unknown to the server.
func (s *OfflineService[T]) pushable(ctx context.Context, ownerID string, localKey int64, data T) (models.Payload, bool, error) {
	if !s.signal.Online() {
		return nil, false, nil
	}
	pending, err := s.outbox.PendingFor(ctx, ownerID, s.entity, localKey)
	if err != nil {
		return nil, false, err
	}
	if pending > 1 {
		return nil, false, nil
	}

	var p models.Payload = data
	if s.foods == nil {
		return p, true, nil
	}
	p, err = reconcile.ResolveFood(ctx, s.foods, p)
	switch {
	case err == nil:
		return p, true, nil
	case errors.Is(err, dbx.ErrStoreFault):
		return nil, false, err
	default:
		s.log.Debug(ctx, "push postponed", "local_key", localKey, "reason", err)
		return nil, false, nil
	}
}

// confirmed applies the server's acknowledgement of item and drops it from
// the outbox. A conflicting acknowledgement leaves the item queued.
func (s *OfflineService[T]) confirmed(ctx context.Context, item models.OutboxItem, ack gateway.Ack) (Result, error) {
	res := Result{LocalKey: item.LocalKey, RemoteID: item.RemoteID}
	err := s.atomic(ctx, func(repo records.Repository[T], ob outbox.Repository) error {
		folded, err := reconcile.Ack(ctx, repo, item.LocalKey, ack, true)
		if err != nil {
			return err
		}
		if folded != 0 {
			if _, err := ob.Retarget(ctx, item.OwnerID, s.entity, folded, item.LocalKey); err != nil {
				return err
			}
		}
		if err := ob.Remove(ctx, item.ID); err != nil {
			return err
		}
		rec, err := repo.Get(ctx, item.LocalKey)
		if err != nil || rec == nil {
			return err
		}
		res.Synced, res.RemoteID = rec.Synced, rec.RemoteID
		return nil
	})
	if errors.Is(err, dbx.ErrConflict) {
		s.log.Warn(ctx, "acknowledgement left queued", "local_key", item.LocalKey, "error", err)
		return Result{LocalKey: item.LocalKey, RemoteID: item.RemoteID}, nil
	}
	return res, err
}

func (s *OfflineService[T]) enqueue(ctx context.Context, ob outbox.Repository, item *models.OutboxItem, data T) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", s.entity, err)
	}
	item.Entity = s.entity
	item.Payload = payload
	return ob.Enqueue(ctx, item)
}

// atomic runs fn with the service's repository and the outbox bound to one
// transaction.
func (s *OfflineService[T]) atomic(ctx context.Context, fn func(repo records.Repository[T], ob outbox.Repository) error) error {
	return s.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(s.pick(tx), tx.Outbox)
	})
}

func (s *OfflineService[T]) live(ctx context.Context, localKey int64) (*models.Record[T], error) {
	rec, err := s.repo.Get(ctx, localKey)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Deleted {
		return nil, fmt.Errorf("%s %d: %w", s.entity, localKey, ErrNotFound)
	}
	return rec, nil
}

// stamp returns the time of a local edit, never earlier than the previous
// edit of the same record.
func (s *OfflineService[T]) stamp(prev time.Time) time.Time {
	now := s.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}
