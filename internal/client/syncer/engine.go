// Package syncer drives synchronization between the local store and the
// server. A sync first drains the outbox in FIFO order, replaying every
// pending mutation, and then pulls each collection and merges it into the
// local store with last-write-wins.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/client/connectivity"
	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/reconcile"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/nutrisync/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/nutrisync/internal/logging"
)

const (
	DefaultMaxRetries = 5
	DefaultPullWindow = 30 * 24 * time.Hour
)

// ErrPullFailed is returned when the remote state could not be fetched.
var ErrPullFailed = errors.New("pull failed")

// Options tunes an Engine. Zero values pick defaults.
type Options struct {
	// MaxRetries is the number of failed replays after which an outbox
	// item is reported as exhausted. Items are never dropped.
	MaxRetries int
	// PullWindow bounds the pull of dated collections to the most recent
	// days. Foods are always pulled in full.
	PullWindow time.Duration
	// Locker serializes the engine's store writes with other writers of
	// the same store, such as the offline-first services.
	Locker sync.Locker
	Logger logging.Logger
	Clock  func() time.Time
}

// Engine is the sync engine of one local store. It is safe for concurrent
// use; at most one sync runs at a time.
type Engine struct {
	gw          gateway.Gateway
	outbox      outbox.Repository
	meta        metadata.Repository
	signal      connectivity.Signal
	collections map[models.Entity]reconcile.Collection

	maxRetries int
	pullWindow time.Duration
	lock       sync.Locker
	log        logging.Logger
	now        func() time.Time

	running atomic.Bool
	obs     observers
}

// New builds an engine over the given collections, which must include
// every entity in models.Entities.
func New(gw gateway.Gateway, ob outbox.Repository, meta metadata.Repository, signal connectivity.Signal,
	collections []reconcile.Collection, opts Options) *Engine {

	e := &Engine{
		gw:          gw,
		outbox:      ob,
		meta:        meta,
		signal:      signal,
		collections: make(map[models.Entity]reconcile.Collection, len(collections)),
		maxRetries:  opts.MaxRetries,
		pullWindow:  opts.PullWindow,
		lock:        opts.Locker,
		log:         opts.Logger,
		now:         opts.Clock,
	}
	for _, c := range collections {
		e.collections[c.Entity()] = c
	}
	if e.maxRetries <= 0 {
		e.maxRetries = DefaultMaxRetries
	}
	if e.pullWindow <= 0 {
		e.pullWindow = DefaultPullWindow
	}
	if e.lock == nil {
		e.lock = &sync.Mutex{}
	}
	if e.log == nil {
		e.log = logging.NewNop()
	}
	e.log = e.log.With("component", "syncer")
	if e.now == nil {
		e.now = time.Now
	}
	e.obs.status = Status{State: StateIdle, Since: e.now()}
	return e
}

// Skip explains why Sync did nothing.
type Skip string

const (
	SkipNone     Skip = ""
	SkipInFlight Skip = "sync already in progress"
	SkipOffline  Skip = "offline"
)

// Report summarizes one sync run.
type Report struct {
	Skipped Skip

	Replayed  int
	Failed    int
	Deferred  int
	Exhausted int

	Inserted    int
	Overwritten int
	KeptLocal   int
	Unchanged   int
}

// Status returns the current state.
func (e *Engine) Status() Status {
	return e.obs.get()
}

// Subscribe registers l for status transitions and returns a function
// that unregisters it.
func (e *Engine) Subscribe(l Listener) func() {
	return e.obs.add(l)
}

// Sync drains the owner's outbox and pulls remote state.
//
// A call made while another sync is running, or while the connectivity
// signal reports offline, returns immediately with a Report saying why.
// Once started a sync runs to completion even if ctx is canceled; network
// calls are bounded by the gateway's own timeouts. The returned error is
// non-nil when the run ended in StateError.
func (e *Engine) Sync(ctx context.Context, ownerID string) (Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Report{Skipped: SkipInFlight}, nil
	}
	defer e.running.Store(false)

	if !e.signal.Online() {
		return Report{Skipped: SkipOffline}, nil
	}

	ctx = context.WithoutCancel(ctx)
	log := e.log.With("owner", ownerID)
	e.setState(StateSyncing, nil)
	started := e.now()

	var rep Report
	if err := e.drain(ctx, log, ownerID, &rep); err != nil {
		return rep, e.fail(ctx, log, err)
	}
	if err := e.pull(ctx, log, ownerID, &rep); err != nil {
		return rep, e.fail(ctx, log, err)
	}
	if err := e.meta.SetTime(ctx, metadata.LastSyncKey(ownerID), e.now()); err != nil {
		return rep, e.fail(ctx, log, err)
	}

	log.Info(ctx, "sync finished",
		"replayed", rep.Replayed, "failed", rep.Failed, "deferred", rep.Deferred,
		"inserted", rep.Inserted, "overwritten", rep.Overwritten, "kept_local", rep.KeptLocal,
		"took", e.now().Sub(started))
	e.setState(StateIdle, nil)
	return rep, nil
}

// Run syncs every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, ownerID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = e.Sync(ctx, ownerID)
		case <-ctx.Done():
			return
		}
	}
}

// Stats is the owner's sync backlog.
type Stats struct {
	Status     Status
	Pending    int
	Exhausted  []models.OutboxItem
	LastSyncAt time.Time
}

func (e *Engine) Stats(ctx context.Context, ownerID string) (Stats, error) {
	pending, err := e.outbox.Count(ctx, ownerID)
	if err != nil {
		return Stats{}, err
	}
	exhausted, err := e.outbox.Exhausted(ctx, ownerID, e.maxRetries)
	if err != nil {
		return Stats{}, err
	}
	last, err := e.meta.GetTime(ctx, metadata.LastSyncKey(ownerID))
	if err != nil {
		return Stats{}, err
	}
	return Stats{Status: e.Status(), Pending: pending, Exhausted: exhausted, LastSyncAt: last}, nil
}

func (e *Engine) fail(ctx context.Context, log logging.Logger, err error) error {
	log.Error(ctx, "sync failed", "error", err)
	e.setState(StateError, err)
	return err
}

func (e *Engine) setState(s State, err error) {
	st := Status{State: s, Since: e.now()}
	if err != nil {
		st.LastError = err.Error()
	}
	e.obs.set(st)
}

func (e *Engine) collection(entity models.Entity) (reconcile.Collection, error) {
	c, ok := e.collections[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownEntity, string(entity))
	}
	return c, nil
}

func (e *Engine) locked(fn func() error) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	return fn()
}
