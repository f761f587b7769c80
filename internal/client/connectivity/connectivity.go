// Package connectivity tells the client whether the server is reachable.
//
// The offline-first code only ever asks Signal.Online before an
// opportunistic network attempt. Who flips the signal is up to the host:
// a Switch set by hand, or a Watcher that pings the server periodically.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/logging"
)

type Signal interface {
	Online() bool
}

// Switch is a Signal set explicitly.
type Switch struct {
	online atomic.Bool
}

func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.online.Store(online)
	return s
}

func (s *Switch) Online() bool    { return s.online.Load() }
func (s *Switch) Set(online bool) { s.online.Store(online) }

// Pinger checks that the server is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher is a Signal kept up to date by pinging the server every
// interval. It starts offline until the first successful ping.
type Watcher struct {
	pinger      Pinger
	interval    time.Duration
	pingTimeout time.Duration
	log         logging.Logger

	online atomic.Bool

	mu       sync.Mutex
	onChange []func(online bool)
}

func NewWatcher(p Pinger, interval time.Duration, log logging.Logger) *Watcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Watcher{
		pinger:      p,
		interval:    interval,
		pingTimeout: 3 * time.Second,
		log:         log.With("component", "connectivity"),
	}
}

func (w *Watcher) Online() bool {
	return w.online.Load()
}

// OnChange registers fn to be called after every offline/online
// transition. Callbacks run on the watcher goroutine.
func (w *Watcher) OnChange(fn func(online bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Check pings once and updates the state.
func (w *Watcher) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, w.pingTimeout)
	err := w.pinger.Ping(pctx)
	cancel()

	online := err == nil
	if w.online.Swap(online) != online {
		if online {
			w.log.Info(ctx, "server reachable, switched to online mode")
		} else {
			w.log.Info(ctx, "server unreachable, switched to offline mode", "error", err)
		}
		w.mu.Lock()
		fns := append([]func(bool){}, w.onChange...)
		w.mu.Unlock()
		for _, fn := range fns {
			fn(online)
		}
	}
	return online
}

// Run checks immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
