package syncer

import (
	"sync"
	"time"
)

// State is the coarse engine state shown to the user.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Status is a snapshot of the engine state.
type Status struct {
	State State
	// LastError is set while State is StateError.
	LastError string
	Since     time.Time
}

// Listener receives every status transition. It is called synchronously
// from the goroutine running the sync and must not block.
type Listener func(Status)

type observers struct {
	mu     sync.Mutex
	status Status
	nextID int
	subs   map[int]Listener
}

func (o *observers) get() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *observers) set(s Status) {
	o.mu.Lock()
	o.status = s
	subs := make([]Listener, 0, len(o.subs))
	for id := 0; id < o.nextID; id++ {
		if l, ok := o.subs[id]; ok {
			subs = append(subs, l)
		}
	}
	o.mu.Unlock()

	for _, l := range subs {
		notify(l, s)
	}
}

func (o *observers) add(l Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]Listener)
	}
	id := o.nextID
	o.nextID++
	o.subs[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
		})
	}
}

// notify delivers best-effort: a panicking listener does not break the sync.
func notify(l Listener, s Status) {
	defer func() { _ = recover() }()
	l(s)
}
