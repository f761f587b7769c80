// Package memgateway is an in-memory stand-in for the nutrition server.
// It implements gateway.Gateway, honours idempotency keys, and lets tests
// inject failures or delays per call.
package memgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/client/gateway"
	"github.com/dmitrijs2005/nutrisync/internal/client/models"
)

// Call describes one request received by the server.
type Call struct {
	Op       string
	Entity   models.Entity
	RemoteID string
	ChangeID string
	Payload  models.Payload
}

// Interceptor runs before each call. A non-nil error fails the call without
// touching server state.
type Interceptor func(ctx context.Context, c Call) error

type stored struct {
	owner     string
	createdAt time.Time
	updatedAt time.Time
	data      json.RawMessage
	day       string
}

// Server is safe for concurrent use.
type Server struct {
	mu        sync.Mutex
	seq       int
	records   map[models.Entity]map[string]*stored
	acks      map[string]gateway.Ack
	calls     []Call
	down      bool
	intercept Interceptor
	now       func() time.Time
}

func New() *Server {
	return &Server{
		records: make(map[models.Entity]map[string]*stored),
		acks:    make(map[string]gateway.Ack),
		now:     time.Now,
	}
}

// SetClock replaces the clock used to stamp updatedAt.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetDown makes every call fail with gateway.ErrUnavailable.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *Server) Intercept(fn Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = fn
}

// Calls returns the calls received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CountCalls returns how many calls of op were received.
func (s *Server) CountCalls(op string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Seed stores a record as if another device had written it.
func (s *Server) Seed(entity models.Entity, owner, remoteID string, p models.Payload, updatedAt time.Time) {
	data, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(entity)[remoteID] = &stored{owner: owner, createdAt: updatedAt, updatedAt: updatedAt, data: data, day: p.Day()}
}

// Get returns the server copy of a record.
func (s *Server) Get(entity models.Entity, remoteID string) (gateway.RemoteRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.table(entity)[remoteID]
	if !ok {
		return gateway.RemoteRecord{}, false
	}
	return r.remote(remoteID), true
}

// Len returns the number of records of entity.
func (s *Server) Len(entity models.Entity) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table(entity))
}

func (s *Server) Create(ctx context.Context, m gateway.Mutation) (gateway.Ack, error) {
	if err := s.enter(ctx, Call{Op: "create", Entity: m.Entity, ChangeID: m.ChangeID, Payload: m.Payload}); err != nil {
		return gateway.Ack{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ack, ok := s.acks[m.ChangeID]; ok && m.ChangeID != "" {
		return ack, nil
	}

	data, err := json.Marshal(m.Payload)
	if err != nil {
		return gateway.Ack{}, err
	}
	s.seq++
	id := "srv" + strconv.Itoa(s.seq)
	at := s.now().UTC()
	s.table(m.Entity)[id] = &stored{owner: m.OwnerID, createdAt: at, updatedAt: at, data: data, day: m.Payload.Day()}

	ack := gateway.Ack{RemoteID: id, UpdatedAt: at}
	if m.ChangeID != "" {
		s.acks[m.ChangeID] = ack
	}
	return ack, nil
}

func (s *Server) Update(ctx context.Context, m gateway.Mutation) (gateway.Ack, error) {
	if err := s.enter(ctx, Call{Op: "update", Entity: m.Entity, RemoteID: m.RemoteID, ChangeID: m.ChangeID, Payload: m.Payload}); err != nil {
		return gateway.Ack{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.table(m.Entity)[m.RemoteID]
	if !ok {
		return gateway.Ack{}, &gateway.StatusError{Method: "PUT", Path: "/" + m.Entity.Collection() + "/" + m.RemoteID, Code: 404}
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return gateway.Ack{}, err
	}
	r.data = data
	r.day = m.Payload.Day()
	r.updatedAt = s.now().UTC()
	return gateway.Ack{RemoteID: m.RemoteID, UpdatedAt: r.updatedAt}, nil
}

func (s *Server) Delete(ctx context.Context, m gateway.Mutation) error {
	if err := s.enter(ctx, Call{Op: "delete", Entity: m.Entity, RemoteID: m.RemoteID, ChangeID: m.ChangeID}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table(m.Entity), m.RemoteID)
	return nil
}

func (s *Server) List(ctx context.Context, entity models.Entity, ownerID string, f models.Filter) ([]gateway.RemoteRecord, error) {
	if err := s.enter(ctx, Call{Op: "list", Entity: entity}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []gateway.RemoteRecord
	for id, r := range s.table(entity) {
		if r.owner != ownerID || !f.Match(r.day) {
			continue
		}
		out = append(out, r.remote(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out, nil
}

func (s *Server) Ping(ctx context.Context) error {
	return s.enter(ctx, Call{Op: "ping"})
}

func (s *Server) enter(ctx context.Context, c Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	down, hook := s.down, s.intercept
	s.mu.Unlock()

	if down {
		return fmt.Errorf("%w: %s %s", gateway.ErrUnavailable, c.Op, c.Entity)
	}
	if hook != nil {
		if err := hook(ctx, c); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Server) table(e models.Entity) map[string]*stored {
	t, ok := s.records[e]
	if !ok {
		t = make(map[string]*stored)
		s.records[e] = t
	}
	return t
}

func (r *stored) remote(id string) gateway.RemoteRecord {
	return gateway.RemoteRecord{
		RemoteID:  id,
		OwnerID:   r.owner,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
		Data:      append(json.RawMessage(nil), r.data...),
	}
}
