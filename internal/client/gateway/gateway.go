// Package gateway talks to the nutrition server's REST API. It is a
// stateless transport: every call maps to one HTTP request (plus retries
// for reads) and owns its own timeout.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
)

// Gateway is the remote side of synchronization.
type Gateway interface {
	Create(ctx context.Context, m Mutation) (Ack, error)
	Update(ctx context.Context, m Mutation) (Ack, error)
	// Delete succeeds when the record is gone, including when the server
	// no longer knows it.
	Delete(ctx context.Context, m Mutation) error
	List(ctx context.Context, entity models.Entity, ownerID string, f models.Filter) ([]RemoteRecord, error)
	Ping(ctx context.Context) error
}

// Mutation is one write sent to the server.
type Mutation struct {
	Entity   models.Entity
	OwnerID  string
	RemoteID string
	// ChangeID is sent as the idempotency key so a retried create does
	// not produce a second remote record.
	ChangeID string
	Payload  models.Payload
}

// Ack is the server's confirmation of a write.
type Ack struct {
	RemoteID  string
	UpdatedAt time.Time
}

// RemoteRecord is a record as reported by the server. Data holds the
// entity payload as JSON; decode it with models.DecodePayload.
type RemoteRecord struct {
	RemoteID  string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Data      json.RawMessage
}
