package models

import (
	"fmt"
	"time"
)

// OutboxItem is a mutation that has not been confirmed by the server.
//
// ChangeID is a ULID generated at enqueue time; it is sent as the
// idempotency key when the item is replayed. LocalKey identifies the local
// record the item targets; RemoteID is filled in when the target was
// already known to the server at enqueue time.
type OutboxItem struct {
	ID         int64
	ChangeID   string
	OwnerID    string
	Entity     Entity
	Op         Operation
	LocalKey   int64
	RemoteID   string
	Payload    []byte
	CreatedAt  time.Time
	RetryCount int
	LastError  string
}

// Target identifies the record an item applies to. Items with equal
// targets must be replayed in order.
func (i OutboxItem) Target() string {
	if i.LocalKey != 0 {
		return fmt.Sprintf("%s/local/%d", i.Entity, i.LocalKey)
	}
	return fmt.Sprintf("%s/remote/%s", i.Entity, i.RemoteID)
}

// Exhausted reports whether the item failed more than threshold times and
// needs manual attention.
func (i OutboxItem) Exhausted(threshold int) bool {
	return i.RetryCount > threshold
}

// Decode returns the typed payload carried by the item. Delete items carry
// no payload and decode to nil.
func (i OutboxItem) Decode() (Payload, error) {
	if len(i.Payload) == 0 {
		return nil, nil
	}
	return DecodePayload(i.Entity, i.Payload)
}
