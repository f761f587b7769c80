package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
)

// envelope holds the bookkeeping fields the server adds to every record.
// Servers backed by document stores report the identity as _id and the
// owner as ownerUserId; both spellings are accepted.
type envelope struct {
	RemoteID    string    `json:"remoteId"`
	DocID       string    `json:"_id"`
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	OwnerUserID string    `json:"ownerUserId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (e envelope) remoteID() string {
	switch {
	case e.RemoteID != "":
		return e.RemoteID
	case e.DocID != "":
		return e.DocID
	default:
		return e.ID
	}
}

func (e envelope) ownerID() string {
	if e.OwnerID != "" {
		return e.OwnerID
	}
	return e.OwnerUserID
}

func encodeMutation(m Mutation) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if m.Payload != nil {
		raw, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Entity, err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("encode %s: %w", m.Entity, err)
		}
	}
	// local references mean nothing to the server
	delete(fields, "foodLocalKey")

	owner, _ := json.Marshal(m.OwnerID)
	fields["ownerId"] = owner
	if m.RemoteID != "" {
		id, _ := json.Marshal(m.RemoteID)
		fields["remoteId"] = id
	}
	return json.Marshal(fields)
}

// unwrap returns the object stored under key when raw is an object that
// wraps it, or raw itself.
func unwrap(raw []byte, key string) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	if inner, ok := obj[key]; ok {
		return inner
	}
	return raw
}

func decodeRecord(raw []byte, entity models.Entity) (RemoteRecord, error) {
	raw = unwrap(raw, string(entity))
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return RemoteRecord{}, fmt.Errorf("%w: %s record: %w", ErrBadResponse, entity, err)
	}
	return RemoteRecord{
		RemoteID:  env.remoteID(),
		OwnerID:   env.ownerID(),
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		Data:      json.RawMessage(raw),
	}, nil
}

func decodeAck(raw []byte, entity models.Entity) (Ack, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Ack{}, nil
	}
	rec, err := decodeRecord(raw, entity)
	if err != nil {
		return Ack{}, err
	}
	return Ack{RemoteID: rec.RemoteID, UpdatedAt: rec.UpdatedAt}, nil
}

// listKeys are the names a list response may file its records under.
func listKeys(entity models.Entity) []string {
	if entity == models.EntityWater {
		return []string{"waterEntries", entity.Collection()}
	}
	return []string{entity.Collection()}
}

func decodeList(raw []byte, entity models.Entity) ([]RemoteRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %s list: %w", ErrBadResponse, entity.Collection(), err)
		}
		for _, key := range listKeys(entity) {
			if inner, ok := obj[key]; ok {
				raw = inner
				break
			}
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %s list: %w", ErrBadResponse, entity.Collection(), err)
	}

	out := make([]RemoteRecord, 0, len(items))
	for _, item := range items {
		rec, err := decodeRecord(item, entity)
		if err != nil {
			return nil, err
		}
		if rec.RemoteID == "" {
			return nil, fmt.Errorf("%w: %s record without id", ErrBadResponse, entity)
		}
		out = append(out, rec)
	}
	return out, nil
}
