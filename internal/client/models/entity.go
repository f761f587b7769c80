package models

import (
	"errors"
	"fmt"
)

// Entity identifies one of the synchronized record collections.
type Entity string

const (
	EntityFood   Entity = "food"
	EntityEntry  Entity = "entry"
	EntityWeight Entity = "weight"
	EntityWater  Entity = "water"
)

// Entities lists every collection in the order they are pulled. Foods come
// first so diary entries can resolve their food references.
var Entities = []Entity{EntityFood, EntityEntry, EntityWeight, EntityWater}

var ErrUnknownEntity = errors.New("unknown entity")

// Collection returns the plural name used for tables and remote paths.
func (e Entity) Collection() string {
	switch e {
	case EntityFood:
		return "foods"
	case EntityEntry:
		return "entries"
	case EntityWeight:
		return "weights"
	case EntityWater:
		return "water"
	default:
		return ""
	}
}

func (e Entity) Validate() error {
	if e.Collection() == "" {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, string(e))
	}
	return nil
}

// ParseEntity accepts either the singular or the collection name.
func ParseEntity(s string) (Entity, error) {
	for _, e := range Entities {
		if s == string(e) || s == e.Collection() {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
}

// Operation is the kind of mutation an outbox item replays.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)
