// Package metadata keeps small key/value facts about the local store, such
// as when each owner last completed a sync.
package metadata

import (
	"context"
	"time"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error

	// GetTime returns the zero time when key is absent.
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}

// LastSyncKey is the key holding the owner's last successful sync time.
func LastSyncKey(ownerID string) string {
	return "last_sync_at:" + ownerID
}
