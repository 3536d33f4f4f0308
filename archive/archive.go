// Package archive provides durable local storage for entries: the fallback
// sink when Ghostwriter is unreachable or unconfigured, and the persistence
// the hook CLI uses to correlate start and end events across invocations.
package archive

import (
	"context"

	"github.com/termsync/termsync/entry"
)

// Store persists entries under their deterministic (oplog id, start time,
// uuid) identity.
type Store interface {
	// Save writes or overwrites the entry's durable copy.
	Save(ctx context.Context, e *entry.Entry) error

	// FindPending returns the stored entry matching (oplogID, uuid) with
	// any start time, or nil if none exists.
	FindPending(ctx context.Context, oplogID int, uuid string) (*entry.Entry, error)

	// Remove deletes the entry's durable copy. A missing copy is not an
	// error.
	Remove(ctx context.Context, e *entry.Entry) error
}
