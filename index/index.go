// Package index holds entries between their start and end events, keyed by
// correlation uuid. The in-memory backend is the single-process default;
// the Redis backend lets several server replicas share pending entries.
package index

import (
	"context"

	"github.com/termsync/termsync/entry"
)

// Index maps a correlation uuid to the pending entry created by the start
// event. Entries live only until the matching end event merges into them;
// the coordinator removes them so the index does not grow unbounded.
type Index interface {
	// Put stores or replaces the pending entry for uuid.
	Put(ctx context.Context, uuid string, e *entry.Entry) error

	// Get returns the pending entry for uuid, or ok=false if none exists.
	Get(ctx context.Context, uuid string) (e *entry.Entry, ok bool, err error)

	// Remove deletes the pending entry for uuid. Removing a missing uuid is
	// not an error.
	Remove(ctx context.Context, uuid string) error
}
