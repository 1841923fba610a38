// Package store provides the key-value persistence backend and the memory
// collection built on top of it.
package store

import (
	"context"
	"errors"
)

// Keys of the three independent values the collection owns.
const (
	KeyMemories = "engram-mem-v3"
	KeyMeta     = "engram-meta-v3"
	KeyBriefing = "engram-brief-v3"
)

// ErrNotFound is returned when a memory id is not in the collection.
var ErrNotFound = errors.New("memory not found")

// KV is the persistence backend. Values are opaque serialized blobs.
type KV interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Close releases the backend.
	Close() error
}
