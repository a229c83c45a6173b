package audiocache

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Open when no entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

// Error wraps a storage-level failure. Callers treat read failures as a
// cache miss and write failures as non-fatal for the request in flight.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Writer receives the bytes of one cache entry as they stream through.
// Commit makes the entry visible; Abort discards it. An entry is never
// observable in a partially written state.
type Writer interface {
	io.Writer
	Commit() error
	Abort()
}

// Store is content-addressed byte storage for synthesized audio, keyed by
// opaque cache keys. Entries are created once and never mutated in place.
type Store interface {
	// Exists reports whether a non-empty entry is stored under key.
	// Zero-length entries are leftovers of failed writes and are deleted.
	Exists(ctx context.Context, key string) bool

	// Open returns a streaming reader for the entry, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Create starts a new entry. The returned Writer must be committed or
	// aborted exactly once.
	Create(ctx context.Context, key string) (Writer, error)

	// Delete removes the entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry in the store.
	Clear(ctx context.Context) error
}
