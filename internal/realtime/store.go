// Package realtime defines the replicated key-value store the sync layer is
// built on: last-writer-wins per key, no transactions, no partial-field
// writes. Merging is the caller's job; the store only fans out whole values.
package realtime

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get for keys with no current value.
var ErrKeyNotFound = errors.New("realtime: key not found")

// Op is the kind of change an Entry describes.
type Op int

const (
	OpPut Op = iota
	OpDelete
)

// Entry is one observed change (or initial value) of a key.
type Entry struct {
	Key   string
	Value []byte
	Op    Op
}

// Watcher is a push-based feed over a key pattern. It delivers the current
// value of every matching key first, then every subsequent change.
type Watcher interface {
	// Updates yields entries until Stop is called or the context that
	// created the watcher is cancelled. Slow consumers may observe a fast
	// sequence of writes collapsed to only the final state.
	Updates() <-chan Entry
	Stop() error
}

// Store is the realtime replicated key-value collaborator. Keys are dot
// separated paths ("presence.<id>", "session.v1"); Watch patterns may end in
// ".*" to cover one level.
type Store interface {
	// Put overwrites the full value at key.
	Put(ctx context.Context, key string, value []byte) error
	// Get returns the current value at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting an absent key is a no-op, not an error;
	// readers garbage-collecting the same stale record may race.
	Delete(ctx context.Context, key string) error
	// Watch subscribes to all keys matching pattern.
	Watch(ctx context.Context, pattern string) (Watcher, error)
	// RemoveOnDisconnect arranges best-effort deletion of key when this
	// client's connection goes away. Crashed clients are still covered by
	// reader-side staleness GC.
	RemoveOnDisconnect(key string)
	// Close tears down the connection, removing any disconnect-registered
	// keys first.
	Close() error
}
