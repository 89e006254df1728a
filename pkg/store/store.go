// Package store provides a small document store abstraction: named byte
// records grouped in collections, with ETag-based conditional writes.
//
// The portal keeps every user, agent, and job configuration as one JSON
// record keyed by its id, and raw uploaded documents as byte records in
// per-agent collections. Backends map a collection to an Azure Blob Storage
// container, a SQLite table, or an in-memory map.
//
// Every method reports failures through the tagged errors in errors.go so
// callers can tell "not found" from "service unavailable" from "malformed
// data" instead of collapsing them into one sentinel.
package store

import (
	"context"
	"time"
)

// Record is a stored document plus its concurrency tag.
type Record struct {
	Data []byte
	ETag string
}

// PutOptions controls conditional writes. Zero value means unconditional
// overwrite (last writer wins, the historical behavior).
type PutOptions struct {
	// IfMatch makes the write succeed only while the stored ETag still
	// equals this value. Mismatch yields ErrConflict.
	IfMatch string

	// IfNoneMatchAny makes the write succeed only if the key does not
	// exist yet. An existing record yields ErrConflict.
	IfNoneMatchAny bool
}

// Entry describes one listed record.
type Entry struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is a single collection of records.
type Store interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Put writes data under key and returns the new ETag.
	Put(ctx context.Context, key string, data []byte, opts *PutOptions) (string, error)

	// Delete removes the record. Deleting a missing key returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// List returns entries whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// Provider opens collections by name. A provider owns the underlying
// connection (blob service client, database handle) shared by its stores.
type Provider interface {
	// Collection returns the store for the named collection, creating the
	// backing container/table if needed.
	Collection(ctx context.Context, name string) (Store, error)

	// Close releases the underlying connection.
	Close() error
}
