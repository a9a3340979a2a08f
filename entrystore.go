// Package entrystore provides a uniform, backend-agnostic interface for
// storing indexed entries: rows keyed by a single designated index
// field. A caller describes its data once as a schema of typed fields,
// selects a backend, and receives the same operational surface — look up
// by key, read the first and last entry and key, enumerate fields, and
// submit entries singly or in bulk with at-most-once semantics per key.
package entrystore

import (
	"context"
)

// Entry is one stored record: a mapping from field name to a value whose
// runtime kind matches the store schema. The index field's value is the
// primary key.
type Entry map[string]any

// Store is the uniform operational surface every backend exposes.
// Absent results (empty store, unknown key) are a nil Entry or key with
// a nil error.
type Store interface {
	// Fields returns the field names of the resolved schema in
	// declaration order.
	Fields(ctx context.Context) ([]string, error)

	// First returns the entry with the smallest index value.
	First(ctx context.Context) (Entry, error)

	// Last returns the entry with the largest index value.
	Last(ctx context.Context) (Entry, error)

	// FirstKey returns the smallest index value.
	FirstKey(ctx context.Context) (any, error)

	// LastKey returns the largest index value.
	LastKey(ctx context.Context) (any, error)

	// Get returns the entry stored under the given key.
	Get(ctx context.Context, key any) (Entry, error)

	// Put submits entries. Entries are validated against the schema,
	// and at most one entry is kept per index value; which occurrence
	// survives a duplicate is backend-defined.
	Put(ctx context.Context, entries ...Entry) error
}
