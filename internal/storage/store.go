// Package storage provides the scoped key-value capability the cart core
// persists through.
package storage

import "context"

// KV defines the interface for scoped string key-value persistence.
// This abstraction allows swapping storage backends (SQLite, in-memory, etc.)
// without changing the cart or credential layers. Values are opaque strings;
// callers own serialization. A corrupt or absent value is a normal outcome,
// never a reason to fail the caller.
type KV interface {
	// Get retrieves the value for a key. The second return reports whether
	// the key was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value for a key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes a key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
