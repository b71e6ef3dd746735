// Package sqlite provides a SQLite-backed implementation of the storage.KV
// interface, giving the cart the durable, process-shared persistence a
// browser gets from localStorage.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/ovenfresh/cartkit/internal/storage"
)

// Ensure KVStore implements storage.KV
var _ storage.KV = (*KVStore)(nil)

// KVStore implements storage.KV using SQLite. All keys are prefixed with a
// namespace, so independent stores can share one database file without
// seeing each other's keys.
type KVStore struct {
	db        *sql.DB
	namespace string
	ownsDB    bool
}

// New creates a KVStore backed by the database at dbPath, scoped to the
// given namespace. It creates the parent directories and runs migrations
// automatically.
func New(dbPath, namespace string) (*KVStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &KVStore{db: db, namespace: namespace, ownsDB: true}, nil
}

// WithNamespace returns a view over the same database scoped to a different
// namespace. Closing the view does not close the underlying database.
func (s *KVStore) WithNamespace(namespace string) *KVStore {
	return &KVStore{db: s.db, namespace: namespace}
}

// Get retrieves the value for a key within the store's namespace.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE ns = ? AND key = ?",
		s.namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores a value for a key, overwriting any previous value.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (ns, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (ns, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.namespace, key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *KVStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE ns = ? AND key = ?",
		s.namespace, key,
	)
	if err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}

// Close closes the database connection, unless this store is a namespace
// view over a database owned by another store.
func (s *KVStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
