// Package memory provides an in-memory storage.KV for tests and ephemeral
// runs.
package memory

import (
	"context"
	"sync"

	"github.com/ovenfresh/cartkit/internal/storage"
)

// Ensure KVStore implements storage.KV
var _ storage.KV = (*KVStore)(nil)

// KVStore implements storage.KV with a mutex-guarded map.
type KVStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty in-memory store.
func New() *KVStore {
	return &KVStore{values: make(map[string]string)}
}

// Get retrieves the value for a key.
func (s *KVStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores a value for a key.
func (s *KVStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove deletes a key.
func (s *KVStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Close is a no-op.
func (s *KVStore) Close() error {
	return nil
}
