// Package memory provides an in-memory node store implementation for testing.
package memory

import (
	"context"
	"sync"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/store/node"
)

// Store is an in-memory implementation of node.Store for testing.
type Store struct {
	mu     sync.RWMutex
	nodes  map[cas.Key][]byte
	closed bool
}

// New creates a new in-memory node store.
func New() *Store {
	return &Store{
		nodes: make(map[cas.Key][]byte),
	}
}

// Put writes a node to memory.
func (s *Store) Put(ctx context.Context, key cas.Key, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return node.ErrStoreClosed
	}
	if _, ok := s.nodes[key]; ok {
		// Content-addressed: an existing key already holds these bytes.
		return nil
	}

	copied := make([]byte, len(raw))
	copy(copied, raw)
	s.nodes[key] = copied
	return nil
}

// Get reads a complete node from memory.
func (s *Store) Get(ctx context.Context, key cas.Key) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, node.ErrStoreClosed
	}
	raw, ok := s.nodes[key]
	if !ok {
		return nil, node.ErrNodeNotFound
	}

	copied := make([]byte, len(raw))
	copy(copied, raw)
	return copied, nil
}

// Has reports whether the node exists in memory.
func (s *Store) Has(ctx context.Context, key cas.Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, node.ErrStoreClosed
	}
	_, ok := s.nodes[key]
	return ok, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.nodes = nil
	return nil
}

// HealthCheck verifies the store is accessible and operational.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return node.ErrStoreClosed
	}
	return nil
}

// NodeCount returns the number of nodes stored (for testing).
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Ensure Store implements node.Store.
var _ node.Store = (*Store)(nil)
