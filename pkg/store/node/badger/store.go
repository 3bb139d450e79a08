// Package badger provides a BadgerDB-backed node store implementation.
//
// Node bytes are stored under their raw 16-byte content key. Nodes are
// immutable, so writes never conflict and no transactional read-modify
// cycle is needed.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/store/node"
)

// Config holds configuration for the Badger node store.
type Config struct {
	// Dir is the database directory. Required.
	Dir string

	// InMemory runs Badger without disk persistence (testing only).
	InMemory bool
}

// Store is a BadgerDB-backed implementation of node.Store.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) a Badger database at config.Dir.
func New(config Config) (*Store, error) {
	opts := badger.DefaultOptions(config.Dir).
		WithLogger(nil).
		WithInMemory(config.InMemory)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	logger.Debug("Badger node store opened", "dir", config.Dir, "in_memory", config.InMemory)
	return &Store{db: db}, nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return node.ErrStoreClosed
	}
	return nil
}

// Put writes a node under its content key.
func (s *Store) Put(ctx context.Context, key cas.Key, raw []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key[:], raw)
	})
}

// Get reads a complete node.
func (s *Store) Get(ctx context.Context, key cas.Key) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key[:])
		if errors.Is(err, badger.ErrKeyNotFound) {
			return node.ErrNodeNotFound
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	return raw, err
}

// Has reports whether the node exists.
func (s *Store) Has(ctx context.Context, key cas.Key) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key[:])
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// HealthCheck verifies the database is operational.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// Ensure Store implements node.Store.
var _ node.Store = (*Store)(nil)
