// Package badger provides a BadgerDB-backed metadata store implementation.
//
// All conditional primitives map onto Badger's serializable transactions:
// the read and the conditional write happen inside one Update, so the
// compare-and-set semantics hold without additional locking.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/store/meta"
)

// Config holds configuration for the Badger metadata store.
type Config struct {
	// Dir is the database directory. Required.
	Dir string

	// InMemory runs Badger without disk persistence (testing only).
	InMemory bool
}

// Store is a BadgerDB-backed implementation of meta.Store.
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
	logger.Debug("Badger metadata store opened", "dir", config.Dir, "in_memory", config.InMemory)
	return &Store{db: db}, nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return meta.ErrStoreClosed
	}
	return nil
}

// updateAttempts bounds transaction retries under write contention.
const updateAttempts = 3

// update runs fn in an Update transaction, retrying when Badger's
// serializable isolation aborts it with ErrConflict. Each retry re-reads
// inside a fresh transaction, so conditional writes re-evaluate their
// condition against the winner's value instead of surfacing the conflict.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < updateAttempts; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getValue(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, meta.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Get reads a record.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		v, err := getValue(txn, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

// Put writes a record unconditionally.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// PutIfAbsent writes a record only if the key does not exist.
func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	return s.PutIfValueEquals(ctx, key, nil, value)
}

// PutIfValueEquals writes a record only if its current value equals expected.
func (s *Store) PutIfValueEquals(ctx context.Context, key string, expected, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.update(func(txn *badger.Txn) error {
		current, err := getValue(txn, key)
		switch {
		case errors.Is(err, meta.ErrNotFound):
			if expected != nil {
				return meta.ErrConditionFailed
			}
		case err != nil:
			return err
		default:
			if expected == nil || !bytes.Equal(current, expected) {
				return meta.ErrConditionFailed
			}
		}
		return txn.Set([]byte(key), value)
	})
	// A conflict that survives the retries means a writer beat the
	// compare-and-set on every attempt.
	if errors.Is(err, badger.ErrConflict) {
		return meta.ErrConditionFailed
	}
	return err
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Add atomically adds delta to a decimal counter record.
func (s *Store) Add(ctx context.Context, key string, delta int64) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var result int64
	err := s.update(func(txn *badger.Txn) error {
		var current int64
		raw, err := getValue(txn, key)
		switch {
		case errors.Is(err, meta.ErrNotFound):
			// Missing counters start at zero.
		case err != nil:
			return err
		default:
			current, err = strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt counter %q: %w", key, err)
			}
		}
		current += delta
		result = current
		return txn.Set([]byte(key), []byte(strconv.FormatInt(current, 10)))
	})
	return result, err
}

// BatchPut writes all items in one transaction.
func (s *Store) BatchPut(ctx context.Context, items []meta.Item) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		for _, item := range items {
			if err := txn.Set([]byte(item.Key), item.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// BatchGet reads many records in one snapshot.
func (s *Store) BatchGet(ctx context.Context, keys []string) ([][]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for i, key := range keys {
			value, err := getValue(txn, key)
			if errors.Is(err, meta.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[i] = value
		}
		return nil
	})
	return out, err
}

// List returns records under prefix in ascending key order.
func (s *Store) List(ctx context.Context, prefix, cursor string, limit int) ([]meta.Item, string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, "", err
	}

	var items []meta.Item
	more := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		start := []byte(prefix)
		if cursor != "" {
			// Resume strictly after the cursor key.
			start = append([]byte(cursor), 0x00)
		}
		for it.Seek(start); it.Valid(); it.Next() {
			if limit > 0 && len(items) == limit {
				more = true
				return nil
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			items = append(items, meta.Item{Key: string(item.Key()), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	next := ""
	if more && len(items) > 0 {
		next = items[len(items)-1].Key
	}
	return items, next, nil
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

// Ensure Store implements meta.Store.
var _ meta.Store = (*Store)(nil)
