// Package memory provides an in-memory metadata store implementation for
// testing and single-process deployments.
package memory

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/depotfs/depotfs/pkg/store/meta"
)

// Store is an in-memory implementation of meta.Store.
type Store struct {
	mu      sync.Mutex
	records map[string][]byte
	closed  bool
}

// New creates a new in-memory metadata store.
func New() *Store {
	return &Store{
		records: make(map[string][]byte),
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Get reads a record.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, meta.ErrStoreClosed
	}
	value, ok := s.records[key]
	if !ok {
		return nil, meta.ErrNotFound
	}
	return clone(value), nil
}

// Put writes a record unconditionally.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return meta.ErrStoreClosed
	}
	s.records[key] = clone(value)
	return nil
}

// PutIfAbsent writes a record only if the key does not exist.
func (s *Store) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return meta.ErrStoreClosed
	}
	if _, ok := s.records[key]; ok {
		return meta.ErrConditionFailed
	}
	s.records[key] = clone(value)
	return nil
}

// PutIfValueEquals writes a record only if its current value equals expected.
func (s *Store) PutIfValueEquals(ctx context.Context, key string, expected, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return meta.ErrStoreClosed
	}
	current, ok := s.records[key]
	if expected == nil {
		if ok {
			return meta.ErrConditionFailed
		}
	} else {
		if !ok || !bytes.Equal(current, expected) {
			return meta.ErrConditionFailed
		}
	}
	s.records[key] = clone(value)
	return nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return meta.ErrStoreClosed
	}
	delete(s.records, key)
	return nil
}

// Add atomically adds delta to a decimal counter record.
func (s *Store) Add(ctx context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, meta.ErrStoreClosed
	}
	var current int64
	if raw, ok := s.records[key]; ok {
		parsed, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current += delta
	s.records[key] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

// BatchPut writes all items atomically.
func (s *Store) BatchPut(ctx context.Context, items []meta.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return meta.ErrStoreClosed
	}
	for _, item := range items {
		s.records[item.Key] = clone(item.Value)
	}
	return nil
}

// BatchGet reads many records in one call.
func (s *Store) BatchGet(ctx context.Context, keys []string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, meta.ErrStoreClosed
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if value, ok := s.records[key]; ok {
			out[i] = clone(value)
		}
	}
	return out, nil
}

// List returns records under prefix in ascending key order.
func (s *Store) List(ctx context.Context, prefix, cursor string, limit int) ([]meta.Item, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, "", meta.ErrStoreClosed
	}

	keys := make([]string, 0)
	for key := range s.records {
		if strings.HasPrefix(key, prefix) && key > cursor {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}
	items := make([]meta.Item, 0, limit)
	for _, key := range keys[:limit] {
		items = append(items, meta.Item{Key: key, Value: clone(s.records[key])})
	}
	next := ""
	if len(keys) > len(items) && len(items) > 0 {
		next = items[len(items)-1].Key
	}
	return items, next, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}

// HealthCheck verifies the store is accessible and operational.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return meta.ErrStoreClosed
	}
	return nil
}

// Ensure Store implements meta.Store.
var _ meta.Store = (*Store)(nil)
