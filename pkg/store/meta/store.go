// Package meta provides the metadata record store contract.
//
// The store holds small mutable records (delegates, ownership, depots,
// tickets, counters) under composite string keys, and exposes the
// conditional-write primitives the core is built on: put-if-absent,
// compare-and-set on the full value, atomic batches, and cursor-paginated
// prefix listings.
package meta

import (
	"context"
	"errors"
)

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when a requested record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrConditionFailed is returned when a conditional write's expectation
	// does not hold.
	ErrConditionFailed = errors.New("conditional write failed")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// Item is a (key, value) record.
type Item struct {
	Key   string
	Value []byte
}

// Store defines the interface for metadata storage backends.
//
// All writes are durable when the call returns. BatchPut is atomic: either
// every item is observed or none. Conditional writes compare against the
// full current value, which closes the TOCTOU gap between a read and the
// subsequent write.
type Store interface {
	// Get reads a record. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes a record unconditionally.
	Put(ctx context.Context, key string, value []byte) error

	// PutIfAbsent writes a record only if the key does not exist.
	// Returns ErrConditionFailed otherwise.
	PutIfAbsent(ctx context.Context, key string, value []byte) error

	// PutIfValueEquals writes a record only if its current value is
	// byte-equal to expected. expected == nil means the key must not exist.
	// Returns ErrConditionFailed otherwise.
	PutIfValueEquals(ctx context.Context, key string, expected, value []byte) error

	// Delete removes a record. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// Add atomically adds delta to a decimal counter record (missing
	// counters start at zero) and returns the new value.
	Add(ctx context.Context, key string, delta int64) (int64, error)

	// BatchPut writes all items atomically.
	BatchPut(ctx context.Context, items []Item) error

	// BatchGet reads many records in one call. The result is parallel to
	// keys; missing records yield a nil slot.
	BatchGet(ctx context.Context, keys []string) ([][]byte, error)

	// List returns records whose keys start with prefix, in ascending key
	// order, starting after cursor (empty cursor starts from the
	// beginning). It returns at most limit items and a cursor for the next
	// page (empty when exhausted).
	List(ctx context.Context, prefix, cursor string, limit int) ([]Item, string, error)

	// Close releases any resources held by the store.
	Close() error

	// HealthCheck verifies the store is accessible and operational.
	HealthCheck(ctx context.Context) error
}
