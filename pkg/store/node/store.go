// Package node provides the content-addressed node store contract.
package node

import (
	"context"
	"errors"

	"github.com/depotfs/depotfs/pkg/cas"
)

// Common errors returned by Store implementations.
var (
	// ErrNodeNotFound is returned when a requested node doesn't exist.
	ErrNodeNotFound = errors.New("node not found")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrKeyMismatch is returned by a verified store when the computed key
	// of the bytes disagrees with the provided key.
	ErrKeyMismatch = errors.New("content key does not match node bytes")
)

// Store defines the interface for node storage backends.
//
// Nodes are immutable byte buffers stored under their 16-byte content key.
// Put is idempotent: re-writing an existing key with the same bytes is a
// no-op. The store never overwrites a key with different content because
// keys are content-derived.
type Store interface {
	// Put writes a node under its content key.
	Put(ctx context.Context, key cas.Key, raw []byte) error

	// Get reads a complete node. Returns ErrNodeNotFound if absent.
	Get(ctx context.Context, key cas.Key) ([]byte, error)

	// Has reports whether the node exists.
	Has(ctx context.Context, key cas.Key) (bool, error)

	// Close releases any resources held by the store.
	Close() error

	// HealthCheck verifies the store is accessible and operational.
	HealthCheck(ctx context.Context) error
}

// Verified wraps a store and rejects Put calls whose computed key disagrees
// with the provided key.
type Verified struct {
	Store
}

// NewVerified wraps inner in key verification.
func NewVerified(inner Store) *Verified {
	return &Verified{Store: inner}
}

func (v *Verified) Put(ctx context.Context, key cas.Key, raw []byte) error {
	if cas.KeyFor(raw) != key {
		return ErrKeyMismatch
	}
	return v.Store.Put(ctx, key, raw)
}

// WellKnown wraps a store and short-circuits well-known virtual nodes
// (currently the empty directory) on all three operations, so they never
// touch the backend.
type WellKnown struct {
	Store
}

// NewWellKnown wraps inner with well-known node short-circuits.
func NewWellKnown(inner Store) *WellKnown {
	return &WellKnown{Store: inner}
}

func (w *WellKnown) Put(ctx context.Context, key cas.Key, raw []byte) error {
	if cas.IsWellKnown(key) {
		return nil
	}
	return w.Store.Put(ctx, key, raw)
}

func (w *WellKnown) Get(ctx context.Context, key cas.Key) ([]byte, error) {
	if key == cas.EmptyDirKey() {
		return cas.EmptyDirBytes(), nil
	}
	return w.Store.Get(ctx, key)
}

func (w *WellKnown) Has(ctx context.Context, key cas.Key) (bool, error) {
	if cas.IsWellKnown(key) {
		return true, nil
	}
	return w.Store.Has(ctx, key)
}
