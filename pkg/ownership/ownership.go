// Package ownership implements the full-chain ownership index. Every
// upload writes one record per element of the uploader's delegate chain, so
// any ancestor's ownership of a node is a single point lookup.
package ownership

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/store/meta"
)

// MaxChainDepth bounds a delegate chain; it guarantees that the full-chain
// write of one upload fits a single store batch.
const MaxChainDepth = 16

// DefaultCacheSize is the positive-result cache capacity used when New is
// given zero.
const DefaultCacheSize = 65536

const keyPrefix = "OWN#"

// Record is the stored ownership value, one per (node, chain element).
type Record struct {
	UploadedBy  string    `json:"uploadedBy"`
	Kind        string    `json:"kind"`
	Size        uint64    `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Index answers ownership queries over the metadata store.
//
// Positive results are cached without TTL: once written, an ownership
// record never changes. Negative results are never cached, since ownership
// can be created at any time by another upload or a claim.
type Index struct {
	store    meta.Store
	positive *lru.Cache
	now      func() time.Time
}

// New creates an ownership index with a positive-result cache of the given
// capacity.
func New(store meta.Store, cacheSize int) (*Index, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	positive, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Index{store: store, positive: positive, now: time.Now}, nil
}

func recordKey(node cas.Key, delegateID string) string {
	return keyPrefix + node.String() + "#" + delegateID
}

func nodePrefix(node cas.Key) string {
	return keyPrefix + node.String() + "#"
}

// Add writes one ownership record per chain element in a single atomic
// batch. Re-running for an existing node is an idempotent overwrite.
func (x *Index) Add(ctx context.Context, node cas.Key, chain []string, uploadedBy string, kind cas.Kind, size uint64, contentType string) error {
	if len(chain) == 0 || len(chain) > MaxChainDepth {
		return errtypes.Validation("INVALID_CHAIN", "chain length %d out of range [1, %d]", len(chain), MaxChainDepth)
	}
	value, err := json.Marshal(Record{
		UploadedBy:  uploadedBy,
		Kind:        kind.String(),
		Size:        size,
		ContentType: contentType,
		CreatedAt:   x.now().UTC(),
	})
	if err != nil {
		return errtypes.Internal(err, "marshal ownership record")
	}
	items := make([]meta.Item, len(chain))
	for i, delegateID := range chain {
		items[i] = meta.Item{Key: recordKey(node, delegateID), Value: value}
	}
	if err := x.store.BatchPut(ctx, items); err != nil {
		return errtypes.Internal(err, "write ownership records for %s", node)
	}
	for _, delegateID := range chain {
		x.positive.Add(recordKey(node, delegateID), struct{}{})
	}
	return nil
}

// Has reports whether delegateID holds an ownership record for node.
func (x *Index) Has(ctx context.Context, node cas.Key, delegateID string) (bool, error) {
	key := recordKey(node, delegateID)
	if x.positive.Contains(key) {
		return true, nil
	}
	_, err := x.store.Get(ctx, key)
	if errors.Is(err, meta.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errtypes.Internal(err, "read ownership record %s", key)
	}
	x.positive.Add(key, struct{}{})
	return true, nil
}

// HasAny reports whether any delegate holds ownership of node.
func (x *Index) HasAny(ctx context.Context, node cas.Key) (bool, error) {
	items, _, err := x.store.List(ctx, nodePrefix(node), "", 1)
	if err != nil {
		return false, errtypes.Internal(err, "list ownership records for %s", node)
	}
	return len(items) > 0, nil
}

// Owners lists every delegate holding an ownership record for node.
func (x *Index) Owners(ctx context.Context, node cas.Key) ([]string, error) {
	prefix := nodePrefix(node)
	var owners []string
	cursor := ""
	for {
		items, next, err := x.store.List(ctx, prefix, cursor, 100)
		if err != nil {
			return nil, errtypes.Internal(err, "list ownership records for %s", node)
		}
		for _, item := range items {
			owners = append(owners, item.Key[len(prefix):])
		}
		if next == "" {
			return owners, nil
		}
		cursor = next
	}
}

// HasBatch checks many delegates in one round trip and returns the first
// owner in the given order, or empty when none owns the node.
func (x *Index) HasBatch(ctx context.Context, node cas.Key, delegateIDs []string) (string, error) {
	misses := make([]string, 0, len(delegateIDs))
	for _, delegateID := range delegateIDs {
		if x.positive.Contains(recordKey(node, delegateID)) {
			return delegateID, nil
		}
		misses = append(misses, delegateID)
	}
	keys := make([]string, len(misses))
	for i, delegateID := range misses {
		keys[i] = recordKey(node, delegateID)
	}
	values, err := x.store.BatchGet(ctx, keys)
	if err != nil {
		return "", errtypes.Internal(err, "batch ownership check for %s", node)
	}
	for i, value := range values {
		if value != nil {
			x.positive.Add(keys[i], struct{}{})
			return misses[i], nil
		}
	}
	return "", nil
}

// Remove deletes every ownership record of node. Called during node GC when
// a realm's reference count reaches zero.
func (x *Index) Remove(ctx context.Context, node cas.Key) error {
	owners, err := x.Owners(ctx, node)
	if err != nil {
		return err
	}
	for _, delegateID := range owners {
		key := recordKey(node, delegateID)
		if err := x.store.Delete(ctx, key); err != nil {
			return errtypes.Internal(err, "delete ownership record %s", key)
		}
		x.positive.Remove(key)
	}
	return nil
}

// Lookup fetches the ownership record written for (node, delegateID).
func (x *Index) Lookup(ctx context.Context, node cas.Key, delegateID string) (*Record, error) {
	raw, err := x.store.Get(ctx, recordKey(node, delegateID))
	if errors.Is(err, meta.ErrNotFound) {
		return nil, errtypes.NotFound("NODE_NOT_FOUND", "no ownership record for %s", node.Format(cas.PrefixNode))
	}
	if err != nil {
		return nil, errtypes.Internal(err, "read ownership record for %s", node)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errtypes.Internal(err, "unmarshal ownership record for %s", node)
	}
	return &record, nil
}
