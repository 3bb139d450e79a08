// Package usage implements the bookkeeping performed on every stored node:
// full-chain ownership writes, per-realm reference counts and usage
// accounting. It is wired into the filesystem layer as its stored-node
// hook.
package usage

import (
	"context"
	"strconv"
	"time"

	"github.com/depotfs/depotfs/pkg/cache"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/fs"
	"github.com/depotfs/depotfs/pkg/ownership"
	"github.com/depotfs/depotfs/pkg/store/meta"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
)

// usageTTL bounds staleness of usage reads served from cache. Writes are
// at-most-once per fresh node, so short TTL expiry is the only
// invalidation needed.
const usageTTL = 5 * time.Second

const (
	refPrefix   = "REF#"
	usagePrefix = "USAGE#"
)

// Usage is a realm's accounted consumption.
type Usage struct {
	Bytes int64 `json:"bytes"`
	Nodes int64 `json:"nodes"`
}

// Accountant performs stored-node bookkeeping. It implements fs.StoredHook.
type Accountant struct {
	owners *ownership.Index
	store  meta.Store
	nodes  nodestore.Store
	cache  cache.Cache
}

// New creates an accountant. c may be cache.Null{}.
func New(owners *ownership.Index, store meta.Store, nodes nodestore.Store, c cache.Cache) *Accountant {
	if c == nil {
		c = cache.Null{}
	}
	return &Accountant{owners: owners, store: store, nodes: nodes, cache: c}
}

func refKey(realm string, node cas.Key) string {
	return refPrefix + realm + "#" + node.String()
}

func usageKey(realm, metric string) string {
	return usagePrefix + realm + "#" + metric
}

func usageCacheKey(realm string) string {
	return "usage:" + realm
}

// OnNodeStored records ownership for the acting chain on every store, and
// bumps the realm's refcount and usage exactly once per fresh node.
// Re-uploads of an existing key are byte-level no-ops but still record
// ownership, which is what lets a second chain acquire visibility.
func (a *Accountant) OnNodeStored(ctx context.Context, actor fs.Actor, stored fs.StoredNode) error {
	if err := a.owners.Add(ctx, stored.Key, actor.Chain, actor.DelegateID, stored.Kind, stored.Size, stored.ContentType); err != nil {
		return err
	}
	if !stored.Fresh {
		return nil
	}
	if _, err := a.store.Add(ctx, refKey(actor.Realm, stored.Key), 1); err != nil {
		return errtypes.Internal(err, "increment refcount for %s", stored.Key)
	}
	if _, err := a.store.Add(ctx, usageKey(actor.Realm, "bytes"), int64(stored.Size)); err != nil {
		return errtypes.Internal(err, "account bytes for realm %s", actor.Realm)
	}
	if _, err := a.store.Add(ctx, usageKey(actor.Realm, "nodes"), 1); err != nil {
		return errtypes.Internal(err, "account nodes for realm %s", actor.Realm)
	}
	return nil
}

// RefCount returns the realm's reference count for a node.
func (a *Accountant) RefCount(ctx context.Context, realm string, node cas.Key) (int64, error) {
	count, err := a.store.Add(ctx, refKey(realm, node), 0)
	if err != nil {
		return 0, errtypes.Internal(err, "read refcount for %s", node)
	}
	return count, nil
}

// Release decrements a node's realm refcount. When it reaches zero the
// node bytes, its ownership records and its counter are removed.
func (a *Accountant) Release(ctx context.Context, realm string, node cas.Key) (int64, error) {
	if cas.IsWellKnown(node) {
		return 0, nil
	}
	count, err := a.store.Add(ctx, refKey(realm, node), -1)
	if err != nil {
		return 0, errtypes.Internal(err, "decrement refcount for %s", node)
	}
	if count > 0 {
		return count, nil
	}

	raw, err := a.nodes.Get(ctx, node)
	if err == nil {
		if _, err := a.store.Add(ctx, usageKey(realm, "bytes"), -int64(len(raw))); err != nil {
			return 0, errtypes.Internal(err, "account bytes for realm %s", realm)
		}
		if _, err := a.store.Add(ctx, usageKey(realm, "nodes"), -1); err != nil {
			return 0, errtypes.Internal(err, "account nodes for realm %s", realm)
		}
	}
	if err := a.owners.Remove(ctx, node); err != nil {
		return 0, err
	}
	if err := a.store.Delete(ctx, refKey(realm, node)); err != nil {
		return 0, errtypes.Internal(err, "delete refcount for %s", node)
	}
	return 0, nil
}

// Realm returns the realm's current usage, served from cache for up to
// usageTTL.
func (a *Accountant) Realm(ctx context.Context, realm string) (*Usage, error) {
	if cached, ok := a.cache.Get(ctx, usageCacheKey(realm)); ok {
		if usage, err := parseUsage(cached); err == nil {
			return usage, nil
		}
	}
	bytes, err := a.store.Add(ctx, usageKey(realm, "bytes"), 0)
	if err != nil {
		return nil, errtypes.Internal(err, "read usage for realm %s", realm)
	}
	nodes, err := a.store.Add(ctx, usageKey(realm, "nodes"), 0)
	if err != nil {
		return nil, errtypes.Internal(err, "read usage for realm %s", realm)
	}
	usage := &Usage{Bytes: bytes, Nodes: nodes}
	a.cache.Set(ctx, usageCacheKey(realm), formatUsage(usage), usageTTL)
	return usage, nil
}

func formatUsage(u *Usage) string {
	return strconv.FormatInt(u.Bytes, 10) + "/" + strconv.FormatInt(u.Nodes, 10)
}

func parseUsage(s string) (*Usage, error) {
	var u Usage
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			bytes, err := strconv.ParseInt(s[:i], 10, 64)
			if err != nil {
				return nil, err
			}
			nodes, err := strconv.ParseInt(s[i+1:], 10, 64)
			if err != nil {
				return nil, err
			}
			u.Bytes, u.Nodes = bytes, nodes
			return &u, nil
		}
	}
	return nil, strconv.ErrSyntax
}

// Ensure Accountant implements fs.StoredHook.
var _ fs.StoredHook = (*Accountant)(nil)
