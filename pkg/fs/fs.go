// Package fs implements the immutable filesystem layer over CAS trees:
// path and index-path resolution, persistent-data-structure mutations that
// produce new roots without touching old ones, and the declarative rewrite
// batch operation.
package fs

import (
	"context"
	"errors"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
)

// Limits applied when the corresponding Config field is zero.
const (
	DefaultMaxWriteBytes     = 4 * 1024 * 1024
	DefaultMaxRewriteEntries = 1000
)

// Actor identifies the principal a filesystem operation runs as. Chain is
// the delegate's full ancestor chain, root first; it drives the full-chain
// ownership writes performed by the stored-node hook.
type Actor struct {
	Realm      string
	DelegateID string
	Chain      []string
}

// StoredNode describes a node serialized during a filesystem operation.
type StoredNode struct {
	Key  cas.Key
	Raw  []byte
	Kind cas.Kind

	// Size is the encoded length in bytes.
	Size uint64

	// ContentType is set for file roots only.
	ContentType string

	// Fresh is false when the key already existed in the node store. A
	// re-upload still records ownership for the acting chain, but refcount
	// and usage accounting only apply to fresh nodes.
	Fresh bool
}

// StoredHook receives every node serialized by a filesystem operation. It
// performs the bookkeeping writes: ownership records for the acting chain,
// per-realm refcounts and usage deltas. Implementations must be idempotent.
type StoredHook interface {
	OnNodeStored(ctx context.Context, actor Actor, stored StoredNode) error
}

// LinkAuthorizer decides whether an actor may reference an arbitrary node
// by key, optionally supported by a proof word.
type LinkAuthorizer interface {
	AuthorizeLink(ctx context.Context, actor Actor, key cas.Key, proof string) error
}

// Config holds filesystem service limits.
type Config struct {
	// NodeLimit is the maximum encoded node size. Defaults to
	// cas.DefaultNodeLimit.
	NodeLimit uint64

	// MaxWriteBytes caps the payload of a single write operation.
	MaxWriteBytes int

	// MaxRewriteEntries caps entries plus deletes of one rewrite batch.
	MaxRewriteEntries int
}

// Service executes filesystem operations against a node store. All
// operations are immutable: they return a new root key and leave every
// previously observed root fully navigable.
type Service struct {
	nodes nodestore.Store
	hook  StoredHook
	links LinkAuthorizer

	nodeLimit         uint64
	maxWriteBytes     int
	maxRewriteEntries int
}

// New creates a filesystem service. hook and links may be nil: without a
// hook no bookkeeping runs, without a link authorizer every non-well-known
// link reference is rejected.
func New(nodes nodestore.Store, hook StoredHook, links LinkAuthorizer, config Config) *Service {
	if config.NodeLimit == 0 {
		config.NodeLimit = cas.DefaultNodeLimit
	}
	if config.MaxWriteBytes == 0 {
		config.MaxWriteBytes = DefaultMaxWriteBytes
	}
	if config.MaxRewriteEntries == 0 {
		config.MaxRewriteEntries = DefaultMaxRewriteEntries
	}
	return &Service{
		nodes:             nodes,
		hook:              hook,
		links:             links,
		nodeLimit:         config.NodeLimit,
		maxWriteBytes:     config.MaxWriteBytes,
		maxRewriteEntries: config.MaxRewriteEntries,
	}
}

// load fetches and decodes one node.
func (s *Service) load(ctx context.Context, key cas.Key) (*cas.Node, error) {
	raw, err := s.nodes.Get(ctx, key)
	if err != nil {
		if errors.Is(err, nodestore.ErrNodeNotFound) {
			return nil, errtypes.NotFound(CodeNodeNotFound, "node %s not found", key.Format(cas.PrefixNode))
		}
		return nil, errtypes.Internal(err, "read node %s", key)
	}
	decoded, err := cas.Decode(raw)
	if err != nil {
		return nil, errtypes.Internal(err, "node %s is corrupt", key)
	}
	return decoded, nil
}

// putNode stores an encoded node and fires the stored-node hook. Well-known
// nodes are virtual and skip both.
func (s *Service) putNode(ctx context.Context, actor Actor, key cas.Key, raw []byte, kind cas.Kind, contentType string) error {
	if cas.IsWellKnown(key) {
		return nil
	}
	exists, err := s.nodes.Has(ctx, key)
	if err != nil {
		return errtypes.Internal(err, "check node %s", key)
	}
	if err := s.nodes.Put(ctx, key, raw); err != nil {
		return errtypes.Internal(err, "store node %s", key)
	}
	if s.hook == nil {
		return nil
	}
	return s.hook.OnNodeStored(ctx, actor, StoredNode{
		Key:         key,
		Raw:         raw,
		Kind:        kind,
		Size:        uint64(len(raw)),
		ContentType: contentType,
		Fresh:       !exists,
	})
}
