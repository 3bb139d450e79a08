package proof

import (
	"context"
	"errors"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
)

// VersionResolver resolves a committed depot version to its root key.
// *depot.Registry satisfies it.
type VersionResolver interface {
	ResolveVersion(ctx context.Context, realm, depotID string, version uint64) (cas.Key, error)
}

// Principal carries the verification-relevant facts about the acting
// delegate.
type Principal struct {
	Realm string

	// ScopeRoots are the delegate's resolved scope roots, in scope order.
	ScopeRoots []cas.Key

	// CanManageDepot gates depot-version words.
	CanManageDepot bool
}

// Verifier checks proof words by walking the claimed index path through the
// node store and comparing the final hash to the target.
type Verifier struct {
	nodes  nodestore.Store
	depots VersionResolver
}

// NewVerifier creates a proof verifier. depots may be nil when depot words
// are not accepted.
func NewVerifier(nodes nodestore.Store, depots VersionResolver) *Verifier {
	return &Verifier{nodes: nodes, depots: depots}
}

// Verify walks word from its origin and confirms it lands exactly on
// target. Every intermediate node must resolve through the node store.
func (v *Verifier) Verify(ctx context.Context, principal Principal, word *Word, target cas.Key) error {
	var origin cas.Key
	switch word.Kind {
	case KindIPath:
		if int(word.ScopeIndex) >= len(principal.ScopeRoots) {
			return errtypes.Authorization(CodeScopeRootOutOfBounds,
				"scope index %d out of bounds (%d roots)", word.ScopeIndex, len(principal.ScopeRoots))
		}
		origin = principal.ScopeRoots[word.ScopeIndex]

	case KindDepot:
		if !principal.CanManageDepot {
			return errtypes.Authorization(CodeDepotAccessDenied, "delegate lacks depot management access")
		}
		if v.depots == nil {
			return errtypes.Authorization(CodeDepotAccessDenied, "depot proofs are not accepted")
		}
		root, err := v.depots.ResolveVersion(ctx, principal.Realm, word.DepotID, word.Version)
		if err != nil {
			return err
		}
		origin = root

	default:
		return errtypes.Validation(CodeInvalidWord, "unknown proof word kind")
	}

	final, err := v.walk(ctx, origin, word.Path)
	if err != nil {
		return err
	}
	if final != target {
		return errtypes.Authorization(CodePathMismatch,
			"proof walk ends at %s, not %s", final.Format(cas.PrefixNode), target.Format(cas.PrefixNode))
	}
	return nil
}

// walk follows child indices from root, loading each node on the way. The
// terminal node is not loaded: its identity is what the caller compares.
func (v *Verifier) walk(ctx context.Context, root cas.Key, path []int) (cas.Key, error) {
	current := root
	for depth, idx := range path {
		raw, err := v.nodes.Get(ctx, current)
		if errors.Is(err, nodestore.ErrNodeNotFound) {
			return cas.ZeroKey, errtypes.NotFound(CodeNodeNotFound,
				"proof node %s not found at depth %d", current.Format(cas.PrefixNode), depth)
		}
		if err != nil {
			return cas.ZeroKey, errtypes.Internal(err, "read proof node %s", current)
		}
		decoded, err := cas.Decode(raw)
		if err != nil {
			return cas.ZeroKey, errtypes.Internal(err, "proof node %s is corrupt", current)
		}
		if idx >= len(decoded.Children) {
			return cas.ZeroKey, errtypes.Authorization(CodeChildOutOfBounds,
				"child index %d out of bounds at depth %d (%d children)", idx, depth, len(decoded.Children))
		}
		current = decoded.Children[idx]
	}
	return current, nil
}
