// Package authz implements the link authorization gate. When a filesystem
// operation references an arbitrary node by key, the gate allows it through
// full-chain ownership, root-delegate status, or a verified scope proof, in
// that order.
package authz

import (
	"context"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/fs"
	"github.com/depotfs/depotfs/pkg/ownership"
	"github.com/depotfs/depotfs/pkg/proof"
)

// CodeLinkNotAuthorized is returned when no authorization path admits the
// reference.
const CodeLinkNotAuthorized = "LINK_NOT_AUTHORIZED"

// Gate evaluates link references. It implements fs.LinkAuthorizer.
type Gate struct {
	owners    *ownership.Index
	delegates *delegate.Service
	verifier  *proof.Verifier
}

// New creates a link authorization gate.
func New(owners *ownership.Index, delegates *delegate.Service, verifier *proof.Verifier) *Gate {
	return &Gate{owners: owners, delegates: delegates, verifier: verifier}
}

// AuthorizeLink admits or rejects a reference to key by the acting
// delegate. Checks run in strict order: well-known nodes, full-chain
// ownership, root-delegate status, then the proof. Ownership and root
// status short-circuit even a malformed proof; a malformed proof otherwise
// fails before a missing one would.
func (g *Gate) AuthorizeLink(ctx context.Context, actor fs.Actor, key cas.Key, proofWord string) error {
	if cas.IsWellKnown(key) {
		return nil
	}

	record, err := g.delegates.RequireAlive(ctx, actor.DelegateID)
	if err != nil {
		return err
	}
	if record.Realm != actor.Realm {
		return errtypes.Authorization(delegate.CodeRealmMismatch,
			"delegate %s does not belong to realm %s", actor.DelegateID, actor.Realm)
	}

	owner, err := g.owners.HasBatch(ctx, key, record.Chain)
	if err != nil {
		return err
	}
	if owner != "" {
		logger.DebugCtx(ctx, "Link allowed by chain ownership", "node", key.String(), "owner", owner)
		return nil
	}

	if record.IsRoot() {
		return nil
	}

	if proofWord == "" {
		return errtypes.Authorization(CodeLinkNotAuthorized,
			"no ownership and no proof for %s", key.Format(cas.PrefixNode))
	}
	word, err := proof.ParseWord(proofWord)
	if err != nil {
		return err
	}
	scopeRoots, err := g.delegates.ScopeRoots(ctx, record)
	if err != nil {
		return err
	}
	principal := proof.Principal{
		Realm:          record.Realm,
		ScopeRoots:     scopeRoots,
		CanManageDepot: record.CanManageDepot,
	}
	if err := g.verifier.Verify(ctx, principal, word, key); err != nil {
		return err
	}
	logger.DebugCtx(ctx, "Link allowed by proof", "node", key.String(), "word", proofWord)
	return nil
}

// Ensure Gate implements fs.LinkAuthorizer.
var _ fs.LinkAuthorizer = (*Gate)(nil)
