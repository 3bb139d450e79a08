package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/fs"
	"github.com/depotfs/depotfs/pkg/ownership"
	"github.com/depotfs/depotfs/pkg/proof"
	metamem "github.com/depotfs/depotfs/pkg/store/meta/memory"
	nodemem "github.com/depotfs/depotfs/pkg/store/node/memory"
)

type fixture struct {
	gate      *Gate
	delegates *delegate.Service
	owners    *ownership.Index
	nodes     *nodemem.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := metamem.New()
	nodes := nodemem.New()
	t.Cleanup(func() {
		_ = store.Close()
		_ = nodes.Close()
	})
	owners, err := ownership.New(store, 64)
	require.NoError(t, err)
	delegates := delegate.New(store, nodes)
	verifier := proof.NewVerifier(nodes, nil)
	return &fixture{
		gate:      New(owners, delegates, verifier),
		delegates: delegates,
		owners:    owners,
		nodes:     nodes,
	}
}

func actorOf(record *delegate.Record) fs.Actor {
	return fs.Actor{Realm: record.Realm, DelegateID: record.DelegateID, Chain: record.Chain}
}

func (f *fixture) createChild(t *testing.T, parentID string, scope cas.Key) *delegate.Record {
	t.Helper()
	child, err := f.delegates.Create(context.Background(), delegate.CreateParams{
		ParentID:  parentID,
		CanUpload: true,
		Scope:     delegate.Scope{NodeHash: scope},
	})
	require.NoError(t, err)
	return child
}

// Delegate chain [root, A, B]: B's upload is visible to the whole chain,
// and a cousin under A links through A's ownership.
func TestChainOwnershipAuthorizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.delegates.Create(ctx, delegate.CreateParams{Realm: "realm-1", CanUpload: true, CanManageDepot: true})
	require.NoError(t, err)
	scope := cas.KeyFor([]byte("scope"))
	a := f.createChild(t, root.DelegateID, scope)
	b := f.createChild(t, a.DelegateID, scope)
	c := f.createChild(t, a.DelegateID, scope)

	node := cas.KeyFor([]byte("uploaded-by-b"))
	require.NoError(t, f.owners.Add(ctx, node, b.Chain, b.DelegateID, cas.KindFile, 10, ""))

	// Chain [root, A, C] reaches the node through A.
	assert.NoError(t, f.gate.AuthorizeLink(ctx, actorOf(c), node, ""))

	// A sibling chain outside the tree carries no proof and is turned away
	// at the gate, not inside proof verification.
	otherRoot, err := f.delegates.Create(ctx, delegate.CreateParams{Realm: "realm-2", CanUpload: true})
	require.NoError(t, err)
	stranger := f.createChild(t, otherRoot.DelegateID, scope)
	err = f.gate.AuthorizeLink(ctx, actorOf(stranger), node, "")
	assert.True(t, errtypes.IsCode(err, CodeLinkNotAuthorized))
}

func TestRootDelegateBypassesProof(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.delegates.Create(ctx, delegate.CreateParams{Realm: "realm-1", CanUpload: true})
	require.NoError(t, err)

	// Even a malformed proof is ignored for a root delegate.
	node := cas.KeyFor([]byte("unowned"))
	assert.NoError(t, f.gate.AuthorizeLink(ctx, actorOf(root), node, "garbage"))
}

func TestWellKnownAlwaysAllowed(t *testing.T) {
	f := newFixture(t)
	actor := fs.Actor{Realm: "realm-1", DelegateID: "dlg_nobody"}
	assert.NoError(t, f.gate.AuthorizeLink(context.Background(), actor, cas.EmptyDirKey(), ""))
}

func TestProofPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Scope tree: scopeRoot -> {"doc": target}.
	targetRaw, targetKey, err := cas.EncodeFile([]byte("doc"), "text/plain", 3, nil)
	require.NoError(t, err)
	require.NoError(t, f.nodes.Put(ctx, targetKey, targetRaw))
	scopeRaw, scopeKey, err := cas.EncodeDict([]cas.DictEntry{{Name: "doc", Key: targetKey}})
	require.NoError(t, err)
	require.NoError(t, f.nodes.Put(ctx, scopeKey, scopeRaw))

	root, err := f.delegates.Create(ctx, delegate.CreateParams{Realm: "realm-1", CanUpload: true})
	require.NoError(t, err)
	child := f.createChild(t, root.DelegateID, scopeKey)

	assert.NoError(t, f.gate.AuthorizeLink(ctx, actorOf(child), targetKey, "ipath#0:0"))

	// Malformed proofs fail with their parse error, not MISSING_PROOF.
	err = f.gate.AuthorizeLink(ctx, actorOf(child), targetKey, "ipath#x")
	assert.True(t, errtypes.IsCode(err, proof.CodeInvalidWord))

	// A proof landing on a different node is rejected.
	err = f.gate.AuthorizeLink(ctx, actorOf(child), cas.KeyFor([]byte("other")), "ipath#0:0")
	assert.True(t, errtypes.IsCode(err, proof.CodePathMismatch))
}

func TestRevokedDelegateFailsAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.delegates.Create(ctx, delegate.CreateParams{Realm: "realm-1", CanUpload: true})
	require.NoError(t, err)
	node := cas.KeyFor([]byte("n"))
	require.NoError(t, f.owners.Add(ctx, node, root.Chain, root.DelegateID, cas.KindFile, 1, ""))
	require.NoError(t, f.delegates.Revoke(ctx, root.DelegateID))

	err = f.gate.AuthorizeLink(ctx, actorOf(root), node, "")
	assert.True(t, errtypes.IsCode(err, delegate.CodeRootRevoked))
}
