package delegate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	metamem "github.com/depotfs/depotfs/pkg/store/meta/memory"
	nodemem "github.com/depotfs/depotfs/pkg/store/node/memory"
)

func newTestService(t *testing.T) (*Service, *nodemem.Store) {
	t.Helper()
	store := metamem.New()
	nodes := nodemem.New()
	t.Cleanup(func() {
		_ = store.Close()
		_ = nodes.Close()
	})
	return New(store, nodes), nodes
}

func createRoot(t *testing.T, svc *Service) *Record {
	t.Helper()
	root, err := svc.Create(context.Background(), CreateParams{
		Realm:          "realm-1",
		CanUpload:      true,
		CanManageDepot: true,
	})
	require.NoError(t, err)
	return root
}

func scopeOf(key cas.Key) Scope {
	return Scope{NodeHash: key}
}

func TestCreateRootAndChild(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root := createRoot(t, svc)
	assert.True(t, root.IsRoot())
	assert.Equal(t, []string{root.DelegateID}, root.Chain)
	assert.Equal(t, 0, root.Depth())

	child, err := svc.Create(ctx, CreateParams{
		ParentID:  root.DelegateID,
		CanUpload: true,
		Scope:     scopeOf(cas.KeyFor([]byte("scope"))),
	})
	require.NoError(t, err)
	assert.Equal(t, "realm-1", child.Realm)
	assert.Equal(t, []string{root.DelegateID, child.DelegateID}, child.Chain)
	assert.Equal(t, 1, child.Depth())
	assert.False(t, child.CanManageDepot)
}

func TestCapabilitySubset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateParams{Realm: "realm-1", CanUpload: false, CanManageDepot: false})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateParams{
		ParentID:  root.DelegateID,
		CanUpload: true,
		Scope:     scopeOf(cas.KeyFor([]byte("s"))),
	})
	assert.True(t, errtypes.IsCode(err, CodeInvalidCapabilities))
}

func TestScopeRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	root := createRoot(t, svc)

	// Non-root without a scope.
	_, err := svc.Create(ctx, CreateParams{ParentID: root.DelegateID})
	assert.True(t, errtypes.IsCode(err, CodeInvalidScope))

	// Both scope variants at once.
	_, err = svc.Create(ctx, CreateParams{
		ParentID: root.DelegateID,
		Scope: Scope{
			NodeHash:  cas.KeyFor([]byte("a")),
			SetNodeID: cas.KeyFor([]byte("b")),
		},
	})
	assert.True(t, errtypes.IsCode(err, CodeInvalidScope))
}

func TestChainDepthBound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	current := createRoot(t, svc)
	for i := 0; i < 15; i++ {
		child, err := svc.Create(ctx, CreateParams{
			ParentID:  current.DelegateID,
			CanUpload: true,
			Scope:     scopeOf(cas.KeyFor([]byte("s"))),
		})
		require.NoError(t, err)
		current = child
	}
	require.Equal(t, 15, current.Depth())

	_, err := svc.Create(ctx, CreateParams{
		ParentID: current.DelegateID,
		Scope:    scopeOf(cas.KeyFor([]byte("s"))),
	})
	assert.True(t, errtypes.IsCode(err, CodeInvalidChain))
}

func TestRevocationBlocksCreation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	root := createRoot(t, svc)
	child, err := svc.Create(ctx, CreateParams{
		ParentID:  root.DelegateID,
		CanUpload: true,
		Scope:     scopeOf(cas.KeyFor([]byte("s"))),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, root.DelegateID))

	_, err = svc.Create(ctx, CreateParams{
		ParentID: child.DelegateID,
		Scope:    scopeOf(cas.KeyFor([]byte("s"))),
	})
	assert.True(t, errtypes.IsCode(err, CodeRootRevoked))

	_, err = svc.RequireAlive(ctx, root.DelegateID)
	assert.True(t, errtypes.IsCode(err, CodeRootRevoked))

	// Revoking does not alter the chain recording.
	reloaded, err := svc.Get(ctx, child.DelegateID)
	require.NoError(t, err)
	assert.Equal(t, []string{root.DelegateID, child.DelegateID}, reloaded.Chain)
}

func TestScopeRoots(t *testing.T) {
	svc, nodes := newTestService(t)
	ctx := context.Background()
	root := createRoot(t, svc)

	// Unrestricted root.
	roots, err := svc.ScopeRoots(ctx, root)
	require.NoError(t, err)
	assert.Nil(t, roots)

	// Single-node scope.
	single := cas.KeyFor([]byte("single"))
	child, err := svc.Create(ctx, CreateParams{ParentID: root.DelegateID, Scope: scopeOf(single)})
	require.NoError(t, err)
	roots, err = svc.ScopeRoots(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, []cas.Key{single}, roots)

	// Set-node scope.
	a := cas.KeyFor([]byte("a"))
	b := cas.KeyFor([]byte("b"))
	raw, setKey, err := cas.EncodeSet([]cas.Key{a, b})
	require.NoError(t, err)
	require.NoError(t, nodes.Put(ctx, setKey, raw))

	child2, err := svc.Create(ctx, CreateParams{ParentID: root.DelegateID, Scope: Scope{SetNodeID: setKey}})
	require.NoError(t, err)
	roots, err = svc.ScopeRoots(ctx, child2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []cas.Key{a, b}, roots)
}

func TestTokenRotation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	root := createRoot(t, svc)
	exp := time.Now().Add(time.Hour)

	require.NoError(t, svc.SetTokens(ctx, root.DelegateID, "at1", "rt1", exp))

	// Wrong refresh hash.
	err := svc.RotateTokens(ctx, root.DelegateID, "bogus", "at2", "rt2", exp)
	assert.True(t, errtypes.IsCode(err, CodeTokenInvalid))

	// Correct rotation.
	require.NoError(t, svc.RotateTokens(ctx, root.DelegateID, "rt1", "at2", "rt2", exp))
	state, err := svc.GetTokenState(ctx, root.DelegateID)
	require.NoError(t, err)
	assert.Equal(t, "at2", state.AccessHash)
	assert.Equal(t, "rt2", state.RefreshHash)

	// The old refresh token is burned.
	err = svc.RotateTokens(ctx, root.DelegateID, "rt1", "at3", "rt3", exp)
	assert.True(t, errtypes.IsCode(err, CodeTokenInvalid))

	// A delegate with no token state at all.
	err = svc.RotateTokens(ctx, "dlg_missing", "rt", "at", "rt2", exp)
	assert.True(t, errtypes.IsCode(err, CodeTokenInvalid))
}
