package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depotfs/pkg/cache"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/fs"
	"github.com/depotfs/depotfs/pkg/ownership"
	metamem "github.com/depotfs/depotfs/pkg/store/meta/memory"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
	nodemem "github.com/depotfs/depotfs/pkg/store/node/memory"
)

var testActor = fs.Actor{
	Realm:      "realm-1",
	DelegateID: "dlg-b",
	Chain:      []string{"dlg-root", "dlg-a", "dlg-b"},
}

type fixture struct {
	accountant *Accountant
	owners     *ownership.Index
	fs         *fs.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := metamem.New()
	backing := nodemem.New()
	t.Cleanup(func() {
		_ = store.Close()
		_ = backing.Close()
	})
	owners, err := ownership.New(store, 64)
	require.NoError(t, err)
	nodes := nodestore.NewWellKnown(nodestore.NewVerified(backing))
	accountant := New(owners, store, nodes, cache.Null{})
	return &fixture{
		accountant: accountant,
		owners:     owners,
		fs:         fs.New(nodes, accountant, nil, fs.Config{}),
	}
}

func TestStoredNodeBookkeeping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.fs.Write(ctx, testActor, cas.EmptyDirKey(), fs.MustPathRef("a.txt"), []byte("hello"), "text/plain")
	require.NoError(t, err)

	// Every chain element owns the new file node.
	for _, delegateID := range testActor.Chain {
		owned, err := f.owners.Has(ctx, result.Key, delegateID)
		require.NoError(t, err)
		assert.True(t, owned, delegateID)
	}

	count, err := f.accountant.RefCount(ctx, "realm-1", result.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	usage, err := f.accountant.Realm(ctx, "realm-1")
	require.NoError(t, err)
	assert.Positive(t, usage.Bytes)
	assert.Equal(t, int64(2), usage.Nodes, "one file node plus one directory node")
}

func TestReuploadDoesNotDoubleCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.fs.Write(ctx, testActor, cas.EmptyDirKey(), fs.MustPathRef("a.txt"), []byte("same"), "text/plain")
	require.NoError(t, err)
	before, err := f.accountant.Realm(ctx, "realm-1")
	require.NoError(t, err)

	// A different chain writes identical content: same keys, no fresh nodes.
	otherActor := fs.Actor{Realm: "realm-1", DelegateID: "dlg-x", Chain: []string{"dlg-x"}}
	second, err := f.fs.Write(ctx, otherActor, cas.EmptyDirKey(), fs.MustPathRef("a.txt"), []byte("same"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)

	after, err := f.accountant.Realm(ctx, "realm-1")
	require.NoError(t, err)
	assert.Equal(t, before.Bytes, after.Bytes)
	assert.Equal(t, before.Nodes, after.Nodes)

	// But the second chain still gained ownership.
	owned, err := f.owners.Has(ctx, first.Key, "dlg-x")
	require.NoError(t, err)
	assert.True(t, owned)
}

func TestReleaseToZeroCleansUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.fs.Write(ctx, testActor, cas.EmptyDirKey(), fs.MustPathRef("a.txt"), []byte("gone"), "text/plain")
	require.NoError(t, err)

	count, err := f.accountant.Release(ctx, "realm-1", result.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	any, err := f.owners.HasAny(ctx, result.Key)
	require.NoError(t, err)
	assert.False(t, any)

	count, err = f.accountant.RefCount(ctx, "realm-1", result.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
