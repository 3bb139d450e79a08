package depot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depotfs/pkg/cache"
	cachemem "github.com/depotfs/depotfs/pkg/cache/memory"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	metamem "github.com/depotfs/depotfs/pkg/store/meta/memory"
)

func rootKey(seed string) cas.Key {
	return cas.KeyFor([]byte(seed))
}

func newTestRegistry(t *testing.T, c cache.Cache) *Registry {
	t.Helper()
	store := metamem.New()
	t.Cleanup(func() { _ = store.Close() })
	return New(store, c)
}

func TestCreateAndGet(t *testing.T) {
	reg := newTestRegistry(t, cache.Null{})
	ctx := context.Background()
	r0 := rootKey("r0")

	created, err := reg.Create(ctx, "realm-1", "main", r0, 5, "iss-1", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, r0, created.Root)
	require.Len(t, created.History, 1)
	assert.Equal(t, uint64(1), created.History[0].Seq)

	got, err := reg.Get(ctx, "realm-1", created.DepotID)
	require.NoError(t, err)
	assert.Equal(t, created.DepotID, got.DepotID)

	byName, err := reg.GetByName(ctx, "realm-1", "main")
	require.NoError(t, err)
	assert.Equal(t, created.DepotID, byName.DepotID)

	// Name unique per realm; free in other realms.
	_, err = reg.Create(ctx, "realm-1", "main", r0, 5, "", "")
	assert.True(t, errtypes.IsCode(err, CodeTargetExists))
	_, err = reg.Create(ctx, "realm-2", "main", r0, 5, "", "")
	assert.NoError(t, err)

	_, err = reg.Get(ctx, "realm-1", "dpt_missing")
	assert.True(t, errtypes.IsCode(err, CodeDepotNotFound))
}

func TestCommitConflictScenario(t *testing.T) {
	reg := newTestRegistry(t, cache.Null{})
	ctx := context.Background()
	r0, r1, r2 := rootKey("r0"), rootKey("r1"), rootKey("r2")

	created, err := reg.Create(ctx, "realm-1", "main", r0, 5, "", "")
	require.NoError(t, err)
	id := created.DepotID

	// First conditional commit succeeds.
	after1, err := reg.Commit(ctx, "realm-1", id, CommitParams{NewRoot: r1, ExpectedRoot: &r0})
	require.NoError(t, err)
	assert.Equal(t, r1, after1.Root)

	// Second commit still expecting r0 conflicts and reports both roots.
	_, err = reg.Commit(ctx, "realm-1", id, CommitParams{NewRoot: r2, ExpectedRoot: &r0})
	require.Error(t, err)
	assert.True(t, errtypes.IsCode(err, CodeDepotConflict))
	var cerr *errtypes.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, r1.Format(cas.PrefixNode), cerr.Details["currentRoot"])
	assert.Equal(t, r0.Format(cas.PrefixNode), cerr.Details["expectedRoot"])

	// Retrying against the observed root succeeds.
	after2, err := reg.Commit(ctx, "realm-1", id, CommitParams{NewRoot: r2, ExpectedRoot: &r1})
	require.NoError(t, err)
	assert.Equal(t, r2, after2.Root)

	// History is most-recent-first with parent pointers.
	require.GreaterOrEqual(t, len(after2.History), 2)
	assert.Equal(t, r2, after2.History[0].Root)
	assert.Equal(t, r1, after2.History[0].ParentRoot)
	assert.Equal(t, r1, after2.History[1].Root)
}

func TestCommitDedupesAndTruncates(t *testing.T) {
	reg := newTestRegistry(t, cache.Null{})
	ctx := context.Background()

	created, err := reg.Create(ctx, "realm-1", "main", rootKey("a"), 2, "", "")
	require.NoError(t, err)
	id := created.DepotID

	_, err = reg.Commit(ctx, "realm-1", id, CommitParams{NewRoot: rootKey("b")})
	require.NoError(t, err)
	after, err := reg.Commit(ctx, "realm-1", id, CommitParams{NewRoot: rootKey("a")})
	require.NoError(t, err)

	// "a" was deduped out of its old slot and the ring is capped at 2.
	require.Len(t, after.History, 2)
	assert.Equal(t, rootKey("a"), after.History[0].Root)
	assert.Equal(t, rootKey("b"), after.History[1].Root)
}

func TestFirstCommitOnEmptyDepot(t *testing.T) {
	reg := newTestRegistry(t, cache.Null{})
	ctx := context.Background()

	created, err := reg.Create(ctx, "realm-1", "empty", cas.ZeroKey, 5, "", "")
	require.NoError(t, err)
	assert.Empty(t, created.History)

	// Expecting "no root yet" is the zero key.
	zero := cas.ZeroKey
	after, err := reg.Commit(ctx, "realm-1", created.DepotID, CommitParams{NewRoot: rootKey("r1"), ExpectedRoot: &zero})
	require.NoError(t, err)
	assert.Equal(t, rootKey("r1"), after.Root)

	_, err = reg.Commit(ctx, "realm-1", created.DepotID, CommitParams{NewRoot: rootKey("r2"), ExpectedRoot: &zero})
	assert.True(t, errtypes.IsCode(err, CodeDepotConflict))
}

func TestResolveVersion(t *testing.T) {
	reg := newTestRegistry(t, cache.Null{})
	ctx := context.Background()

	created, err := reg.Create(ctx, "realm-1", "main", rootKey("a"), 5, "", "")
	require.NoError(t, err)
	after, err := reg.Commit(ctx, "realm-1", created.DepotID, CommitParams{NewRoot: rootKey("b")})
	require.NoError(t, err)

	root, err := reg.ResolveVersion(ctx, "realm-1", created.DepotID, 1)
	require.NoError(t, err)
	assert.Equal(t, rootKey("a"), root)
	root, err = reg.ResolveVersion(ctx, "realm-1", created.DepotID, after.History[0].Seq)
	require.NoError(t, err)
	assert.Equal(t, rootKey("b"), root)

	_, err = reg.ResolveVersion(ctx, "realm-1", created.DepotID, 99)
	assert.True(t, errtypes.IsCode(err, CodeDepotVersionNotFound))
}

func TestUpdateRename(t *testing.T) {
	reg := newTestRegistry(t, cachemem.New())
	ctx := context.Background()

	created, err := reg.Create(ctx, "realm-1", "old", rootKey("a"), 5, "", "")
	require.NoError(t, err)
	_, err = reg.Create(ctx, "realm-1", "taken", rootKey("a"), 5, "", "")
	require.NoError(t, err)

	name := "taken"
	_, err = reg.Update(ctx, "realm-1", created.DepotID, UpdateParams{Name: &name})
	assert.True(t, errtypes.IsCode(err, CodeTargetExists))

	name = "new"
	updated, err := reg.Update(ctx, "realm-1", created.DepotID, UpdateParams{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Name)

	_, err = reg.GetByName(ctx, "realm-1", "old")
	assert.True(t, errtypes.IsCode(err, CodeDepotNotFound))
	byName, err := reg.GetByName(ctx, "realm-1", "new")
	require.NoError(t, err)
	assert.Equal(t, created.DepotID, byName.DepotID)
}

func TestLoweredHistoryCapTruncatesOnNextCommit(t *testing.T) {
	reg := newTestRegistry(t, cache.Null{})
	ctx := context.Background()

	created, err := reg.Create(ctx, "realm-1", "main", rootKey("a"), 5, "", "")
	require.NoError(t, err)
	id := created.DepotID
	for _, seed := range []string{"b", "c", "d"} {
		_, err = reg.Commit(ctx, "realm-1", id, CommitParams{NewRoot: rootKey(seed)})
		require.NoError(t, err)
	}

	histCap := 2
	updated, err := reg.Update(ctx, "realm-1", id, UpdateParams{MaxHistory: &histCap})
	require.NoError(t, err)
	assert.Len(t, updated.History, 4, "update itself keeps existing history")

	after, err := reg.Commit(ctx, "realm-1", id, CommitParams{NewRoot: rootKey("e")})
	require.NoError(t, err)
	assert.Len(t, after.History, 2)
}

func TestDeleteAndList(t *testing.T) {
	reg := newTestRegistry(t, cachemem.New())
	ctx := context.Background()

	first, err := reg.Create(ctx, "realm-1", "one", rootKey("a"), 5, "", "")
	require.NoError(t, err)
	_, err = reg.Create(ctx, "realm-1", "two", rootKey("b"), 5, "", "")
	require.NoError(t, err)

	depots, next, err := reg.List(ctx, "realm-1", "", 10)
	require.NoError(t, err)
	assert.Len(t, depots, 2)
	assert.Empty(t, next)

	require.NoError(t, reg.Delete(ctx, "realm-1", first.DepotID))
	_, err = reg.Get(ctx, "realm-1", first.DepotID)
	assert.True(t, errtypes.IsCode(err, CodeDepotNotFound))
	_, err = reg.GetByName(ctx, "realm-1", "one")
	assert.True(t, errtypes.IsCode(err, CodeDepotNotFound))

	depots, _, err = reg.List(ctx, "realm-1", "", 10)
	require.NoError(t, err)
	assert.Len(t, depots, 1)
}

// Replacing the cache with Null yields the same observable results.
func TestCacheTransparency(t *testing.T) {
	ctx := context.Background()
	run := func(c cache.Cache) (*Depot, error) {
		reg := newTestRegistry(t, c)
		created, err := reg.Create(ctx, "realm-1", "main", rootKey("a"), 5, "", "")
		if err != nil {
			return nil, err
		}
		if _, err := reg.Commit(ctx, "realm-1", created.DepotID, CommitParams{NewRoot: rootKey("b")}); err != nil {
			return nil, err
		}
		return reg.Get(ctx, "realm-1", created.DepotID)
	}

	withNull, err := run(cache.Null{})
	require.NoError(t, err)
	withMem, err := run(cachemem.New())
	require.NoError(t, err)

	assert.Equal(t, withNull.Root, withMem.Root)
	assert.Equal(t, len(withNull.History), len(withMem.History))
	assert.Equal(t, withNull.NextSeq, withMem.NextSeq)
}
