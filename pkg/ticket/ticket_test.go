package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	metamem "github.com/depotfs/depotfs/pkg/store/meta/memory"
)

func newTestService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	store := metamem.New()
	t.Cleanup(func() { _ = store.Close() })
	svc := New(store)
	now := time.Now()
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "realm-1", "workspace", "dlt_tok")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, TTL, created.ExpiresAt.Sub(created.CreatedAt))

	got, err := svc.Get(ctx, "realm-1", created.TicketID)
	require.NoError(t, err)
	assert.Equal(t, created.TicketID, got.TicketID)

	root := cas.KeyFor([]byte("submitted-root"))
	submitted, err := svc.Submit(ctx, "realm-1", created.TicketID, root)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, submitted.Status)
	assert.Equal(t, root, submitted.SubmittedRoot)

	_, err = svc.Submit(ctx, "realm-1", created.TicketID, root)
	assert.True(t, errtypes.IsCode(err, CodeAlreadyDone))
}

func TestExpiry(t *testing.T) {
	svc, now := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "realm-1", "ws", "dlt_tok")
	require.NoError(t, err)

	*now = now.Add(TTL + time.Minute)
	_, err = svc.Get(ctx, "realm-1", created.TicketID)
	assert.True(t, errtypes.IsCode(err, CodeTicketExpired))

	// The lazy delete leaves a clean not-found afterwards.
	_, err = svc.Get(ctx, "realm-1", created.TicketID)
	assert.True(t, errtypes.IsCode(err, CodeTicketNotFound))
}

func TestListSkipsExpired(t *testing.T) {
	svc, now := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "realm-1", "old", "dlt_tok")
	require.NoError(t, err)
	*now = now.Add(TTL + time.Minute)
	fresh, err := svc.Create(ctx, "realm-1", "fresh", "dlt_tok")
	require.NoError(t, err)

	tickets, _, err := svc.List(ctx, "realm-1", "", 10)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, fresh.TicketID, tickets[0].TicketID)
}
