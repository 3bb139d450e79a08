package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depotfs/internal/api/auth"
	"github.com/depotfs/depotfs/internal/api/handlers"
	"github.com/depotfs/depotfs/pkg/api"
	"github.com/depotfs/depotfs/pkg/authz"
	"github.com/depotfs/depotfs/pkg/cache"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/claim"
	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/depot"
	"github.com/depotfs/depotfs/pkg/fs"
	"github.com/depotfs/depotfs/pkg/ownership"
	"github.com/depotfs/depotfs/pkg/proof"
	metamem "github.com/depotfs/depotfs/pkg/store/meta/memory"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
	nodemem "github.com/depotfs/depotfs/pkg/store/node/memory"
	"github.com/depotfs/depotfs/pkg/ticket"
	"github.com/depotfs/depotfs/pkg/usage"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

type stack struct {
	router    http.Handler
	jwt       *auth.JWTService
	delegates *delegate.Service
	nodes     nodestore.Store
	depots    *depot.Registry
}

func newStack(t *testing.T) *stack {
	t.Helper()

	store := metamem.New()
	rawNodes := nodemem.New()
	t.Cleanup(func() {
		_ = store.Close()
		_ = rawNodes.Close()
	})
	nodes := nodestore.NewWellKnown(nodestore.NewVerified(rawNodes))

	owners, err := ownership.New(store, 128)
	require.NoError(t, err)
	delegates := delegate.New(store, nodes)
	depots := depot.New(store, cache.Null{})
	accountant := usage.New(owners, store, nodes, cache.Null{})
	verifier := proof.NewVerifier(nodes, depots)
	gate := authz.New(owners, delegates, verifier)
	fsService := fs.New(nodes, accountant, gate, fs.Config{})
	tickets := ticket.New(store)
	claims := claim.New(owners, delegates, nodes)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: testJWTSecret})
	require.NoError(t, err)

	router := api.NewRouter(api.Deps{
		JWT:       jwtService,
		Delegates: delegates,
		FS:        fsService,
		Depots:    depots,
		Tickets:   tickets,
		Claims:    claims,
		Gate:      gate,
		Nodes:     nodes,
		Hook:      accountant,
		HealthChecks: map[string]handlers.HealthChecker{
			"meta_store": store,
			"node_store": rawNodes,
		},
	})

	return &stack{
		router:    router,
		jwt:       jwtService,
		delegates: delegates,
		nodes:     nodes,
		depots:    depots,
	}
}

// issueDelegate creates a delegate with an installed token pair.
func (s *stack) issueDelegate(t *testing.T, params delegate.CreateParams) (*delegate.Record, *auth.TokenPair) {
	t.Helper()
	record, err := s.delegates.Create(context.Background(), params)
	require.NoError(t, err)
	pair, err := s.jwt.GenerateTokenPair(record.DelegateID, record.Realm)
	require.NoError(t, err)
	err = s.delegates.SetTokens(context.Background(), record.DelegateID,
		auth.TokenHash(pair.AccessToken), auth.TokenHash(pair.RefreshToken), pair.ExpiresAt)
	require.NoError(t, err)
	return record, pair
}

func (s *stack) rootDelegate(t *testing.T) (*delegate.Record, *auth.TokenPair) {
	t.Helper()
	return s.issueDelegate(t, delegate.CreateParams{
		Realm:          "realm-1",
		CanUpload:      true,
		CanManageDepot: true,
	})
}

func (s *stack) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok, "response %s has no error envelope", rec.Body.String())
	code, _ := detail["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	s := newStack(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["meta_store"])
	assert.Equal(t, "ok", checks["node_store"])
}

func TestAuthRequired(t *testing.T) {
	s := newStack(t)

	rec := s.do(t, http.MethodGet, "/v1/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "MISSING_TOKEN", errorCode(t, rec))

	rec = s.do(t, http.MethodGet, "/v1/tickets", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_INVALID", errorCode(t, rec))
}

func TestRefreshRotatesTokens(t *testing.T) {
	s := newStack(t)
	root, _ := s.rootDelegate(t)
	_, pair := s.issueDelegate(t, delegate.CreateParams{
		ParentID: root.DelegateID,
		Scope:    delegate.Scope{NodeHash: cas.EmptyDirKey()},
	})

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var next auth.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.NotEqual(t, pair.AccessToken, next.AccessToken)

	// The superseded access token no longer authenticates.
	rec = s.do(t, http.MethodGet, "/v1/tickets", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_REVOKED", errorCode(t, rec))

	// The new one does.
	rec = s.do(t, http.MethodGet, "/v1/tickets", next.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Replaying the old refresh token fails.
	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_INVALID", errorCode(t, rec))
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	s := newStack(t)
	root, _ := s.rootDelegate(t)
	_, pair := s.issueDelegate(t, delegate.CreateParams{
		ParentID: root.DelegateID,
		Scope:    delegate.Scope{NodeHash: cas.EmptyDirKey()},
	})

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.AccessToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "NOT_REFRESH_TOKEN", errorCode(t, rec))
}

func TestRefreshNotAllowedForRoot(t *testing.T) {
	s := newStack(t)
	_, pair := s.rootDelegate(t)

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ROOT_REFRESH_NOT_ALLOWED", errorCode(t, rec))
}

func TestRefreshExpiredDelegate(t *testing.T) {
	s := newStack(t)
	root, _ := s.rootDelegate(t)
	child, _ := s.issueDelegate(t, delegate.CreateParams{
		ParentID: root.DelegateID,
		Scope:    delegate.Scope{NodeHash: cas.EmptyDirKey()},
	})

	// Same signing key, refresh lifetime already in the past.
	expiredJWT, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               testJWTSecret,
		RefreshTokenDuration: -time.Hour,
	})
	require.NoError(t, err)
	stale, err := expiredJWT.GenerateTokenPair(child.DelegateID, child.Realm)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": stale.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "DELEGATE_EXPIRED", errorCode(t, rec))
}

func TestFSWriteReadRoundTrip(t *testing.T) {
	s := newStack(t)
	_, pair := s.rootDelegate(t)
	emptyRoot := cas.EmptyDirKey().Format(cas.PrefixNode)

	rec := s.do(t, http.MethodPost, "/v1/fs/write", pair.AccessToken, map[string]any{
		"root":        emptyRoot,
		"path":        "docs/readme.md",
		"data":        base64.StdEncoding.EncodeToString([]byte("hello depot")),
		"contentType": "text/markdown",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	newRoot := decodeBody(t, rec)["root"].(string)
	require.NotEmpty(t, newRoot)
	assert.NotEqual(t, emptyRoot, newRoot)

	rec = s.do(t, http.MethodGet,
		fmt.Sprintf("/v1/fs/read?root=%s&path=docs/readme.md", newRoot), pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "hello depot", rec.Body.String())
	assert.Equal(t, "text/markdown", rec.Header().Get("Content-Type"))

	rec = s.do(t, http.MethodGet,
		fmt.Sprintf("/v1/fs/stat?root=%s&path=docs/readme.md", newRoot), pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stat := decodeBody(t, rec)
	assert.Equal(t, "file", stat["kind"])
	assert.Equal(t, "readme.md", stat["name"])

	rec = s.do(t, http.MethodGet,
		fmt.Sprintf("/v1/fs/list?root=%s&path=docs", newRoot), pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "readme.md", entries[0].(map[string]any)["name"])

	// The original root is untouched.
	rec = s.do(t, http.MethodGet,
		fmt.Sprintf("/v1/fs/list?root=%s&path=", emptyRoot), pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["entries"])
}

func TestFSWriteRequiresUploadCapability(t *testing.T) {
	s := newStack(t)
	root, _ := s.rootDelegate(t)
	_, childPair := s.issueDelegate(t, delegate.CreateParams{
		ParentID: root.DelegateID,
		Scope:    delegate.Scope{NodeHash: cas.EmptyDirKey()},
	})

	rec := s.do(t, http.MethodPost, "/v1/fs/write", childPair.AccessToken, map[string]any{
		"root": cas.EmptyDirKey().Format(cas.PrefixNode),
		"path": "a.txt",
		"data": base64.StdEncoding.EncodeToString([]byte("x")),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UPLOAD_NOT_ALLOWED", errorCode(t, rec))
}

func TestDepotLifecycle(t *testing.T) {
	s := newStack(t)
	_, pair := s.rootDelegate(t)

	rec := s.do(t, http.MethodPost, "/v1/depots", pair.AccessToken, map[string]any{
		"name": "main",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	depotID := decodeBody(t, rec)["depotId"].(string)

	// First commit expects no root yet.
	emptyRoot := cas.EmptyDirKey().Format(cas.PrefixNode)
	expectedNone := ""
	rec = s.do(t, http.MethodPost, "/v1/depots/"+depotID+"/commit", pair.AccessToken, map[string]any{
		"newRoot":      emptyRoot,
		"expectedRoot": &expectedNone,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A commit against a stale expected root conflicts.
	rec = s.do(t, http.MethodPost, "/v1/depots/"+depotID+"/commit", pair.AccessToken, map[string]any{
		"newRoot":      emptyRoot,
		"expectedRoot": &expectedNone,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DEPOT_CONFLICT", errorCode(t, rec))

	rec = s.do(t, http.MethodGet, "/v1/depots/"+depotID+"?version=1", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, emptyRoot, decodeBody(t, rec)["resolvedRoot"])

	rec = s.do(t, http.MethodDelete, "/v1/depots/"+depotID, pair.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/depots/"+depotID, pair.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNodePutAndIsolation(t *testing.T) {
	s := newStack(t)
	_, pair := s.rootDelegate(t)

	raw, key, err := cas.EncodeFile([]byte("secret payload"), "text/plain", 14, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/v1/nodes/"+key.Format(cas.PrefixNode), bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["fresh"])

	// Re-putting the same node is idempotent but not fresh.
	req = httptest.NewRequest(http.MethodPut, "/v1/nodes/"+key.Format(cas.PrefixNode), bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["fresh"])

	// The uploader reads it back.
	rec = s.do(t, http.MethodGet, "/v1/nodes/"+key.Format(cas.PrefixNode), pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, raw, rec.Body.Bytes())

	// A body that does not hash to the URL key is rejected.
	_, otherKey, err := cas.EncodeFile([]byte("different bytes"), "", 15, nil)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPut, "/v1/nodes/"+otherKey.Format(cas.PrefixNode), bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "KEY_MISMATCH", errorCode(t, rec))
}

func TestNodeGetDeniedWithoutOwnershipOrProof(t *testing.T) {
	s := newStack(t)
	root, rootPair := s.rootDelegate(t)

	raw, key, err := cas.EncodeFile([]byte("private"), "", 7, nil)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/v1/nodes/"+key.Format(cas.PrefixNode), bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+rootPair.AccessToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	// A scoped sibling with no ownership of the node is denied.
	_, childPair := s.issueDelegate(t, delegate.CreateParams{
		ParentID: root.DelegateID,
		Scope:    delegate.Scope{NodeHash: cas.EmptyDirKey()},
	})
	rec = s.do(t, http.MethodGet, "/v1/nodes/"+key.Format(cas.PrefixNode), childPair.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "LINK_NOT_AUTHORIZED", errorCode(t, rec))
}

func TestClaimFlow(t *testing.T) {
	s := newStack(t)
	_, pair := s.rootDelegate(t)

	content := []byte("claimable content")
	raw, key, err := cas.EncodeFile(content, "text/plain", uint64(len(content)), nil)
	require.NoError(t, err)
	require.NoError(t, s.nodes.Put(context.Background(), key, raw))

	pop := claim.ComputePoP(raw, []byte(pair.AccessToken))
	rec := s.do(t, http.MethodPost, "/v1/claims", pair.AccessToken, map[string]any{
		"node": key.Format(cas.PrefixNode),
		"pop":  pop,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["owned"])
	assert.Equal(t, false, body["alreadyOwned"])

	// Re-claiming is idempotent.
	rec = s.do(t, http.MethodPost, "/v1/claims", pair.AccessToken, map[string]any{
		"node": key.Format(cas.PrefixNode),
		"pop":  pop,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["alreadyOwned"])

	// A wrong PoP is rejected.
	rec = s.do(t, http.MethodPost, "/v1/claims", pair.AccessToken, map[string]any{
		"node": key.Format(cas.PrefixNode),
		"pop":  "00000000000000000000000000",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_POP", errorCode(t, rec))
}

func TestTicketLifecycle(t *testing.T) {
	s := newStack(t)
	_, pair := s.rootDelegate(t)

	rec := s.do(t, http.MethodPost, "/v1/tickets", pair.AccessToken, map[string]any{
		"name": "import-batch",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ticketID := decodeBody(t, rec)["ticketId"].(string)

	rec = s.do(t, http.MethodPost, "/v1/tickets/"+ticketID+"/submit", pair.AccessToken, map[string]any{
		"root": cas.EmptyDirKey().Format(cas.PrefixNode),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "submitted", decodeBody(t, rec)["status"])

	// Double submit conflicts.
	rec = s.do(t, http.MethodPost, "/v1/tickets/"+ticketID+"/submit", pair.AccessToken, map[string]any{
		"root": cas.EmptyDirKey().Format(cas.PrefixNode),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/tickets", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["tickets"], 1)

	rec = s.do(t, http.MethodDelete, "/v1/tickets/"+ticketID, pair.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMalformedProofHeaderRejected(t *testing.T) {
	s := newStack(t)
	_, pair := s.rootDelegate(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tickets", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req.Header.Set("X-CAS-Proof", "{not json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PROOF_FORMAT", errorCode(t, rec))
}

func TestDelegateEndpoints(t *testing.T) {
	s := newStack(t)
	root, rootPair := s.rootDelegate(t)

	rec := s.do(t, http.MethodPost, "/v1/delegates", rootPair.AccessToken, map[string]any{
		"canUpload": true,
		"scope": map[string]string{
			"nodeHash": cas.EmptyDirKey().Format(cas.PrefixNode),
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	child := body["delegate"].(map[string]any)
	childID := child["delegateId"].(string)
	require.NotNil(t, body["tokens"])

	// The parent sees the child.
	rec = s.do(t, http.MethodGet, "/v1/delegates/"+childID, rootPair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The child cannot see its parent.
	childTokens := body["tokens"].(map[string]any)
	childAccess := childTokens["access_token"].(string)
	rec = s.do(t, http.MethodGet, "/v1/delegates/"+root.DelegateID, childAccess, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Revocation locks the child out.
	rec = s.do(t, http.MethodDelete, "/v1/delegates/"+childID, rootPair.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/v1/tickets", childAccess, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
