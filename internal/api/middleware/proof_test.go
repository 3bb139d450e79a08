package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/proof"
)

func TestProofExtractorEmptyHeader(t *testing.T) {
	var captured proof.Set
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ProofSetFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/x", nil)
	rec := httptest.NewRecorder()
	ProofExtractor(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, captured)
}

func TestProofExtractorParsesHeader(t *testing.T) {
	_, key, err := cas.EncodeFile([]byte("x"), "", 1, nil)
	require.NoError(t, err)

	header, err := json.Marshal(map[string]string{key.Hex(): "ipath#0:1"})
	require.NoError(t, err)

	var captured proof.Set
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ProofSetFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/x", nil)
	req.Header.Set(ProofHeader, string(header))
	rec := httptest.NewRecorder()
	ProofExtractor(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, captured, key)
	assert.Equal(t, "ipath#0:1", captured[key].String())
}

func TestProofExtractorRejectsMalformedHeader(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/x", nil)
	req.Header.Set(ProofHeader, "{broken")
	rec := httptest.NewRecorder()
	ProofExtractor(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
	assert.Contains(t, rec.Body.String(), "INVALID_PROOF_FORMAT")
}
