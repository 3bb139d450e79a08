package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/proof"
)

// ProofHeader is the request header carrying proof words for node access.
const ProofHeader = "X-CAS-Proof"

// ProofExtractor parses the proof header and stores the resulting set in
// the request context. A missing header yields an empty set; a malformed
// header fails the request before it reaches a handler.
func ProofExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set, err := proof.ParseHeader(r.Header.Get(ProofHeader))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"code":    errtypes.CodeOf(err),
					"message": err.Error(),
				},
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithProofSet(r.Context(), set)))
	})
}
