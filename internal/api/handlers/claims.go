package handlers

import (
	"net/http"

	"github.com/depotfs/depotfs/internal/api/middleware"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/claim"
)

// ClaimHandler runs the possession-claim protocol: a delegate that can
// prove it holds a node's full content gains ownership of it.
type ClaimHandler struct {
	claims *claim.Service
}

// NewClaimHandler creates the claim handler.
func NewClaimHandler(claims *claim.Service) *ClaimHandler {
	return &ClaimHandler{claims: claims}
}

type claimRequest struct {
	Node string `json:"node"`
	PoP  string `json:"pop"`
}

// Create handles POST /v1/claims. The proof of possession is keyed by the
// caller's current access token, so it cannot be precomputed or replayed
// across tokens.
func (h *ClaimHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return
	}
	token, _ := middleware.AccessTokenFrom(r.Context())

	var req claimRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	node, err := parseNodeParam(req.Node)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.claims.Claim(r.Context(), claim.Params{
		Realm:       actor.Realm,
		DelegateID:  actor.DelegateID,
		AccessToken: []byte(token),
		Node:        node,
		PoP:         req.PoP,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Node claimed",
		logger.Node(node.String()), "alreadyOwned", result.AlreadyOwned)
	writeJSON(w, http.StatusOK, map[string]any{
		"owned":        true,
		"alreadyOwned": result.AlreadyOwned,
	})
}
