package handlers

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/depotfs/depotfs/internal/api/auth"
	"github.com/depotfs/depotfs/internal/api/middleware"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/delegate"
)

// DelegateHandler manages the delegate hierarchy. Every new delegate is a
// child of the acting one; visibility and revocation follow the chain.
type DelegateHandler struct {
	jwt       *auth.JWTService
	delegates *delegate.Service
}

// NewDelegateHandler creates the delegate handler.
func NewDelegateHandler(jwt *auth.JWTService, delegates *delegate.Service) *DelegateHandler {
	return &DelegateHandler{jwt: jwt, delegates: delegates}
}

type scopeBody struct {
	NodeHash  string `json:"nodeHash,omitempty"`
	SetNodeID string `json:"setNodeId,omitempty"`
}

type createDelegateRequest struct {
	CanUpload      bool       `json:"canUpload"`
	CanManageDepot bool       `json:"canManageDepot"`
	Scope          *scopeBody `json:"scope,omitempty"`
}

type delegateResponse struct {
	Delegate *delegate.Record `json:"delegate"`
	Tokens   *auth.TokenPair  `json:"tokens,omitempty"`
}

// Create handles POST /v1/delegates. The new delegate is a child of the
// acting one; its initial token pair is returned exactly once.
func (h *DelegateHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return
	}

	var req createDelegateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	params := delegate.CreateParams{
		ParentID:       actor.DelegateID,
		CanUpload:      req.CanUpload,
		CanManageDepot: req.CanManageDepot,
	}
	if req.Scope != nil {
		scope, err := parseScope(req.Scope)
		if err != nil {
			writeError(w, err)
			return
		}
		params.Scope = scope
	}

	record, err := h.delegates.Create(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.jwt.GenerateTokenPair(record.DelegateID, record.Realm)
	if err != nil {
		writeError(w, err)
		return
	}
	err = h.delegates.SetTokens(r.Context(), record.DelegateID,
		auth.TokenHash(pair.AccessToken), auth.TokenHash(pair.RefreshToken), pair.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Delegate created",
		logger.Delegate(record.DelegateID), "parent", actor.DelegateID, "depth", record.Depth())
	writeJSON(w, http.StatusCreated, delegateResponse{Delegate: record, Tokens: pair})
}

// Get handles GET /v1/delegates/{id}. A delegate sees itself and its
// descendants; everything else is NOT_FOUND rather than FORBIDDEN to avoid
// leaking the id space.
func (h *DelegateHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, ok := h.visibleDelegate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, delegateResponse{Delegate: record})
}

// Revoke handles DELETE /v1/delegates/{id}. Revocation keeps the record
// and cascades implicitly: descendants fail the chain-alive check.
func (h *DelegateHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	record, ok := h.visibleDelegate(w, r)
	if !ok {
		return
	}
	if err := h.delegates.Revoke(r.Context(), record.DelegateID); err != nil {
		writeError(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "Delegate revoked", logger.Delegate(record.DelegateID))
	w.WriteHeader(http.StatusNoContent)
}

// visibleDelegate loads the target delegate and enforces chain visibility.
func (h *DelegateHandler) visibleDelegate(w http.ResponseWriter, r *http.Request) (*delegate.Record, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return nil, false
	}

	id := chi.URLParam(r, "id")
	record, err := h.delegates.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if record.Realm != actor.Realm || !slices.Contains(record.Chain, actor.DelegateID) {
		writeErrorCode(w, http.StatusNotFound, delegate.CodeDelegateNotFound, "delegate "+id+" not found")
		return nil, false
	}
	return record, true
}

func parseScope(body *scopeBody) (delegate.Scope, error) {
	var scope delegate.Scope
	if body.NodeHash != "" {
		key, err := cas.ParsePrefixed(cas.PrefixNode, body.NodeHash)
		if err != nil {
			return scope, err
		}
		scope.NodeHash = key
	}
	if body.SetNodeID != "" {
		key, err := cas.ParsePrefixed(cas.PrefixNode, body.SetNodeID)
		if err != nil {
			return scope, err
		}
		scope.SetNodeID = key
	}
	return scope, nil
}
