package handlers

import (
	"errors"
	"net/http"

	"github.com/depotfs/depotfs/internal/api/auth"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/delegate"
)

// Stable codes surfaced by the refresh endpoint.
const (
	CodeNotRefreshToken       = "NOT_REFRESH_TOKEN"
	CodeRootRefreshNotAllowed = "ROOT_REFRESH_NOT_ALLOWED"
	CodeDelegateExpired       = "DELEGATE_EXPIRED"
)

// AuthHandler exchanges refresh tokens for new token pairs.
type AuthHandler struct {
	jwt       *auth.JWTService
	delegates *delegate.Service
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(jwt *auth.JWTService, delegates *delegate.Service) *AuthHandler {
	return &AuthHandler{jwt: jwt, delegates: delegates}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /v1/auth/refresh. The presented refresh token must
// be the delegate's current one; rotation is a compare-and-set on its
// hash, so a replayed or superseded token fails with TOKEN_INVALID. Root
// delegates never rotate through this endpoint, and a delegate whose
// refresh token lapsed is expired for good.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_BODY", "refresh_token is required")
		return
	}

	claims, err := h.jwt.ValidateRefreshToken(req.RefreshToken)
	switch {
	case errors.Is(err, auth.ErrInvalidTokenType):
		writeErrorCode(w, http.StatusUnauthorized, CodeNotRefreshToken, "token is not a refresh token")
		return
	case errors.Is(err, auth.ErrExpiredToken):
		writeErrorCode(w, http.StatusUnauthorized, CodeDelegateExpired, "refresh token expired; the delegation has lapsed")
		return
	case err != nil:
		writeErrorCode(w, http.StatusUnauthorized, "TOKEN_INVALID", "invalid refresh token")
		return
	}

	record, err := h.delegates.RequireAlive(r.Context(), claims.DelegateID)
	if err != nil {
		writeError(w, err)
		return
	}
	if record.IsRoot() {
		writeErrorCode(w, http.StatusForbidden, CodeRootRefreshNotAllowed,
			"root delegate tokens are not rotated through this endpoint")
		return
	}

	pair, err := h.jwt.GenerateTokenPair(record.DelegateID, record.Realm)
	if err != nil {
		writeError(w, err)
		return
	}

	err = h.delegates.RotateTokens(r.Context(), record.DelegateID,
		auth.TokenHash(req.RefreshToken),
		auth.TokenHash(pair.AccessToken),
		auth.TokenHash(pair.RefreshToken),
		pair.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Delegate tokens rotated",
		logger.Realm(record.Realm), logger.Delegate(record.DelegateID))
	writeJSON(w, http.StatusOK, pair)
}
