package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/depotfs/depotfs/internal/api/auth"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/fs"
)

// Stable codes surfaced by the auth middleware.
const (
	CodeMissingToken = "MISSING_TOKEN"
	CodeTokenInvalid = "TOKEN_INVALID"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenRevoked = "TOKEN_REVOKED"
)

// JWTAuth authenticates the request's bearer token, verifies it is the
// delegate's current access token, and stores the acting identity in the
// request context.
//
// A token that validates cryptographically but whose hash no longer
// matches the delegate's stored token state has been rotated away and is
// rejected.
func JWTAuth(jwtService *auth.JWTService, delegates *delegate.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, CodeMissingToken, "missing bearer token")
				return
			}

			claims, err := jwtService.ValidateAccessToken(raw)
			if err != nil {
				code := CodeTokenInvalid
				if errors.Is(err, auth.ErrExpiredToken) {
					code = CodeTokenExpired
				}
				writeAuthError(w, http.StatusUnauthorized, code, "invalid access token")
				return
			}

			record, err := delegates.RequireAlive(r.Context(), claims.DelegateID)
			if err != nil {
				status := http.StatusUnauthorized
				if errtypes.KindOf(err) == errtypes.KindInternal {
					status = http.StatusInternalServerError
				}
				writeAuthError(w, status, errtypes.CodeOf(err), "delegate unavailable")
				return
			}

			state, err := delegates.GetTokenState(r.Context(), claims.DelegateID)
			if err != nil {
				writeAuthError(w, http.StatusInternalServerError, "INTERNAL", "token state unavailable")
				return
			}
			if state.AccessHash == "" || state.AccessHash != auth.TokenHash(raw) {
				writeAuthError(w, http.StatusUnauthorized, CodeTokenRevoked, "access token superseded")
				return
			}

			actor := fs.Actor{
				Realm:      record.Realm,
				DelegateID: record.DelegateID,
				Chain:      record.Chain,
			}

			ctx := WithActor(r.Context(), actor)
			ctx = WithDelegate(ctx, record)
			ctx = WithAccessToken(ctx, raw)

			lc := logger.FromContext(ctx)
			if lc == nil {
				lc = logger.NewLogContext(r.RemoteAddr)
			}
			ctx = logger.WithContext(ctx, lc.WithPrincipal(record.Realm, record.DelegateID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// writeAuthError writes the API error envelope without depending on the
// handlers package.
func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
