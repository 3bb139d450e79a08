package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	// TokenTypeAccess is the short-lived token presented on every request.
	TokenTypeAccess TokenType = "access"

	// TokenTypeRefresh is the long-lived token exchanged for new pairs.
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the JWT claims carried by delegate tokens.
type Claims struct {
	jwt.RegisteredClaims

	// DelegateID is the acting delegate (also the Subject claim).
	DelegateID string `json:"delegate_id"`

	// Realm is the delegate's tenancy realm.
	Realm string `json:"realm"`

	// TokenType is "access" or "refresh".
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken reports whether the claims belong to an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken reports whether the claims belong to a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}
