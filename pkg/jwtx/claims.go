// Package jwtx signs and verifies the service's HMAC-SHA256 JWTs. Access and
// refresh tokens live in independent signing domains: each has its own secret
// and its own token_type claim, so a leaked access secret cannot forge
// refresh tokens and vice versa.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type claim values. Verification pins the expected type so a refresh
// token can never pass as an access token even if both secrets were equal.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default token lifetimes. Short-lived access tokens bound the damage of a
// leaked bearer token; long-lived refresh tokens are single-use via rotation.
const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims is the closed claim set carried by every token this service issues.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the subject. Set on access tokens only.
	Email string `json:"email,omitempty"`

	// Roles assigned to the subject. Set on access tokens only.
	Roles []string `json:"roles,omitempty"`

	// TokenType discriminates the signing domain: "access" or "refresh".
	TokenType string `json:"token_type"`
}

// NewClaims builds minimally-correct claims for the given signing domain.
func NewClaims(
	subject, email string,
	roles []string,
	tokenType, issuer, audience string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        newJTI(),
		},
		Email:     email,
		Roles:     roles,
		TokenType: tokenType,
	}
}

// newJTI returns a URL-safe random identifier for the "jti" claim.
func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
