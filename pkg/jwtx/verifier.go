package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrExpired   = errors.New("jwtx: token expired")
	ErrInvalid   = errors.New("jwtx: invalid token")
	ErrWrongType = errors.New("jwtx: wrong token type")
)

// Verifier validates tokens for exactly one signing domain. Malformed or
// forged input yields a typed error, never a panic.
type Verifier struct {
	secret    []byte
	issuer    string
	audience  string
	tokenType string
	leeway    time.Duration
}

// NewVerifier builds a verifier pinned to the given secret, issuer, audience
// and token_type. A small leeway absorbs clock skew on exp/nbf.
func NewVerifier(secret []byte, issuer, audience, tokenType string, leeway time.Duration) (*Verifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &Verifier{
		secret:    secret,
		issuer:    issuer,
		audience:  audience,
		tokenType: tokenType,
		leeway:    leeway,
	}, nil
}

// Verify parses and validates the token, returning its claims. Rejects on
// signature mismatch, expiry, wrong issuer or audience, any algorithm other
// than HS256, and a token_type outside this verifier's domain.
func (v *Verifier) Verify(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if claims.TokenType != v.tokenType {
		return Claims{}, ErrWrongType
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalid
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrExpired
	default:
		return ErrInvalid
	}
}
