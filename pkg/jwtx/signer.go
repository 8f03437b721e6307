package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength rejects secrets too short to resist brute force. HS256
// security degrades quickly below the hash output size.
const MinSecretLength = 32

var ErrWeakSecret = errors.New("jwtx: signing secret shorter than 32 bytes")

// Signer issues tokens for exactly one signing domain.
type Signer struct {
	secret    []byte
	issuer    string
	audience  string
	tokenType string
	ttl       time.Duration
}

// NewSigner builds a signer for the given domain. The secret must be at
// least MinSecretLength bytes.
func NewSigner(secret []byte, issuer, audience, tokenType string, ttl time.Duration) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &Signer{
		secret:    secret,
		issuer:    issuer,
		audience:  audience,
		tokenType: tokenType,
		ttl:       ttl,
	}, nil
}

// Sign issues a token for the subject. Email and roles are only embedded in
// access-domain tokens; refresh tokens carry the subject alone.
func (s *Signer) Sign(subject, email string, roles []string, now time.Time) (string, error) {
	claims := NewClaims(subject, email, roles, s.tokenType, s.issuer, s.audience, s.ttl, now)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// TTL reports the lifetime of tokens issued by this signer.
func (s *Signer) TTL() time.Duration { return s.ttl }
