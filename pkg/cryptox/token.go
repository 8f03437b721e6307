package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Token sizes in bytes before encoding.
const (
	// TokenSize128 gives 128 bits of entropy; backup codes, OAuth state.
	TokenSize128 = 16
	// TokenSize256 gives 256 bits of entropy; nonces and opaque secrets.
	TokenSize256 = 32
)

// GenerateToken returns a cryptographically random, base64url-encoded token
// of the given byte length.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the deterministic SHA-256 fingerprint of a token,
// base64url-encoded. Secrets that must be matched later (refresh tokens,
// backup codes) are stored only as fingerprints; the raw value is shown to
// the caller once and never persisted.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
