package service

import (
	"errors"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/pkg/jwtx"
)

// TokenService mints and verifies the two token kinds. Access and refresh
// tokens are signed with independent secrets, so a refresh token can never
// pass access verification and vice versa.
type TokenService struct {
	AccessSigner    *jwtx.Signer
	RefreshSigner   *jwtx.Signer
	AccessVerifier  *jwtx.Verifier
	RefreshVerifier *jwtx.Verifier
}

// IssueAccessToken mints a short-lived access token carrying the user's
// identity and effective roles.
func (s *TokenService) IssueAccessToken(u domain.User, now time.Time) (string, error) {
	u.NormalizeRoles()
	return s.AccessSigner.Sign(u.ID, u.Email, u.Roles, now)
}

// IssueRefreshToken mints a long-lived refresh token. Roles are deliberately
// omitted; they are re-read from the store on every rotation so role changes
// take effect without waiting out the refresh TTL.
func (s *TokenService) IssueRefreshToken(u domain.User, now time.Time) (string, error) {
	return s.RefreshSigner.Sign(u.ID, u.Email, nil, now)
}

// IssuePair mints both tokens for a user at the same instant.
func (s *TokenService) IssuePair(u domain.User, now time.Time) (domain.TokenPair, error) {
	access, err := s.IssueAccessToken(u, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(u, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessSigner.TTL().Seconds()),
	}, nil
}

// VerifyAccess parses and validates an access token.
func (s *TokenService) VerifyAccess(token string) (jwtx.Claims, error) {
	claims, err := s.AccessVerifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, mapVerifyError(err)
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token.
func (s *TokenService) VerifyRefresh(token string) (jwtx.Claims, error) {
	claims, err := s.RefreshVerifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, mapVerifyError(err)
	}
	return claims, nil
}

// RefreshTTL reports how long newly issued refresh tokens live.
func (s *TokenService) RefreshTTL() time.Duration {
	return s.RefreshSigner.TTL()
}

func mapVerifyError(err error) error {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}
