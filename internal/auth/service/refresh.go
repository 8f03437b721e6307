package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/pkg/cryptox"
	"github.com/loxleyhq/authcore/pkg/slogx"
)

// RefreshService rotates refresh tokens. Every successful refresh invalidates
// the presented token before the new pair is returned to the caller.
type RefreshService struct {
	Tokens *TokenService
	Store  store.Store
}

// Rotate exchanges a valid refresh token for a fresh pair. The presented
// token must carry a valid signature AND match the single stored fingerprint
// for the user. The swap is a compare-and-set on the old fingerprint, so when
// two rotations race, exactly one wins; the loser gets ErrTokenMismatch.
//
// The new fingerprint is persisted before the pair is returned. If the swap
// fails nothing is handed out and the stored state is untouched.
func (s *RefreshService) Rotate(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	presented := cryptox.FingerprintToken(refreshToken)
	if user.RefreshTokenHash == nil || *user.RefreshTokenHash != presented {
		l.Info("refresh token fingerprint mismatch", slog.String("user_id", user.ID))
		return nil, ErrTokenMismatch
	}
	if user.RefreshTokenExpires != nil && now.After(*user.RefreshTokenExpires) {
		return nil, ErrTokenExpired
	}

	pair, err := s.Tokens.IssuePair(user, now)
	if err != nil {
		return nil, err
	}

	next := cryptox.FingerprintToken(pair.RefreshToken)
	expires := now.Add(s.Tokens.RefreshTTL())
	err = s.Store.Users().SwapRefreshToken(ctx, user.ID, presented, next, expires)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			l.Info("refresh rotation lost race", slog.String("user_id", user.ID))
			return nil, ErrTokenMismatch
		}
		return nil, err
	}

	return &pair, nil
}

// Revoke clears the stored refresh fingerprint so the current session can no
// longer be refreshed. Idempotent.
func (s *RefreshService) Revoke(ctx context.Context, userID string) error {
	return s.Store.Users().ClearRefreshToken(ctx, userID)
}
