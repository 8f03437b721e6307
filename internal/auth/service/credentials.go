package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/pkg/cryptox"
	"github.com/loxleyhq/authcore/pkg/idx"
	"github.com/loxleyhq/authcore/pkg/slogx"
)

// dummyHash is a syntactically valid Argon2id hash that matches no password.
// It is verified when a login names an unknown email so the response time
// does not reveal whether the account exists.
const dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialService handles registration and password login.
type CredentialService struct {
	Tokens *TokenService
	MFA    *MFAService
	Store  store.Store
}

// Register creates a local credential account. Email is normalized to
// lowercase before the uniqueness check; an empty role means the baseline.
func (s *CredentialService) Register(ctx context.Context, email, username, password, role string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	role = strings.ToLower(strings.TrimSpace(role))

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}
	user.NormalizeRoles()

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailAlreadyExists
		}
		return domain.User{}, err
	}

	l.Info("user registered", slog.String("user_id", user.ID))
	return s.Store.Users().GetUserByID(ctx, user.ID)
}

// Login verifies an email/password pair. Unknown emails and wrong passwords
// both come back as ErrInvalidCredentials; the unknown-email path still runs
// a hash verification so the two rejections take comparable time.
//
// When the account has a verified MFA enrollment no tokens are issued; the
// result carries AuthStatusMFAPending and the caller must complete the
// second factor through VerifyLogin.
func (s *CredentialService) Login(ctx context.Context, email, password string) (domain.AuthResult, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = cryptox.VerifyPassword(password, dummyHash)
			return domain.AuthResult{}, ErrInvalidCredentials
		}
		return domain.AuthResult{}, err
	}

	if user.PasswordHash == "" {
		// Federated-only account; no password to check, but keep timing
		// in line with the credential path.
		_ = cryptox.VerifyPassword(password, dummyHash)
		return domain.AuthResult{}, ErrInvalidCredentials
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Info("password mismatch", slog.String("user_id", user.ID))
			return domain.AuthResult{}, ErrInvalidCredentials
		}
		return domain.AuthResult{}, err
	}

	if user.MFAGatesLogin() {
		return domain.AuthResult{
			Status:     domain.AuthStatusMFAPending,
			MFAUserID:  user.ID,
			MFAMethods: domain.MFAMethods,
		}, nil
	}

	pair, err := s.issueSession(ctx, s.Store, user, now)
	if err != nil {
		return domain.AuthResult{}, err
	}

	return domain.AuthResult{
		Status: domain.AuthStatusAuthenticated,
		User:   user,
		Tokens: &pair,
	}, nil
}

// VerifyLogin completes a login that Login suspended for MFA. Exactly one of
// totpCode and backupCode must be set; the two factors are verified through
// disjoint paths and a request naming both is rejected outright.
func (s *CredentialService) VerifyLogin(ctx context.Context, userID, totpCode, backupCode string) (domain.AuthResult, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	totpCode = strings.TrimSpace(totpCode)
	backupCode = strings.TrimSpace(backupCode)
	if (totpCode == "") == (backupCode == "") {
		return domain.AuthResult{}, ErrMFAMethodAmbiguous
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthResult{}, ErrInvalidCredentials
		}
		return domain.AuthResult{}, err
	}
	if !user.MFAGatesLogin() {
		return domain.AuthResult{}, ErrMFANotEnrolled
	}

	var pair domain.TokenPair
	if totpCode != "" {
		if err := s.MFA.VerifyTOTP(ctx, user, totpCode, now); err != nil {
			return domain.AuthResult{}, err
		}
		pair, err = s.issueSession(ctx, s.Store, user, now)
		if err != nil {
			return domain.AuthResult{}, err
		}
	} else {
		// The code is spent in the same transaction that persists the
		// session, so a failed login never burns a backup code.
		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := s.MFA.consumeBackupCode(ctx, tx, user.ID, backupCode); err != nil {
				return err
			}
			var txErr error
			pair, txErr = s.issueSession(ctx, tx, user, now)
			return txErr
		})
		if err != nil {
			return domain.AuthResult{}, err
		}
		l.Info("backup code consumed", slog.String("user_id", user.ID))
	}

	return domain.AuthResult{
		Status: domain.AuthStatusAuthenticated,
		User:   user,
		Tokens: &pair,
	}, nil
}

// issueSession mints a token pair and persists the refresh fingerprint,
// replacing whatever session existed before. Also stamps last_login. It
// writes through st so callers can scope the writes to a transaction.
func (s *CredentialService) issueSession(ctx context.Context, st store.Store, user domain.User, now time.Time) (domain.TokenPair, error) {
	pair, err := s.Tokens.IssuePair(user, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	fingerprint := cryptox.FingerprintToken(pair.RefreshToken)
	expires := now.Add(s.Tokens.RefreshTTL())
	if err := st.Users().SetRefreshToken(ctx, user.ID, fingerprint, expires); err != nil {
		return domain.TokenPair{}, err
	}
	if err := st.Users().UpdateLastLogin(ctx, user.ID, now); err != nil {
		return domain.TokenPair{}, err
	}

	return pair, nil
}
