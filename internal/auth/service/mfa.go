package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/pkg/cryptox"
	"github.com/loxleyhq/authcore/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	backupCodeCount = 5
	backupCodeBytes = cryptox.TokenSize128

	totpPeriod = 30 // seconds per TOTP step
	totpSkew   = 1  // accepted steps either side of now
)

// MFAService manages TOTP enrollment and second-factor verification.
type MFAService struct {
	Store  store.Store
	Issuer string // issuer label shown in authenticator apps
}

// Enroll generates a fresh TOTP secret plus backup codes for the user. The
// enrollment stays unverified and does not gate login until the user proves
// possession through ConfirmEnrollment. The raw backup codes are returned
// exactly once; only fingerprints are stored.
//
// Re-enrolling while a verified enrollment exists is rejected; disable first.
func (s *MFAService) Enroll(ctx context.Context, userID string) (domain.MFAEnrollment, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MFAEnrollment{}, ErrUserNotFound
		}
		return domain.MFAEnrollment{}, err
	}
	if user.MFAGatesLogin() {
		return domain.MFAEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	codes := make([]string, backupCodeCount)
	for i := range codes {
		code, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return domain.MFAEnrollment{}, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = code
	}

	// Secret and codes land atomically; a partial enrollment would leave a
	// user gated on a factor they cannot complete.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetMFAPending(ctx, userID, key.Secret()); err != nil {
			return err
		}
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return err
		}
		for _, code := range codes {
			if err := tx.BackupCodes().CreateBackupCode(ctx, userID, cryptox.FingerprintToken(code)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.MFAEnrollment{}, err
	}

	l.Info("mfa enrollment started", slog.String("user_id", userID))

	return domain.MFAEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

// ConfirmEnrollment proves possession of the enrolled secret with a live
// TOTP code. After this the enrollment is verified and gates every login.
func (s *MFAService) ConfirmEnrollment(ctx context.Context, userID, code string) error {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if !user.MFAEnabled || user.MFASecret == nil {
		return ErrMFANotEnrolled
	}
	if user.MFAVerified {
		return ErrMFAAlreadyEnabled
	}

	if !validateTOTP(code, *user.MFASecret, time.Now()) {
		return ErrInvalidMFAToken
	}

	if err := s.Store.Users().ConfirmMFA(ctx, userID); err != nil {
		return err
	}

	l.Info("mfa enrollment confirmed", slog.String("user_id", userID))
	return nil
}

// VerifyTOTP checks a six-digit code against the user's verified enrollment.
func (s *MFAService) VerifyTOTP(ctx context.Context, user domain.User, code string, now time.Time) error {
	if !user.MFAGatesLogin() || user.MFASecret == nil {
		return ErrMFANotEnrolled
	}
	if !validateTOTP(code, *user.MFASecret, now) {
		return ErrInvalidMFAToken
	}
	return nil
}

// ConsumeBackupCode spends one backup code. The delete doubles as the match
// check, so the same code never passes twice. When the user has no codes
// left the caller learns that instead of a generic mismatch.
func (s *MFAService) ConsumeBackupCode(ctx context.Context, userID, code string) error {
	return s.consumeBackupCode(ctx, s.Store, userID, code)
}

// consumeBackupCode runs against the given store so login completion can
// consume the code inside the same transaction that persists the session.
func (s *MFAService) consumeBackupCode(ctx context.Context, st store.Store, userID, code string) error {
	hash := cryptox.FingerprintToken(code)
	err := st.BackupCodes().ConsumeBackupCode(ctx, userID, hash)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	remaining, countErr := st.BackupCodes().CountBackupCodes(ctx, userID)
	if countErr != nil {
		return countErr
	}
	if remaining == 0 {
		return ErrNoBackupCodesLeft
	}
	return ErrInvalidBackupCode
}

// Disable removes the enrollment and all backup codes.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().DisableMFA(ctx, userID); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAllBackupCodes(ctx, userID)
	})
}

// validateTOTP accepts codes from the current step and one step either side,
// tolerating clock drift without widening the replay window further.
func validateTOTP(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
