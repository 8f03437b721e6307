package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestEnrollProducesUsableEnrollment(t *testing.T) {
	creds, _, mfa, _ := newTestServices(t)
	ctx := context.Background()

	user := registerTestUser(t, creds, "alice@example.com", "alice")

	enrollment, err := mfa.Enroll(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	// Parse rather than string-match; the label's escaping is up to the
	// library.
	uri, err := url.Parse(enrollment.ProvisioningURI)
	require.NoError(t, err)
	require.Equal(t, "otpauth", uri.Scheme)
	require.Equal(t, "totp", uri.Host)
	require.Equal(t, "/test:alice@example.com", uri.Path)
	require.Len(t, enrollment.BackupCodes, 5)

	seen := map[string]bool{}
	for _, code := range enrollment.BackupCodes {
		require.NotEmpty(t, code)
		require.False(t, seen[code], "backup codes must be distinct")
		seen[code] = true
	}
}

func TestEnrollRejectsVerifiedEnrollment(t *testing.T) {
	creds, _, mfa, _ := newTestServices(t)
	ctx := context.Background()

	user := registerTestUser(t, creds, "alice@example.com", "alice")
	enrollAndConfirm(t, mfa, user.ID)

	_, err := mfa.Enroll(ctx, user.ID)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}

func TestReEnrollBeforeConfirmationReplacesSecret(t *testing.T) {
	creds, _, mfa, _ := newTestServices(t)
	ctx := context.Background()

	user := registerTestUser(t, creds, "alice@example.com", "alice")

	first, err := mfa.Enroll(ctx, user.ID)
	require.NoError(t, err)
	second, err := mfa.Enroll(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	// The first secret is gone; only the latest confirms.
	err = mfa.ConfirmEnrollment(ctx, user.ID, totpCodeAt(t, first.Secret, time.Now()))
	require.ErrorIs(t, err, ErrInvalidMFAToken)
	require.NoError(t, mfa.ConfirmEnrollment(ctx, user.ID, totpCodeAt(t, second.Secret, time.Now())))
}

func TestConfirmEnrollmentRequiresPending(t *testing.T) {
	creds, _, mfa, _ := newTestServices(t)
	ctx := context.Background()

	user := registerTestUser(t, creds, "alice@example.com", "alice")

	err := mfa.ConfirmEnrollment(ctx, user.ID, "123456")
	require.ErrorIs(t, err, ErrMFANotEnrolled)

	enrollAndConfirm(t, mfa, user.ID)

	// Confirming twice is rejected.
	err = mfa.ConfirmEnrollment(ctx, user.ID, "123456")
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
}

func TestTOTPWindowTolerance(t *testing.T) {
	creds, _, mfa, st := newTestServices(t)
	ctx := context.Background()

	user := registerTestUser(t, creds, "alice@example.com", "alice")
	enrollment := enrollAndConfirm(t, mfa, user.ID)

	stored, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)

	now := time.Now()
	for _, tc := range []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"current step", 0, true},
		{"one step behind", -30 * time.Second, true},
		{"one step ahead", 30 * time.Second, true},
		{"two steps behind", -60 * time.Second, false},
		{"two steps ahead", 60 * time.Second, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			code := totpCodeAt(t, enrollment.Secret, now.Add(tc.offset))
			err := mfa.VerifyTOTP(ctx, stored, code, now)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidMFAToken)
			}
		})
	}
}

func TestConsumeBackupCodeSingleUse(t *testing.T) {
	creds, _, mfa, _ := newTestServices(t)
	ctx := context.Background()

	user := registerTestUser(t, creds, "alice@example.com", "alice")
	enrollment := enrollAndConfirm(t, mfa, user.ID)

	require.NoError(t, mfa.ConsumeBackupCode(ctx, user.ID, enrollment.BackupCodes[0]))
	require.ErrorIs(t, mfa.ConsumeBackupCode(ctx, user.ID, enrollment.BackupCodes[0]), ErrInvalidBackupCode)

	require.ErrorIs(t, mfa.ConsumeBackupCode(ctx, user.ID, "never-issued"), ErrInvalidBackupCode)
}

func TestConsumeBackupCodeExhaustion(t *testing.T) {
	creds, _, mfa, _ := newTestServices(t)
	ctx := context.Background()

	user := registerTestUser(t, creds, "alice@example.com", "alice")
	enrollment := enrollAndConfirm(t, mfa, user.ID)

	for _, code := range enrollment.BackupCodes {
		require.NoError(t, mfa.ConsumeBackupCode(ctx, user.ID, code))
	}

	err := mfa.ConsumeBackupCode(ctx, user.ID, enrollment.BackupCodes[0])
	require.ErrorIs(t, err, ErrNoBackupCodesLeft)
}

func TestDisableRemovesEnrollmentAndCodes(t *testing.T) {
	creds, _, mfa, st := newTestServices(t)
	ctx := context.Background()

	user := registerTestUser(t, creds, "alice@example.com", "alice")
	enrollAndConfirm(t, mfa, user.ID)

	require.NoError(t, mfa.Disable(ctx, user.ID))

	stored, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, stored.MFAEnabled)
	require.False(t, stored.MFAVerified)
	require.Nil(t, stored.MFASecret)

	count, err := st.BackupCodes().CountBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	// Login no longer suspends for a second factor.
	result, err := creds.Login(ctx, "alice@example.com", "test password 1")
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
}
