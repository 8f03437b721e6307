package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrEmailAlreadyExists = errors.New("email_already_exists")
	ErrUserNotFound       = errors.New("user_not_found")

	ErrTokenInvalid  = errors.New("token_invalid")
	ErrTokenExpired  = errors.New("token_expired")
	ErrTokenMismatch = errors.New("token_mismatch")

	ErrMFAAlreadyEnabled  = errors.New("mfa_already_enabled")
	ErrMFANotEnrolled     = errors.New("mfa_not_enrolled")
	ErrInvalidMFAToken    = errors.New("invalid_mfa_token")
	ErrInvalidBackupCode  = errors.New("invalid_backup_code")
	ErrNoBackupCodesLeft  = errors.New("no_backup_codes_left")
	ErrMFAMethodAmbiguous = errors.New("mfa_method_ambiguous")

	ErrStateMismatch       = errors.New("state_mismatch")
	ErrProviderError       = errors.New("provider_error")
	ErrProviderUnavailable = errors.New("provider_unavailable")
)
