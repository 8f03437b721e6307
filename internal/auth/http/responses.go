package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/pkg/httpx"
)

// userResponse is the public shape of a user. Password hashes, MFA secrets
// and token fingerprints never appear in responses.
type userResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	Role          string     `json:"role"`
	Roles         []string   `json:"roles"`
	EmailVerified bool       `json:"email_verified"`
	Provider      string     `json:"provider,omitempty"`
	MFAEnabled    bool       `json:"mfa_enabled"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		Role:          u.Role,
		Roles:         u.Roles,
		EmailVerified: u.EmailVerified,
		Provider:      u.Provider,
		MFAEnabled:    u.MFAEnabled && u.MFAVerified,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
	}
}

// decodeJSON parses a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeServiceError maps typed service failures onto stable API errors.
// Anything unrecognized is a server error; detail stays in the logs.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		httpx.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrEmailAlreadyExists):
		httpx.ErrEmailAlreadyExists.WriteError(w)
	case errors.Is(err, service.ErrTokenInvalid):
		httpx.ErrTokenInvalid.WriteError(w)
	case errors.Is(err, service.ErrTokenExpired):
		httpx.ErrTokenExpired.WriteError(w)
	case errors.Is(err, service.ErrTokenMismatch):
		httpx.ErrTokenMismatch.WriteError(w)
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		httpx.ErrMFAAlreadyEnabled.WriteError(w)
	case errors.Is(err, service.ErrMFANotEnrolled):
		httpx.ErrMFANotEnrolled.WriteError(w)
	case errors.Is(err, service.ErrInvalidMFAToken):
		httpx.ErrInvalidMFAToken.WriteError(w)
	case errors.Is(err, service.ErrInvalidBackupCode):
		httpx.ErrInvalidBackupCode.WriteError(w)
	case errors.Is(err, service.ErrNoBackupCodesLeft):
		httpx.ErrNoBackupCodesLeft.WriteError(w)
	case errors.Is(err, service.ErrMFAMethodAmbiguous):
		httpx.ErrInvalidRequest.WriteError(w)
	case errors.Is(err, service.ErrStateMismatch):
		httpx.ErrStateMismatch.WriteError(w)
	case errors.Is(err, service.ErrProviderUnavailable):
		httpx.ErrProviderUnavailable.WriteError(w)
	case errors.Is(err, service.ErrProviderError):
		httpx.ErrProviderError.WriteError(w)
	case errors.Is(err, service.ErrUserNotFound):
		httpx.ErrInvalidRequest.WriteError(w)
	default:
		httpx.ErrServerError.WriteError(w)
	}
}
