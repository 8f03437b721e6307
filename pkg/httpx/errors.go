package httpx

import "net/http"

// APIError is a machine-readable error response. The shell translates typed
// service failures into these stable codes; internal detail never leaks.
type APIError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e APIError) Error() string { return e.Code }

// WriteError renders the error as a JSON response.
func (e APIError) WriteError(w http.ResponseWriter) {
	WriteJSON(w, e.Status, e)
}

// Stable error responses for the authentication API. Security-sensitive
// codes are deliberately vague: invalid_credentials never says whether the
// email or the password was wrong.
var (
	ErrInvalidRequest = APIError{
		Status:      http.StatusBadRequest,
		Code:        "invalid_request",
		Description: "The request is missing a required parameter or is malformed.",
	}
	ErrInvalidJSONBody = APIError{
		Status:      http.StatusBadRequest,
		Code:        "invalid_request",
		Description: "Invalid JSON body.",
	}
	ErrInvalidCredentials = APIError{
		Status:      http.StatusUnauthorized,
		Code:        "invalid_credentials",
		Description: "Incorrect email or password.",
	}
	ErrEmailAlreadyExists = APIError{
		Status:      http.StatusConflict,
		Code:        "email_already_exists",
		Description: "An account with this email or username already exists.",
	}
	ErrUnauthenticated = APIError{
		Status:      http.StatusUnauthorized,
		Code:        "unauthenticated",
		Description: "Authentication is required.",
	}
	ErrInsufficientPermissions = APIError{
		Status:      http.StatusForbidden,
		Code:        "insufficient_permissions",
		Description: "The authenticated identity does not hold the required role.",
	}
	ErrTokenInvalid = APIError{
		Status:      http.StatusUnauthorized,
		Code:        "token_invalid",
		Description: "The token is malformed or its signature is invalid.",
	}
	ErrTokenExpired = APIError{
		Status:      http.StatusUnauthorized,
		Code:        "token_expired",
		Description: "The token has expired.",
	}
	ErrTokenMismatch = APIError{
		Status:      http.StatusUnauthorized,
		Code:        "token_mismatch",
		Description: "The refresh token is no longer the active token for this account.",
	}
	ErrMFARequired = APIError{
		Status:      http.StatusConflict,
		Code:        "mfa_required",
		Description: "Multi-factor verification is required to complete login.",
	}
	ErrInvalidMFAToken = APIError{
		Status:      http.StatusUnauthorized,
		Code:        "invalid_mfa_token",
		Description: "The one-time code was not accepted.",
	}
	ErrInvalidBackupCode = APIError{
		Status:      http.StatusUnauthorized,
		Code:        "invalid_backup_code",
		Description: "The backup code was not accepted.",
	}
	ErrNoBackupCodesLeft = APIError{
		Status:      http.StatusUnauthorized,
		Code:        "no_backup_codes_left",
		Description: "No unused backup codes remain for this account.",
	}
	ErrMFAAlreadyEnabled = APIError{
		Status:      http.StatusConflict,
		Code:        "mfa_already_enabled",
		Description: "Multi-factor authentication is already enabled.",
	}
	ErrMFANotEnrolled = APIError{
		Status:      http.StatusBadRequest,
		Code:        "mfa_not_enrolled",
		Description: "No pending multi-factor enrollment exists.",
	}
	ErrStateMismatch = APIError{
		Status:      http.StatusBadRequest,
		Code:        "state_mismatch",
		Description: "The OAuth state parameter did not match.",
	}
	ErrProviderError = APIError{
		Status:      http.StatusBadGateway,
		Code:        "provider_error",
		Description: "The identity provider rejected the request.",
	}
	ErrProviderUnavailable = APIError{
		Status:      http.StatusBadGateway,
		Code:        "provider_unavailable",
		Description: "The identity provider could not be reached.",
	}
	ErrRateLimitExceeded = APIError{
		Status:      http.StatusTooManyRequests,
		Code:        "rate_limit_exceeded",
		Description: "Too many requests. Please try again later.",
	}
	ErrServerError = APIError{
		Status:      http.StatusInternalServerError,
		Code:        "server_error",
		Description: "An unexpected error occurred.",
	}
)
