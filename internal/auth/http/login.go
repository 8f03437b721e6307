package http

import (
	"net/http"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/pkg/httpx"
)

// LoginHandler serves POST /v1/auth/login.
type LoginHandler struct {
	Credentials *service.CredentialService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User   userResponse      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// mfaPendingResponse tells the client to complete a second factor. No tokens
// are issued until /v1/auth/mfa/verify-login succeeds.
type mfaPendingResponse struct {
	MFARequired bool     `json:"mfa_required"`
	UserID      string   `json:"user_id"`
	Methods     []string `json:"methods"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	result, err := h.Credentials.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeAuthResult(w, result)
}

// writeAuthResult renders either a completed login or the MFA challenge.
func writeAuthResult(w http.ResponseWriter, result domain.AuthResult) {
	switch result.Status {
	case domain.AuthStatusMFAPending:
		httpx.WriteJSON(w, httpx.ErrMFARequired.Status, mfaPendingResponse{
			MFARequired: true,
			UserID:      result.MFAUserID,
			Methods:     result.MFAMethods,
		})
	case domain.AuthStatusAuthenticated:
		httpx.WriteJSON(w, http.StatusOK, loginResponse{
			User:   newUserResponse(result.User),
			Tokens: result.Tokens,
		})
	default:
		httpx.ErrServerError.WriteError(w)
	}
}
