package http

import (
	"net/http"
	"strings"

	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/pkg/httpx"
)

// RegisterHandler serves POST /v1/auth/register.
type RegisterHandler struct {
	Credentials *service.CredentialService
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

const minPasswordLength = 8

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.ErrInvalidJSONBody.WriteError(w)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || !strings.Contains(req.Email, "@") ||
		req.Username == "" || len(req.Password) < minPasswordLength {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.Credentials.Register(r.Context(), req.Email, req.Username, req.Password, req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, newUserResponse(user))
}
