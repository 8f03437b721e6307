package http

import (
	"net/http"

	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/pkg/httpx"
)

// RefreshHandler serves POST /v1/auth/refresh. The refresh token itself is
// the credential; no access token is required.
type RefreshHandler struct {
	Refresh *service.RefreshService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.ErrInvalidJSONBody.WriteError(w)
		return
	}
	if req.RefreshToken == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.Refresh.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// LogoutHandler serves POST /v1/auth/logout. Revokes the caller's stored
// refresh token; the short-lived access token simply ages out.
type LogoutHandler struct {
	Refresh *service.RefreshService
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	if id == nil {
		httpx.ErrUnauthenticated.WriteError(w)
		return
	}

	if err := h.Refresh.Revoke(r.Context(), id.UserID); err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
