package http

import (
	"errors"
	"net/http"

	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/pkg/httpx"
)

// MeHandler serves GET /v1/auth/me.
type MeHandler struct {
	Store store.Store
}

func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := httpx.IdentityFromContext(r.Context())
	if id == nil {
		httpx.ErrUnauthenticated.WriteError(w)
		return
	}

	user, err := h.Store.Users().GetUserByID(r.Context(), id.UserID)
	if err != nil {
		// The token outlived the account.
		if errors.Is(err, store.ErrNotFound) {
			httpx.ErrUnauthenticated.WriteError(w)
			return
		}
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newUserResponse(user))
}

// UserLookupHandler serves GET /v1/auth/users/{id}, admin only.
type UserLookupHandler struct {
	Store store.Store
}

func (h *UserLookupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpx.ErrInvalidRequest.WriteError(w)
		return
	}

	user, err := h.Store.Users().GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, httpx.APIError{
				Code:        "user_not_found",
				Description: "No user exists with the given id.",
			})
			return
		}
		httpx.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newUserResponse(user))
}
