package httpx

import (
	"errors"
	"net/http"

	"github.com/loxleyhq/authcore/internal/auth/authz"
)

// RequireRole gates a handler on the caller holding the required role under
// the hierarchy. Must run after AuthnMiddleware.
func RequireRole(h authz.Hierarchy, required string) Middleware {
	return requireGuard(func(id *authz.Identity) error {
		return h.RequireRole(id, required)
	})
}

// RequireAnyRole gates a handler on the caller holding at least one of the
// required roles.
func RequireAnyRole(h authz.Hierarchy, required ...string) Middleware {
	return requireGuard(func(id *authz.Identity) error {
		return h.RequireAnyRole(id, required...)
	})
}

func requireGuard(check func(*authz.Identity) error) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := check(IdentityFromContext(r.Context()))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, authz.ErrUnauthenticated):
				ErrUnauthenticated.WriteError(w)
			default:
				ErrInsufficientPermissions.WriteError(w)
			}
		})
	}
}
