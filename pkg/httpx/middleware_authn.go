package httpx

import (
	"net/http"
	"strings"

	"github.com/loxleyhq/authcore/internal/auth/authz"
	"github.com/loxleyhq/authcore/pkg/jwtx"
	"github.com/loxleyhq/authcore/pkg/slogx"
)

// AccessVerifier validates an access token and returns its claims.
type AccessVerifier interface {
	Verify(token string) (jwtx.Claims, error)
}

// AuthnMiddleware verifies the bearer access token and attaches the resolved
// identity to the request context. Requests without a valid token are
// rejected before the handler runs.
func AuthnMiddleware(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			raw, ok := bearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("access token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			id := authz.Identity{
				UserID: claims.Subject,
				Email:  claims.Email,
				Roles:  claims.Roles,
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	return token, token != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	ErrUnauthenticated.WriteError(w)
}
