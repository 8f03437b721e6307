package http

import (
	"net/http"
	"strings"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/pkg/httpx"
)

// OAuthHandler serves the federated login flow.
type OAuthHandler struct {
	Federation *service.FederationService
}

// HandleLogin serves GET /v1/auth/oauth/login. Redirects the browser to the
// provider's authorization endpoint with a fresh state and nonce.
func (h *OAuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := sanitizeReturnTo(r.URL.Query().Get("return_to"))

	authURL, err := h.Federation.AuthorizationURL(r.Context(), returnTo)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback serves GET /v1/auth/oauth/callback.
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	user, pair, err := h.Federation.HandleCallback(r.Context(), r.URL.Query())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeAuthResult(w, domain.AuthResult{
		Status: domain.AuthStatusAuthenticated,
		User:   user,
		Tokens: pair,
	})
}

// sanitizeReturnTo only accepts local absolute paths, never full URLs, so
// the callback cannot be turned into an open redirect.
func sanitizeReturnTo(v string) string {
	if v == "" || !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") {
		return ""
	}
	return v
}
