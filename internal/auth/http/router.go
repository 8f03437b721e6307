// Package http is the transport shell: it decodes requests, calls the
// services, and renders stable JSON responses. No business rules live here.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/authz"
	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/pkg/httpx"
	"github.com/loxleyhq/authcore/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	hierarchy    authz.Hierarchy

	store       store.Store
	Tokens      *service.TokenService
	Credentials *service.CredentialService
	Refresh     *service.RefreshService
	MFA         *service.MFAService
	Federation  *service.FederationService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		hierarchy:    authz.DefaultHierarchy(),
		store:        st,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) ApplyRoutes() {
	r.registerCredentials()
	r.registerTokens()
	r.registerOAuth()
	r.registerMFA()
	r.registerSystem()
}

func (r *Router) registerCredentials() {
	registerHandler := &RegisterHandler{Credentials: r.Credentials}
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(registerHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Login carries credentials; the rate gate runs before any comparison.
	loginHandler := &LoginHandler{Credentials: r.Credentials}
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	meHandler := &MeHandler{Store: r.store}
	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(meHandler,
			httpx.AuthnMiddleware(r.Tokens.AccessVerifier),
			httpx.RateLimitByIdentity(httpx.LenientLimit),
		),
	)

	userLookupHandler := &UserLookupHandler{Store: r.store}
	r.Mux.Handle("GET /v1/auth/users/{id}",
		httpx.Chain(userLookupHandler,
			httpx.AuthnMiddleware(r.Tokens.AccessVerifier),
			httpx.RequireRole(r.hierarchy, "admin"),
			httpx.RateLimitByIdentity(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerTokens() {
	refreshHandler := &RefreshHandler{Refresh: r.Refresh}
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refreshHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	logoutHandler := &LogoutHandler{Refresh: r.Refresh}
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(logoutHandler,
			httpx.AuthnMiddleware(r.Tokens.AccessVerifier),
			httpx.RateLimitByIdentity(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerOAuth() {
	// Federation is optional; without a configured provider the routes
	// simply do not exist.
	if r.Federation == nil {
		return
	}

	oauthHandler := &OAuthHandler{Federation: r.Federation}
	r.Mux.Handle("GET /v1/auth/oauth/login",
		httpx.Chain(http.HandlerFunc(oauthHandler.HandleLogin),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/auth/oauth/callback",
		httpx.Chain(http.HandlerFunc(oauthHandler.HandleCallback),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMFA() {
	mfaHandler := &MFAHandler{MFA: r.MFA, Credentials: r.Credentials}

	r.Mux.Handle("POST /v1/auth/mfa/setup",
		httpx.Chain(http.HandlerFunc(mfaHandler.HandleSetup),
			httpx.AuthnMiddleware(r.Tokens.AccessVerifier),
			httpx.RateLimitByIdentity(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/mfa/verify",
		httpx.Chain(http.HandlerFunc(mfaHandler.HandleVerify),
			httpx.AuthnMiddleware(r.Tokens.AccessVerifier),
			httpx.RateLimitByIdentity(httpx.StrictLimit),
		),
	)

	// Second-factor completion happens before tokens exist, so this one is
	// gated by IP like login.
	r.Mux.Handle("POST /v1/auth/mfa/verify-login",
		httpx.Chain(http.HandlerFunc(mfaHandler.HandleVerifyLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", &LivezHandler{
		BuildVersion: r.buildVersion,
		StartTime:    r.startTime,
	})
	r.Mux.Handle("GET /readyz", &ReadyzHandler{Store: r.store})
}
