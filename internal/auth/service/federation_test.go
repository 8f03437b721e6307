package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal OIDC provider over httptest. Writable fields
// steer each test's scenario.
type fakeProvider struct {
	server *httptest.Server

	subject       string
	email         string
	roles         []string
	nonceOverride string // when set, the id_token carries this nonce instead

	tokenCalls atomic.Int64
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{
		subject: "prov-sub-1",
		email:   "alice@example.com",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"authorization_endpoint": p.server.URL + "/authorize",
			"token_endpoint":         p.server.URL + "/token",
			"userinfo_endpoint":      p.server.URL + "/userinfo",
			"revocation_endpoint":    p.server.URL + "/revoke",
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		p.tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())

		idToken := p.mintIDToken(t, p.nonceOverride)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access-token",
			"token_type":   "Bearer",
			"id_token":     idToken,
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":            p.subject,
			"email":          p.email,
			"email_verified": true,
			"roles":          p.roles,
		})
	})
	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) mintIDToken(t *testing.T, nonce string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   p.server.URL,
		"sub":   p.subject,
		"nonce": nonce,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("provider-signing-key-for-tests!!"))
	require.NoError(t, err)
	return signed
}

func newTestFederation(t *testing.T) (*FederationService, *fakeProvider) {
	t.Helper()

	creds, _, _, st := newTestServices(t)
	provider := newFakeProvider(t)

	fed := &FederationService{
		Provider: ProviderConfig{
			Name:         "testidp",
			IssuerURL:    provider.server.URL,
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURI:  "http://localhost/v1/auth/oauth/callback",
		},
		Store:       st,
		Credentials: creds,
		HTTPClient:  provider.server.Client(),
	}
	return fed, provider
}

// startFlow runs AuthorizationURL and returns the state and nonce it minted.
func startFlow(t *testing.T, fed *FederationService) (state, nonce string) {
	t.Helper()

	authURL, err := fed.AuthorizationURL(context.Background(), "")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "client-id", q.Get("client_id"))
	require.NotEmpty(t, q.Get("state"))
	require.NotEmpty(t, q.Get("nonce"))
	return q.Get("state"), q.Get("nonce")
}

// callbackQuery builds the provider redirect for a started flow.
func callbackQuery(state string) url.Values {
	return url.Values{
		"state": {state},
		"code":  {"auth-code"},
	}
}

// handleTestCallback completes a flow: the fake provider needs to know the
// nonce to embed in its id_token, since a real provider echoes the value
// from the authorization request.
func (s *FederationService) handleTestCallback(t *testing.T, p *fakeProvider, state, nonce string) (domain.User, *domain.TokenPair, error) {
	t.Helper()
	p.nonceOverride = nonce
	defer func() { p.nonceOverride = "" }()
	return s.HandleCallback(context.Background(), callbackQuery(state))
}

func TestFederatedLoginCreatesUser(t *testing.T) {
	fed, provider := newTestFederation(t)

	state, nonce := startFlow(t, fed)
	user, pair, err := fed.handleTestCallback(t, provider, state, nonce)
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.NotEmpty(t, pair.AccessToken)

	require.Equal(t, "alice@example.com", user.Email)
	require.Equal(t, "testidp", user.Provider)
	require.Equal(t, "prov-sub-1", user.ProviderSubject)
	require.True(t, user.EmailVerified)
	require.Equal(t, []string{domain.RoleUser}, user.Roles)
	require.Empty(t, user.PasswordHash)

	// A second login resolves to the same account.
	state, nonce = startFlow(t, fed)
	again, _, err := fed.handleTestCallback(t, provider, state, nonce)
	require.NoError(t, err)
	require.Equal(t, user.ID, again.ID)
}

func TestFederatedLoginLowercasesProviderRoles(t *testing.T) {
	fed, provider := newTestFederation(t)
	provider.roles = []string{"Admin", "EDITOR"}

	state, nonce := startFlow(t, fed)
	user, _, err := fed.handleTestCallback(t, provider, state, nonce)
	require.NoError(t, err)
	require.Contains(t, user.Roles, "admin")
	require.Contains(t, user.Roles, "editor")
	require.Contains(t, user.Roles, "user", "baseline role is always present")
}

func TestFederatedLoginLinksExistingEmail(t *testing.T) {
	fed, provider := newTestFederation(t)
	ctx := context.Background()

	local := registerTestUser(t, fed.Credentials, "alice@example.com", "alice")

	state, nonce := startFlow(t, fed)
	user, _, err := fed.handleTestCallback(t, provider, state, nonce)
	require.NoError(t, err)
	require.Equal(t, local.ID, user.ID, "federated identity links to the existing account")
	require.Equal(t, "testidp", user.Provider)
	require.True(t, user.EmailVerified)

	// Password login still works on the linked account.
	result, err := fed.Credentials.Login(ctx, "alice@example.com", "test password 1")
	require.NoError(t, err)
	require.Equal(t, domain.AuthStatusAuthenticated, result.Status)
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	fed, provider := newTestFederation(t)
	ctx := context.Background()

	_, _, err := fed.HandleCallback(ctx, callbackQuery("never-issued"))
	require.ErrorIs(t, err, ErrStateMismatch)
	require.Zero(t, provider.tokenCalls.Load(), "no token exchange without a valid state")
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	fed, provider := newTestFederation(t)
	ctx := context.Background()

	state, nonce := startFlow(t, fed)
	_, _, err := fed.handleTestCallback(t, provider, state, nonce)
	require.NoError(t, err)

	// Replaying the same callback fails before any exchange.
	calls := provider.tokenCalls.Load()
	_, _, err = fed.HandleCallback(ctx, callbackQuery(state))
	require.ErrorIs(t, err, ErrStateMismatch)
	require.Equal(t, calls, provider.tokenCalls.Load())
}

func TestCallbackConsumesStateOnProviderError(t *testing.T) {
	fed, _ := newTestFederation(t)
	ctx := context.Background()

	state, _ := startFlow(t, fed)

	q := url.Values{"state": {state}, "error": {"access_denied"}}
	_, _, err := fed.HandleCallback(ctx, q)
	require.ErrorIs(t, err, ErrProviderError)

	// The state died with the failed callback.
	_, _, err = fed.HandleCallback(ctx, callbackQuery(state))
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestCallbackRejectsNonceMismatch(t *testing.T) {
	fed, provider := newTestFederation(t)
	ctx := context.Background()

	state, _ := startFlow(t, fed)
	provider.nonceOverride = "attacker-chosen-nonce"

	_, _, err := fed.HandleCallback(ctx, callbackQuery(state))
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestRefreshAndRevokeProviderToken(t *testing.T) {
	fed, provider := newTestFederation(t)
	ctx := context.Background()

	provider.nonceOverride = "irrelevant"
	tokens, err := fed.RefreshProviderToken(ctx, "provider-refresh-token")
	require.NoError(t, err)
	require.Equal(t, "provider-access-token", tokens.AccessToken)

	require.NoError(t, fed.RevokeProviderToken(ctx, "provider-access-token", "access_token"))
}

func TestDiscoveryFailureSurfacesAsUnavailable(t *testing.T) {
	creds, _, _, st := newTestServices(t)

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	fed := &FederationService{
		Provider: ProviderConfig{
			Name:        "testidp",
			IssuerURL:   dead.URL,
			ClientID:    "client-id",
			RedirectURI: "http://localhost/cb",
		},
		Store:       st,
		Credentials: creds,
	}

	_, err := fed.AuthorizationURL(context.Background(), "")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}
