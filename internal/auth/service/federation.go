package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/pkg/cryptox"
	"github.com/loxleyhq/authcore/pkg/idx"
	"github.com/loxleyhq/authcore/pkg/slogx"
)

const (
	// oauthStateTTL bounds how long an authorization redirect may dangle
	// before the state is treated as abandoned.
	oauthStateTTL = 10 * time.Minute

	discoveryPath = "/.well-known/openid-configuration"
)

// ProviderConfig identifies the upstream OIDC provider.
type ProviderConfig struct {
	Name         string // local provider label, e.g. "google"
	IssuerURL    string // base URL hosting the discovery document
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string // defaults to "openid email profile"
}

// discoveryDocument is the subset of the OIDC discovery metadata we use.
type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	RevocationEndpoint    string `json:"revocation_endpoint"`
}

// providerTokens is the provider's token endpoint response.
type providerTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// userinfoClaims is the subset of userinfo claims we map onto local users.
type userinfoClaims struct {
	Subject           string   `json:"sub"`
	Email             string   `json:"email"`
	EmailVerified     bool     `json:"email_verified"`
	PreferredUsername string   `json:"preferred_username"`
	Name              string   `json:"name"`
	Roles             []string `json:"roles"`
}

// FederationService drives browser-redirect login against an OIDC provider.
// State and nonce values are single use; a state survives exactly one
// callback presentation no matter how that callback ends.
type FederationService struct {
	Provider    ProviderConfig
	Store       store.Store
	Credentials *CredentialService
	HTTPClient  *http.Client

	mu        sync.Mutex
	discovery *discoveryDocument
}

// AuthorizationURL creates a fresh state/nonce pair, persists them, and
// returns the provider URL to redirect the browser to. returnTo is an
// optional local path to resume after the callback.
func (s *FederationService) AuthorizationURL(ctx context.Context, returnTo string) (string, error) {
	doc, err := s.discover(ctx)
	if err != nil {
		return "", err
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}
	nonce, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}

	err = s.Store.OAuthStates().CreateState(ctx, domain.OAuthState{
		State:     state,
		Nonce:     nonce,
		ReturnTo:  returnTo,
		ExpiresAt: time.Now().Add(oauthStateTTL),
	})
	if err != nil {
		return "", err
	}

	scopes := s.Provider.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", s.Provider.ClientID)
	q.Set("redirect_uri", s.Provider.RedirectURI)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("state", state)
	q.Set("nonce", nonce)

	return doc.AuthorizationEndpoint + "?" + q.Encode(), nil
}

// HandleCallback completes a federated login from the provider's redirect.
// The stored state is consumed before anything else happens, so replaying a
// callback can never reach the token exchange. On first login a local
// account is created; repeat logins resolve through the provider subject.
func (s *FederationService) HandleCallback(ctx context.Context, query url.Values) (domain.User, *domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	stored, err := s.Store.OAuthStates().ConsumeState(ctx, query.Get("state"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("oauth callback with unknown or expired state")
			return domain.User{}, nil, ErrStateMismatch
		}
		return domain.User{}, nil, err
	}

	if errCode := query.Get("error"); errCode != "" {
		l.Info("provider returned error", slog.String("error", errCode))
		return domain.User{}, nil, fmt.Errorf("%w: %s", ErrProviderError, errCode)
	}
	code := query.Get("code")
	if code == "" {
		return domain.User{}, nil, fmt.Errorf("%w: missing code", ErrProviderError)
	}

	tokens, err := s.exchangeCode(ctx, code)
	if err != nil {
		return domain.User{}, nil, err
	}

	if tokens.IDToken != "" {
		if err := verifyNonce(tokens.IDToken, stored.Nonce); err != nil {
			l.Info("id token nonce mismatch")
			return domain.User{}, nil, ErrStateMismatch
		}
	}

	claims, err := s.fetchUserinfo(ctx, tokens.AccessToken)
	if err != nil {
		return domain.User{}, nil, err
	}
	if claims.Subject == "" {
		return domain.User{}, nil, fmt.Errorf("%w: userinfo missing subject", ErrProviderError)
	}

	user, err := s.upsertUser(ctx, claims)
	if err != nil {
		return domain.User{}, nil, err
	}

	pair, err := s.Credentials.issueSession(ctx, s.Store, user, now)
	if err != nil {
		return domain.User{}, nil, err
	}

	l.Info("federated login",
		slog.String("user_id", user.ID),
		slog.String("provider", s.Provider.Name))

	return user, &pair, nil
}

// RefreshProviderToken exchanges a provider refresh token at the provider's
// token endpoint.
func (s *FederationService) RefreshProviderToken(ctx context.Context, refreshToken string) (providerTokens, error) {
	doc, err := s.discover(ctx)
	if err != nil {
		return providerTokens{}, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", s.Provider.ClientID)
	form.Set("client_secret", s.Provider.ClientSecret)

	return s.postTokenForm(ctx, doc.TokenEndpoint, form)
}

// RevokeProviderToken revokes a provider-issued token. Providers without a
// revocation endpoint make this a no-op.
func (s *FederationService) RevokeProviderToken(ctx context.Context, token, tokenTypeHint string) error {
	doc, err := s.discover(ctx)
	if err != nil {
		return err
	}
	if doc.RevocationEndpoint == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)
	if tokenTypeHint != "" {
		form.Set("token_type_hint", tokenTypeHint)
	}
	form.Set("client_id", s.Provider.ClientID)
	form.Set("client_secret", s.Provider.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		doc.RevocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: revocation returned %d", ErrProviderError, resp.StatusCode)
	}
	return nil
}

// discover fetches and caches the provider's discovery document.
func (s *FederationService) discover(ctx context.Context) (*discoveryDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discovery != nil {
		return s.discovery, nil
	}

	endpoint := strings.TrimSuffix(s.Provider.IssuerURL, "/") + discoveryPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: discovery returned %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode discovery: %v", ErrProviderUnavailable, err)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" || doc.UserinfoEndpoint == "" {
		return nil, fmt.Errorf("%w: discovery document incomplete", ErrProviderUnavailable)
	}

	s.discovery = &doc
	return s.discovery, nil
}

func (s *FederationService) exchangeCode(ctx context.Context, code string) (providerTokens, error) {
	doc, err := s.discover(ctx)
	if err != nil {
		return providerTokens{}, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.Provider.RedirectURI)
	form.Set("client_id", s.Provider.ClientID)
	form.Set("client_secret", s.Provider.ClientSecret)

	return s.postTokenForm(ctx, doc.TokenEndpoint, form)
}

func (s *FederationService) postTokenForm(ctx context.Context, endpoint string, form url.Values) (providerTokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return providerTokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return providerTokens{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providerTokens{}, fmt.Errorf("%w: token endpoint returned %d", ErrProviderError, resp.StatusCode)
	}

	var tokens providerTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return providerTokens{}, fmt.Errorf("%w: decode token response: %v", ErrProviderError, err)
	}
	if tokens.AccessToken == "" {
		return providerTokens{}, fmt.Errorf("%w: empty access token", ErrProviderError)
	}
	return tokens, nil
}

func (s *FederationService) fetchUserinfo(ctx context.Context, accessToken string) (userinfoClaims, error) {
	doc, err := s.discover(ctx)
	if err != nil {
		return userinfoClaims{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.UserinfoEndpoint, nil)
	if err != nil {
		return userinfoClaims{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient().Do(req)
	if err != nil {
		return userinfoClaims{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return userinfoClaims{}, fmt.Errorf("%w: userinfo returned %d", ErrProviderError, resp.StatusCode)
	}

	var claims userinfoClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return userinfoClaims{}, fmt.Errorf("%w: decode userinfo: %v", ErrProviderError, err)
	}
	return claims, nil
}

// upsertUser resolves the provider subject to a local account, creating one
// on first login or linking to an existing account with the same email.
func (s *FederationService) upsertUser(ctx context.Context, claims userinfoClaims) (domain.User, error) {
	var user domain.User

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.Users().GetUserByProviderSubject(ctx, s.Provider.Name, claims.Subject)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		email := strings.ToLower(strings.TrimSpace(claims.Email))

		// A local account with the provider's email gets linked rather
		// than duplicated.
		if email != "" {
			byEmail, err := tx.Users().GetUserByEmail(ctx, email)
			if err == nil {
				if err := tx.Users().LinkProvider(ctx, byEmail.ID, s.Provider.Name, claims.Subject); err != nil {
					return err
				}
				user, err = tx.Users().GetUserByID(ctx, byEmail.ID)
				return err
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		created := domain.User{
			ID:              idx.New().String(),
			Email:           email,
			Username:        federatedUsername(claims),
			Role:            domain.RoleUser,
			Roles:           mapProviderRoles(claims.Roles),
			EmailVerified:   true,
			Provider:        s.Provider.Name,
			ProviderSubject: claims.Subject,
		}
		created.NormalizeRoles()

		if err := tx.Users().CreateUser(ctx, created); err != nil {
			return err
		}
		user, err = tx.Users().GetUserByID(ctx, created.ID)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// federatedUsername derives a unique local username for a first login.
func federatedUsername(claims userinfoClaims) string {
	name := claims.PreferredUsername
	if name == "" && claims.Email != "" {
		name, _, _ = strings.Cut(claims.Email, "@")
	}
	if name == "" {
		name = "user"
	}
	// The provider subject keeps the name unique without another lookup.
	return name + "-" + cryptox.FingerprintToken(claims.Subject)[:8]
}

// mapProviderRoles lowercases roles asserted by the provider.
func mapProviderRoles(roles []string) []string {
	if len(roles) == 0 {
		return []string{domain.RoleUser}
	}
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = strings.ToLower(strings.TrimSpace(r))
	}
	return out
}

// verifyNonce checks the nonce claim inside the provider's ID token against
// the stored value. The token arrived over the direct TLS exchange with the
// provider, so its signature is not re-verified here; only the nonce binding
// matters.
func verifyNonce(idToken, nonce string) error {
	var claims struct {
		jwt.RegisteredClaims
		Nonce string `json:"nonce"`
	}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return err
	}
	if claims.Nonce != nonce {
		return errors.New("nonce mismatch")
	}
	return nil
}

func (s *FederationService) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}
