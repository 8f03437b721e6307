package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/service"
	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/loxleyhq/authcore/pkg/cryptox"
	"github.com/loxleyhq/authcore/pkg/jwtx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *httptest.Server
	store  store.Store
	tokens *service.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cryptox.SetPepperPath(filepath.Join(t.TempDir(), "pepper"))
	t.Cleanup(func() { cryptox.SetPepperPath("pepper") })

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	accessSecret := []byte("0123456789abcdef0123456789abcdef")
	refreshSecret := []byte("fedcba9876543210fedcba9876543210")
	accessSigner, err := jwtx.NewSigner(accessSecret, "test", "test", jwtx.TokenTypeAccess, time.Hour)
	require.NoError(t, err)
	refreshSigner, err := jwtx.NewSigner(refreshSecret, "test", "test", jwtx.TokenTypeRefresh, 24*time.Hour)
	require.NoError(t, err)
	accessVerifier, err := jwtx.NewVerifier(accessSecret, "test", "test", jwtx.TokenTypeAccess, 0)
	require.NoError(t, err)
	refreshVerifier, err := jwtx.NewVerifier(refreshSecret, "test", "test", jwtx.TokenTypeRefresh, 0)
	require.NoError(t, err)

	tokens := &service.TokenService{
		AccessSigner:    accessSigner,
		RefreshSigner:   refreshSigner,
		AccessVerifier:  accessVerifier,
		RefreshVerifier: refreshVerifier,
	}
	refresh := &service.RefreshService{Tokens: tokens, Store: st}
	mfa := &service.MFAService{Store: st, Issuer: "test"}
	creds := &service.CredentialService{Tokens: tokens, MFA: mfa, Store: st}

	router := NewRouter("test", st, slog.New(slog.DiscardHandler))
	router.Tokens = tokens
	router.Credentials = creds
	router.Refresh = refresh
	router.MFA = mfa
	router.ApplyRoutes()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: st, tokens: tokens}
}

func (e *testEnv) postJSON(t *testing.T, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func (e *testEnv) getJSON(t *testing.T, path, token string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func (e *testEnv) registerAndLogin(t *testing.T) (userResponse, domain.TokenPair) {
	t.Helper()

	resp, _ := e.postJSON(t, "/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "username": "alice", "password": "test password 1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, payload := e.postJSON(t, "/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "test password 1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		User   userResponse     `json:"user"`
		Tokens domain.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(payload, &body))
	require.NotEmpty(t, body.Tokens.AccessToken)
	require.NotEmpty(t, body.Tokens.RefreshToken)
	return body.User, body.Tokens
}

func TestRegisterLoginMeFlow(t *testing.T) {
	env := newTestEnv(t)

	user, tokens := env.registerAndLogin(t)
	require.Equal(t, "alice@example.com", user.Email)
	require.Equal(t, "user", user.Role)

	resp, payload := env.getJSON(t, "/v1/auth/me", tokens.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me userResponse
	require.NoError(t, json.Unmarshal(payload, &me))
	require.Equal(t, user.ID, me.ID)

	// Responses must never leak secrets.
	require.NotContains(t, string(payload), "password")
	require.NotContains(t, string(payload), "refresh_token_hash")
	require.NotContains(t, string(payload), "mfa_secret")
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	for name, body := range map[string]map[string]string{
		"missing email":  {"username": "alice", "password": "test password 1"},
		"bad email":      {"email": "not-an-email", "username": "alice", "password": "test password 1"},
		"short password": {"email": "a@b.c", "username": "alice", "password": "short"},
	} {
		resp, _ := env.postJSON(t, "/v1/auth/register", "", body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestLoginFailureIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t)

	resp, payload := env.postJSON(t, "/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong password",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var apiErr struct {
		Code string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(payload, &apiErr))
	require.Equal(t, "invalid_credentials", apiErr.Code)
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	_, tokens := env.registerAndLogin(t)

	resp, payload := env.postJSON(t, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var rotated domain.TokenPair
	require.NoError(t, json.Unmarshal(payload, &rotated))
	require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The old token is burned.
	resp, payload = env.postJSON(t, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var apiErr struct {
		Code string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(payload, &apiErr))
	require.Equal(t, "token_mismatch", apiErr.Code)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	env := newTestEnv(t)
	_, tokens := env.registerAndLogin(t)

	resp, _ := env.postJSON(t, "/v1/auth/logout", tokens.AccessToken, struct{}{})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.postJSON(t, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthenticatedRoutesRejectBadTokens(t *testing.T) {
	env := newTestEnv(t)
	_, tokens := env.registerAndLogin(t)

	resp, _ := env.getJSON(t, "/v1/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.getJSON(t, "/v1/auth/me", "not-a-token")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")

	// Refresh tokens are not access tokens.
	resp, _ = env.getJSON(t, "/v1/auth/me", tokens.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMFASetupVerifyLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	user, tokens := env.registerAndLogin(t)

	resp, payload := env.postJSON(t, "/v1/auth/mfa/setup", tokens.AccessToken, struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var setup mfaSetupResponse
	require.NoError(t, json.Unmarshal(payload, &setup))
	require.NotEmpty(t, setup.Secret)
	require.Len(t, setup.BackupCodes, 5)

	code := totpNow(t, setup.Secret)
	resp, _ = env.postJSON(t, "/v1/auth/mfa/verify", tokens.AccessToken, map[string]string{"code": code})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Login now suspends with 409 mfa_required.
	resp, payload = env.postJSON(t, "/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "test password 1",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var pending mfaPendingResponse
	require.NoError(t, json.Unmarshal(payload, &pending))
	require.True(t, pending.MFARequired)
	require.Equal(t, user.ID, pending.UserID)

	// Completing with a backup code issues tokens.
	resp, payload = env.postJSON(t, "/v1/auth/mfa/verify-login", "", map[string]string{
		"user_id": pending.UserID, "backup_code": setup.BackupCodes[0],
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var completed struct {
		Tokens domain.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(payload, &completed))
	require.NotEmpty(t, completed.Tokens.AccessToken)

	// Sending both factors at once is a bad request.
	resp, _ = env.postJSON(t, "/v1/auth/mfa/verify-login", "", map[string]string{
		"user_id": pending.UserID, "backup_code": setup.BackupCodes[1], "totp_code": code,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminLookupRequiresRole(t *testing.T) {
	env := newTestEnv(t)
	user, tokens := env.registerAndLogin(t)

	// A plain user is forbidden.
	resp, _ := env.getJSON(t, "/v1/auth/users/"+user.ID, tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Mint an admin token directly; role checks run on token claims.
	adminToken, err := env.tokens.AccessSigner.Sign("admin-1", "root@example.com", []string{"admin"}, time.Now())
	require.NoError(t, err)

	resp, payload := env.getJSON(t, "/v1/auth/users/"+user.ID, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got userResponse
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Equal(t, user.ID, got.ID)

	resp, _ = env.getJSON(t, "/v1/auth/users/no-such-user", adminToken)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]string{"email": "nobody@example.com", "password": "wrong password"}
	for range 5 {
		resp, _ := env.postJSON(t, "/v1/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp, payload := env.postJSON(t, "/v1/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.Contains(t, string(payload), "rate_limit_exceeded")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, payload := env.getJSON(t, "/livez", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(payload), `"status":"ok"`)

	resp, _ = env.getJSON(t, "/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func totpNow(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}
