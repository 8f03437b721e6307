package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/store"
	"github.com/loxleyhq/authcore/internal/auth/store/drivers/sqlite"
	"github.com/loxleyhq/authcore/pkg/cryptox"
	"github.com/loxleyhq/authcore/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()

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

	return &TokenService{
		AccessSigner:    accessSigner,
		RefreshSigner:   refreshSigner,
		AccessVerifier:  accessVerifier,
		RefreshVerifier: refreshVerifier,
	}
}

// newTestServices wires the full service graph over an in-memory store.
func newTestServices(t *testing.T) (*CredentialService, *RefreshService, *MFAService, store.Store) {
	t.Helper()

	cryptox.SetPepperPath(filepath.Join(t.TempDir(), "pepper"))
	t.Cleanup(func() { cryptox.SetPepperPath("pepper") })

	st := newTestStore(t)
	tokens := newTestTokens(t)

	refresh := &RefreshService{Tokens: tokens, Store: st}
	mfa := &MFAService{Store: st, Issuer: "test"}
	creds := &CredentialService{
		Tokens: tokens,
		MFA:    mfa,
		Store:  st,
	}
	return creds, refresh, mfa, st
}

func registerTestUser(t *testing.T, creds *CredentialService, email, username string) domain.User {
	t.Helper()

	user, err := creds.Register(context.Background(), email, username, "test password 1", "")
	require.NoError(t, err)
	return user
}
