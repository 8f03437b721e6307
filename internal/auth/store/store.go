// Package store defines the data access contracts for the authentication
// core. Concrete drivers (sqlite today) implement Store; services depend on
// these interfaces only, which keeps them testable against in-memory
// databases.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports a compare-and-set write that matched no row:
	// the guarded value changed underneath the caller.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface, exposing sub-repositories.
type Store interface {
	Users() Users
	BackupCodes() BackupCodes
	OAuthStates() OAuthStates

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed. Multi-step writes
	// that must be atomic (backup-code consumption plus token persistence)
	// go through here.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources.
	Close() error

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up by normalized (lowercase) email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByUsername looks up by username.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByProviderSubject resolves a federated (provider, subject)
	// pair to its local account.
	GetUserByProviderSubject(ctx context.Context, provider, subject string) (domain.User, error)

	// CreateUser inserts a new user. Email or username collisions return
	// ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// LinkProvider attaches a federated identity to an existing account
	// and marks the email verified.
	LinkProvider(ctx context.Context, userID, provider, subject string) error

	// UpdateLastLogin stamps last_login and bumps updated_at.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// SetRefreshToken replaces the stored refresh fingerprint
	// unconditionally (login issues a fresh session).
	SetRefreshToken(ctx context.Context, userID, hash string, expires time.Time) error

	// SwapRefreshToken replaces the stored refresh fingerprint only if it
	// still equals oldHash. Returns ErrConflict when the guard fails, which
	// is how a losing concurrent rotation observes the winner's write.
	SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string, expires time.Time) error

	// ClearRefreshToken removes the stored fingerprint and expiry (logout).
	ClearRefreshToken(ctx context.Context, userID string) error

	// SetMFAPending stores a fresh TOTP secret with mfa_enabled set and
	// mfa_verified cleared.
	SetMFAPending(ctx context.Context, userID, secret string) error

	// ConfirmMFA flips mfa_verified after a successful enrollment check.
	ConfirmMFA(ctx context.Context, userID string) error

	// DisableMFA clears the secret and both MFA flags.
	DisableMFA(ctx context.Context, userID string) error
}

type BackupCodes interface {
	// CreateBackupCode stores one hashed backup code for a user.
	CreateBackupCode(ctx context.Context, userID, codeHash string) error

	// ConsumeBackupCode deletes the matching hash, returning ErrNotFound
	// when no such unused code exists. Deletion and lookup are a single
	// statement so the same code can never be consumed twice.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) error

	// DeleteAllBackupCodes removes every code for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountBackupCodes returns the number of unused codes for a user.
	CountBackupCodes(ctx context.Context, userID string) (int, error)
}

type OAuthStates interface {
	// CreateState persists a fresh state/nonce binding.
	CreateState(ctx context.Context, st domain.OAuthState) error

	// ConsumeState atomically fetches and deletes a state row. Missing or
	// expired states return ErrNotFound. A state is gone after its first
	// presentation regardless of what the caller does next.
	ConsumeState(ctx context.Context, state string) (domain.OAuthState, error)

	// DeleteExpiredStates is housekeeping for abandoned authorization
	// redirects. It reports how many rows were removed.
	DeleteExpiredStates(ctx context.Context, before time.Time) (int64, error)
}
