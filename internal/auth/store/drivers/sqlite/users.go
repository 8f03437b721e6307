package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, username, password_hash, role, roles,
	email_verified, provider, provider_subject, mfa_enabled, mfa_verified, mfa_secret,
	refresh_token_hash, refresh_token_expires, last_login, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	var secret sql.NullString
	if u.MFASecret != nil {
		secret = sql.NullString{String: *u.MFASecret, Valid: true}
	}
	var provider, subject sql.NullString
	if u.Provider != "" {
		provider = sql.NullString{String: u.Provider, Valid: true}
	}
	if u.ProviderSubject != "" {
		subject = sql.NullString{String: u.ProviderSubject, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, email, username, password_hash, role, roles,
			email_verified, provider, provider_subject,
			mfa_enabled, mfa_verified, mfa_secret,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.Role, joinRoles(u.Roles),
		u.EmailVerified, provider, subject,
		u.MFAEnabled, u.MFAVerified, secret,
		now, now,
	)
	return mapConstraint(err)
}

// GetUserByProviderSubject resolves a federated login to its local account.
func (r *usersRepo) GetUserByProviderSubject(ctx context.Context, provider, subject string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_subject = ?`,
		provider, subject)
	return scanUser(row)
}

// LinkProvider attaches a federated identity to an existing account, used
// when a provider asserts an email that already has a local user.
func (r *usersRepo) LinkProvider(ctx context.Context, userID, provider, subject string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET provider = ?, provider_subject = ?, email_verified = 1, updated_at = ?
		WHERE id = ?`,
		provider, subject, time.Now().UTC(), userID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireAffected(res, store.ErrNotFound)
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), userID)
	return err
}

func (r *usersRepo) SetRefreshToken(ctx context.Context, userID, hash string, expires time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token_hash = ?, refresh_token_expires = ?, updated_at = ?
		WHERE id = ?`,
		hash, expires.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireAffected(res, store.ErrNotFound)
}

// SwapRefreshToken is the compare-and-set backing rotation-on-use: the write
// only lands when the stored fingerprint still equals oldHash, so of two
// concurrent rotations exactly one succeeds and the other sees ErrConflict.
func (r *usersRepo) SwapRefreshToken(ctx context.Context, userID, oldHash, newHash string, expires time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token_hash = ?, refresh_token_expires = ?, updated_at = ?
		WHERE id = ? AND refresh_token_hash = ?`,
		newHash, expires.UTC(), time.Now().UTC(), userID, oldHash)
	if err != nil {
		return err
	}
	return requireAffected(res, store.ErrConflict)
}

func (r *usersRepo) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token_hash = NULL, refresh_token_expires = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), userID)
	return err
}

func (r *usersRepo) SetMFAPending(ctx context.Context, userID, secret string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_enabled = 1, mfa_verified = 0, mfa_secret = ?, updated_at = ?
		WHERE id = ?`,
		secret, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireAffected(res, store.ErrNotFound)
}

func (r *usersRepo) ConfirmMFA(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_verified = 1, updated_at = ?
		WHERE id = ? AND mfa_enabled = 1`,
		time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	return requireAffected(res, store.ErrNotFound)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_enabled = 0, mfa_verified = 0, mfa_secret = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), userID)
	return err
}

func requireAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u             domain.User
		roles         string
		provider      sql.NullString
		subject       sql.NullString
		secret        sql.NullString
		refreshHash   sql.NullString
		refreshExpiry sql.NullTime
		lastLogin     sql.NullTime
	)

	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &roles,
		&u.EmailVerified, &provider, &subject, &u.MFAEnabled, &u.MFAVerified, &secret,
		&refreshHash, &refreshExpiry, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Roles = splitRoles(roles)
	if provider.Valid {
		u.Provider = provider.String
	}
	if subject.Valid {
		u.ProviderSubject = subject.String
	}
	u.MFASecret = mapNullStringPtr(secret)
	u.RefreshTokenHash = mapNullStringPtr(refreshHash)
	u.RefreshTokenExpires = mapNullTimePtr(refreshExpiry)
	u.LastLogin = mapNullTimePtr(lastLogin)

	return u, nil
}
