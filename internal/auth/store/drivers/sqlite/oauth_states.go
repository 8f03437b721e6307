package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/domain"
	"github.com/loxleyhq/authcore/internal/auth/store"
)

type oauthStatesRepo struct {
	db dbtx
}

func (r *oauthStatesRepo) CreateState(ctx context.Context, s domain.OAuthState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, nonce, return_to, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.State, s.Nonce, s.ReturnTo, s.ExpiresAt.UTC(), time.Now().UTC())
	return mapConstraint(err)
}

// ConsumeState fetches and deletes in one statement, so a state value is
// burned on its first presentation whether or not the rest of the callback
// succeeds. Expired rows are treated as absent.
func (r *oauthStatesRepo) ConsumeState(ctx context.Context, state string) (domain.OAuthState, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM oauth_states WHERE state = ?
		RETURNING state, nonce, return_to, expires_at, created_at`,
		state)

	var s domain.OAuthState
	err := row.Scan(&s.State, &s.Nonce, &s.ReturnTo, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OAuthState{}, store.ErrNotFound
		}
		return domain.OAuthState{}, err
	}
	if time.Now().After(s.ExpiresAt) {
		return domain.OAuthState{}, store.ErrNotFound
	}
	return s, nil
}

func (r *oauthStatesRepo) DeleteExpiredStates(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE expires_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
