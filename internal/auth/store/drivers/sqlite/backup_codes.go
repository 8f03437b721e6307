package sqlite

import (
	"context"
	"time"

	"github.com/loxleyhq/authcore/internal/auth/store"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, userID, codeHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO backup_codes (user_id, code_hash, created_at)
		VALUES (?, ?, ?)`,
		userID, codeHash, time.Now().UTC())
	return mapConstraint(err)
}

// ConsumeBackupCode deletes the code in a single statement so a code can
// only ever be spent once, even under concurrent attempts.
func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, userID, codeHash string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ? AND code_hash = ?`,
		userID, codeHash)
	if err != nil {
		return err
	}
	return requireAffected(res, store.ErrNotFound)
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
