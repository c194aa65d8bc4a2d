package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mkazakov/sessiond/internal/models"
	"github.com/mkazakov/sessiond/internal/storage"
)

type SessionRepository struct {
	db storage.DBTX
}

func NewSessionRepository(db storage.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, jti, token_hash, expires_at, is_revoked, created_at, updated_at`

func (r *SessionRepository) InsertSession(ctx context.Context, userID, jti, tokenHash string, expiresAt, now time.Time) (*models.Session, error) {
	query := `INSERT INTO sessions (user_id, jti, token_hash, expires_at, is_revoked, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, FALSE, $5, $5)
	          RETURNING ` + sessionColumns
	var s models.Session
	err := r.db.QueryRowContext(ctx, query, userID, jti, tokenHash, expiresAt, now).Scan(
		&s.ID,
		&s.UserID,
		&s.JTI,
		&s.TokenHash,
		&s.ExpiresAt,
		&s.IsRevoked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return &s, nil
}

// LockActiveSessions reads the user's active session rows under FOR UPDATE,
// ordered by expiry then id, so concurrent logins for the same user serialize
// on the cap check. Rows of other users are untouched.
func (r *SessionRepository) LockActiveSessions(ctx context.Context, userID string, now time.Time) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
	          WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2
	          ORDER BY expires_at, id
	          FOR UPDATE`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to lock active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.JTI, &s.TokenHash, &s.ExpiresAt, &s.IsRevoked, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) DeleteSessionByID(ctx context.Context, id int64) error {
	query := `DELETE FROM sessions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete session %d: %w", id, err)
	}
	return nil
}

func (r *SessionRepository) GetSessionByJTI(ctx context.Context, jti string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE jti = $1`
	var s models.Session
	err := r.db.QueryRowContext(ctx, query, jti).Scan(
		&s.ID,
		&s.UserID,
		&s.JTI,
		&s.TokenHash,
		&s.ExpiresAt,
		&s.IsRevoked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// RevokeSession is a blind update: no rows affected means the session is
// absent or already revoked, and the caller treats that as success.
func (r *SessionRepository) RevokeSession(ctx context.Context, jti string) error {
	query := `UPDATE sessions SET is_revoked = TRUE, updated_at = now() WHERE jti = $1`
	if _, err := r.db.ExecContext(ctx, query, jti); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (r *SessionRepository) RevokeAllUserSessions(ctx context.Context, userID string) error {
	query := `UPDATE sessions SET is_revoked = TRUE, updated_at = now() WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return count, nil
}
