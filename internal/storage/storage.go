package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mkazakov/sessiond/internal/models"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrResetTokenNotFound = errors.New("reset token not found")
)

// DBTX is the subset of *sql.DB / *sql.Tx the repositories use, so the
// same repository code runs inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage interface {
	SessionRepository
	UserRepository
}

type SessionRepository interface {
	// CreateSession persists a new refresh-session record. When the owner
	// already holds the maximum number of active sessions, the one with the
	// earliest expiry (lowest id on ties) is hard-deleted to make room, all
	// inside one transaction.
	CreateSession(ctx context.Context, userID, jti, tokenHash string, expiresAt time.Time) (*models.Session, error)
	GetSessionByJTI(ctx context.Context, jti string) (*models.Session, error)
	// RevokeSession is idempotent: revoking an absent or already-revoked
	// session is a silent no-op.
	RevokeSession(ctx context.Context, jti string) error
	RevokeAllUserSessions(ctx context.Context, userID string) error
	// DeleteExpiredSessions hard-deletes every record with expires_at <= now,
	// revoked or not, and returns the number removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, email, passwordHash string, role models.Role) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
}

// TokenStorage holds short-lived token state: the access-token denylist
// consulted before trusting a signature, and outstanding password-reset
// credentials keyed by their hash.
type TokenStorage interface {
	InvalidateToken(ctx context.Context, token string, expiration time.Duration) error
	IsTokenInvalidated(ctx context.Context, token string) (bool, error)
	StoreResetToken(ctx context.Context, tokenHash, userID string, ttl time.Duration) error
	ConsumeResetToken(ctx context.Context, tokenHash string) (string, error)
}
