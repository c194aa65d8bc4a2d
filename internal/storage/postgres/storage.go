package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkazakov/sessiond/internal/models"
)

// Storage combines the user and session repositories over one connection
// pool and owns the flows that must span several statements atomically.
type Storage struct {
	db        *sql.DB
	maxActive int
	now       func() time.Time
	*UserRepository
	*SessionRepository
}

func NewStorage(db *sql.DB, maxActive int) *Storage {
	return &Storage{
		db:                db,
		maxActive:         maxActive,
		now:               time.Now,
		UserRepository:    NewUserRepository(db),
		SessionRepository: NewSessionRepository(db),
	}
}

// CreateSession inserts a refresh-session record, first evicting the
// earliest-expiring active session when the user is at the cap. The
// check-evict-insert sequence runs in a single transaction with the user's
// active rows locked, so two concurrent logins cannot jointly exceed the cap.
func (s *Storage) CreateSession(ctx context.Context, userID, jti, tokenHash string, expiresAt time.Time) (*models.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sessionRepoTx := NewSessionRepository(tx)
	now := s.now().UTC()

	active, err := sessionRepoTx.LockActiveSessions(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	if len(active) >= s.maxActive {
		// Rows come back ordered by (expires_at, id), so the head is the
		// eviction victim.
		if err := sessionRepoTx.DeleteSessionByID(ctx, active[0].ID); err != nil {
			return nil, err
		}
	}

	session, err := sessionRepoTx.InsertSession(ctx, userID, jti, tokenHash, expiresAt, now)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return session, nil
}
