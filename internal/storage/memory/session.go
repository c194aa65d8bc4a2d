package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mkazakov/sessiond/internal/models"
	"github.com/mkazakov/sessiond/internal/storage"
)

// SessionStorage is a mutex-guarded map implementation of the session
// repository with the same cap-eviction and sweep semantics as the
// Postgres store. Used by tests and as a no-database fallback.
type SessionStorage struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	nextID    int64
	maxActive int
	now       func() time.Time
}

func NewSessionStorage(maxActive int, now func() time.Time) *SessionStorage {
	if now == nil {
		now = time.Now
	}
	return &SessionStorage{
		sessions:  make(map[string]*models.Session),
		nextID:    1,
		maxActive: maxActive,
		now:       now,
	}
}

func (m *SessionStorage) CreateSession(_ context.Context, userID, jti, tokenHash string, expiresAt time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	var victim *models.Session
	activeCount := 0
	for _, s := range m.sessions {
		if s.UserID != userID || !s.Active(now) {
			continue
		}
		activeCount++
		if victim == nil ||
			s.ExpiresAt.Before(victim.ExpiresAt) ||
			(s.ExpiresAt.Equal(victim.ExpiresAt) && s.ID < victim.ID) {
			victim = s
		}
	}
	if activeCount >= m.maxActive && victim != nil {
		delete(m.sessions, victim.JTI)
	}

	session := &models.Session{
		ID:        m.nextID,
		UserID:    userID,
		JTI:       jti,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.nextID++
	m.sessions[jti] = session

	copied := *session
	return &copied, nil
}

func (m *SessionStorage) GetSessionByJTI(_ context.Context, jti string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[jti]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *SessionStorage) RevokeSession(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[jti]; ok {
		session.IsRevoked = true
		session.UpdatedAt = m.now()
	}
	return nil
}

func (m *SessionStorage) RevokeAllUserSessions(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, session := range m.sessions {
		if session.UserID == userID {
			session.IsRevoked = true
			session.UpdatedAt = now
		}
	}
	return nil
}

func (m *SessionStorage) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for jti, session := range m.sessions {
		if !session.ExpiresAt.After(now) {
			delete(m.sessions, jti)
			count++
		}
	}
	return count, nil
}
