package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mkazakov/sessiond/internal/storage"
)

type tokenEntry struct {
	value     string
	expiresAt time.Time
}

// TokenStorage mirrors the Redis token store for tests: entries expire
// lazily on read against the injected clock.
type TokenStorage struct {
	mu       sync.Mutex
	denylist map[string]tokenEntry
	resets   map[string]tokenEntry
	now      func() time.Time
}

func NewTokenStorage(now func() time.Time) *TokenStorage {
	if now == nil {
		now = time.Now
	}
	return &TokenStorage{
		denylist: make(map[string]tokenEntry),
		resets:   make(map[string]tokenEntry),
		now:      now,
	}
}

func (m *TokenStorage) InvalidateToken(_ context.Context, token string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denylist[token] = tokenEntry{value: "invalidated", expiresAt: m.now().Add(expiration)}
	return nil
}

func (m *TokenStorage) IsTokenInvalidated(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.denylist[token]
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.After(m.now()) {
		delete(m.denylist, token)
		return false, nil
	}
	return true, nil
}

func (m *TokenStorage) StoreResetToken(_ context.Context, tokenHash, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[tokenHash] = tokenEntry{value: userID, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *TokenStorage) ConsumeResetToken(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.resets[tokenHash]
	if !ok {
		return "", storage.ErrResetTokenNotFound
	}
	delete(m.resets, tokenHash)
	if !entry.expiresAt.After(m.now()) {
		return "", storage.ErrResetTokenNotFound
	}
	return entry.value, nil
}
