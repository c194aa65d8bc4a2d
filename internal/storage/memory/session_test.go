package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mkazakov/sessiond/internal/storage"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateSessionEvictsEarliestExpiryAtCap(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStorage(3, fixedClock(now))
	ctx := context.Background()

	// Three active sessions with staggered expiries; s2 expires first.
	_, err := store.CreateSession(ctx, "user-a", "jti-1", "hash-1", now.Add(3*time.Hour))
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "user-a", "jti-2", "hash-2", now.Add(1*time.Hour))
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "user-a", "jti-3", "hash-3", now.Add(2*time.Hour))
	require.NoError(t, err)

	_, err = store.CreateSession(ctx, "user-a", "jti-4", "hash-4", now.Add(4*time.Hour))
	require.NoError(t, err)

	_, err = store.GetSessionByJTI(ctx, "jti-2")
	require.ErrorIs(t, err, storage.ErrSessionNotFound)

	for _, jti := range []string{"jti-1", "jti-3", "jti-4"} {
		session, err := store.GetSessionByJTI(ctx, jti)
		require.NoError(t, err)
		require.True(t, session.Active(now))
	}
}

func TestCreateSessionEvictionTieBreaksOnLowestID(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStorage(3, fixedClock(now))
	ctx := context.Background()

	// Identical expiries: the oldest row (lowest id) goes.
	expiry := now.Add(time.Hour)
	for i, jti := range []string{"jti-1", "jti-2", "jti-3"} {
		_, err := store.CreateSession(ctx, "user-a", jti, "hash", expiry)
		require.NoError(t, err, "session %d", i)
	}

	_, err := store.CreateSession(ctx, "user-a", "jti-4", "hash", expiry)
	require.NoError(t, err)

	_, err = store.GetSessionByJTI(ctx, "jti-1")
	require.ErrorIs(t, err, storage.ErrSessionNotFound)
	for _, jti := range []string{"jti-2", "jti-3", "jti-4"} {
		_, err := store.GetSessionByJTI(ctx, jti)
		require.NoError(t, err)
	}
}

func TestCreateSessionIgnoresOtherUsersAndInactiveRows(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStorage(3, fixedClock(now))
	ctx := context.Background()

	// A revoked and an expired session do not count toward the cap.
	_, err := store.CreateSession(ctx, "user-a", "jti-revoked", "hash", now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.RevokeSession(ctx, "jti-revoked"))
	_, err = store.CreateSession(ctx, "user-a", "jti-expired", "hash", now.Add(-time.Minute))
	require.NoError(t, err)

	// Another user's sessions do not count either.
	_, err = store.CreateSession(ctx, "user-b", "jti-b1", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	for _, jti := range []string{"jti-a1", "jti-a2", "jti-a3"} {
		_, err = store.CreateSession(ctx, "user-a", jti, "hash", now.Add(time.Hour))
		require.NoError(t, err)
	}

	// Nothing was evicted: the inactive rows are still present.
	_, err = store.GetSessionByJTI(ctx, "jti-revoked")
	require.NoError(t, err)
	_, err = store.GetSessionByJTI(ctx, "jti-expired")
	require.NoError(t, err)
	_, err = store.GetSessionByJTI(ctx, "jti-b1")
	require.NoError(t, err)
}

func TestRevokeSessionIsMonotonicAndIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStorage(3, fixedClock(now))
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "user-a", "jti-1", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, store.RevokeSession(ctx, "jti-1"))
	require.NoError(t, store.RevokeSession(ctx, "jti-1"))
	require.NoError(t, store.RevokeSession(ctx, "jti-missing"))

	session, err := store.GetSessionByJTI(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, session.IsRevoked)
}

func TestRevokeAllUserSessions(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStorage(3, fixedClock(now))
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "user-a", "jti-1", "hash", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "user-a", "jti-2", "hash", now.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "user-b", "jti-b", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, store.RevokeAllUserSessions(ctx, "user-a"))

	for _, jti := range []string{"jti-1", "jti-2"} {
		session, err := store.GetSessionByJTI(ctx, jti)
		require.NoError(t, err)
		require.True(t, session.IsRevoked)
	}
	other, err := store.GetSessionByJTI(ctx, "jti-b")
	require.NoError(t, err)
	require.False(t, other.IsRevoked)
}

func TestDeleteExpiredSessions(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStorage(10, fixedClock(now))
	ctx := context.Background()

	// Past expiries, one of them revoked; future expiries, one revoked.
	_, err := store.CreateSession(ctx, "user-a", "jti-past-1", "hash", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "user-a", "jti-past-2", "hash", now.Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.RevokeSession(ctx, "jti-past-2"))
	_, err = store.CreateSession(ctx, "user-a", "jti-boundary", "hash", now)
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "user-a", "jti-future-1", "hash", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "user-a", "jti-future-2", "hash", now.Add(2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.RevokeSession(ctx, "jti-future-2"))

	count, err := store.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	for _, jti := range []string{"jti-past-1", "jti-past-2", "jti-boundary"} {
		_, err := store.GetSessionByJTI(ctx, jti)
		require.ErrorIs(t, err, storage.ErrSessionNotFound, "jti %s", jti)
	}
	// Future rows survive regardless of revocation state.
	for _, jti := range []string{"jti-future-1", "jti-future-2"} {
		_, err := store.GetSessionByJTI(ctx, jti)
		require.NoError(t, err, "jti %s", jti)
	}
}
