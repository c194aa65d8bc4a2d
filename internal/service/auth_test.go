package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkazakov/sessiond/internal/models"
	"github.com/mkazakov/sessiond/internal/storage"
	"github.com/mkazakov/sessiond/internal/storage/memory"
	"github.com/mkazakov/sessiond/internal/util"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{t: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type capturingNotifier struct {
	mu    sync.Mutex
	token string
	email string
}

func (n *capturingNotifier) NotifyPasswordReset(_ context.Context, email, token string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.email = email
	n.token = token
}

func (n *capturingNotifier) last() (string, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.email, n.token
}

type authFixture struct {
	svc      *AuthService
	tokens   *TokenService
	sessions *memory.SessionStorage
	users    *memory.UserStorage
	denylist *memory.TokenStorage
	clock    *testClock
	notifier *capturingNotifier
}

type memStorage struct {
	*memory.SessionStorage
	*memory.UserStorage
}

func newAuthFixture(t *testing.T, start time.Time, refreshTTL time.Duration) *authFixture {
	t.Helper()

	clock := newTestClock(start)
	sessions := memory.NewSessionStorage(3, clock.Now)
	users := memory.NewUserStorage()
	denylist := memory.NewTokenStorage(clock.Now)
	notifier := &capturingNotifier{}

	tokens := NewTokenService(&util.TokenConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    refreshTTL,
	})
	hasher := NewPasswordHasher(bcrypt.MinCost)
	verifier := NewCredentialVerifier(users, hasher)

	svc := NewAuthService(
		tokens,
		verifier,
		hasher,
		memStorage{sessions, users},
		denylist,
		notifier,
		time.Hour,
		clock.Now,
		zap.NewNop().Sugar(),
	)

	return &authFixture{
		svc:      svc,
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		denylist: denylist,
		clock:    clock,
		notifier: notifier,
	}
}

func (f *authFixture) register(t *testing.T, email, password string) *models.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), email, password)
	require.NoError(t, err)
	return user
}

const thirtyDays = 30 * 24 * time.Hour

func TestLoginIssuesVerifiableTokenPair(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	user := f.register(t, "alice@example.com", "s3cret")

	pair, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	accessClaims, err := f.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, accessClaims.Subject)

	refreshClaims, err := f.tokens.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, refreshClaims.Subject)

	session, err := f.sessions.GetSessionByJTI(ctx, refreshClaims.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, session.UserID)
	require.False(t, session.IsRevoked)
	require.True(t, VerifyTokenHash(pair.RefreshToken, session.TokenHash))
}

func TestLoginFailureIsUniform(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	f.register(t, "alice@example.com", "s3cret")

	_, wrongPassword := f.svc.Login(ctx, "alice@example.com", "wrong")
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "whatever")

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	// Same failure kind either way; the caller cannot tell which happened.
	require.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestRefreshIssuesNewAccessTokenOnly(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	user := f.register(t, "alice@example.com", "s3cret")

	pair, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	refreshClaims, err := f.tokens.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	before, err := f.sessions.GetSessionByJTI(ctx, refreshClaims.ID)
	require.NoError(t, err)

	accessToken, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	claims, err := f.tokens.VerifyAccess(accessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)

	// No rotation: the session record is byte-for-byte what login created.
	after, err := f.sessions.GetSessionByJTI(ctx, refreshClaims.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRefreshAfterRevokeFails(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	f.register(t, "alice@example.com", "s3cret")

	pair, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, ""))

	// Signature and embedded expiry are still valid; the row says no.
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshWithTamperedTokenBodyFails(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	f.register(t, "alice@example.com", "s3cret")

	pair, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	claims, err := f.tokens.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)

	// A second token signed for the same jti with the right secret but a
	// different issue time: verifies, but its hash does not match the row.
	user, err := f.users.GetUserByID(ctx, claims.Subject)
	require.NoError(t, err)
	other, err := f.tokens.SignRefresh(user, claims.ID, f.clock.Now().Add(time.Minute))
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, other)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshMissingTokenIsBadRequest(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)

	_, err := f.svc.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	f.register(t, "alice@example.com", "s3cret")

	pair, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	claims, err := f.tokens.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, ""))
	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, ""))

	session, err := f.sessions.GetSessionByJTI(ctx, claims.ID)
	require.NoError(t, err)
	require.True(t, session.IsRevoked)
}

func TestLogoutWithExpiredRefreshTokenStillRevokes(t *testing.T) {
	// Session issued two hours ago with a one-hour TTL: the refresh token
	// is expired by wall clock, logout must still land.
	f := newAuthFixture(t, time.Now().Add(-2*time.Hour), time.Hour)
	ctx := context.Background()
	f.register(t, "alice@example.com", "s3cret")

	pair, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	_, err = f.tokens.VerifyRefresh(pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, ""))

	claims, err := f.tokens.RefreshClaimsIgnoringExpiry(pair.RefreshToken)
	require.NoError(t, err)
	session, err := f.sessions.GetSessionByJTI(ctx, claims.ID)
	require.NoError(t, err)
	require.True(t, session.IsRevoked)
}

func TestLogoutMalformedTokenIsBadRequest(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()

	require.ErrorIs(t, f.svc.Logout(ctx, "not-a-token", ""), ErrBadRequest)
	require.ErrorIs(t, f.svc.Logout(ctx, "", ""), ErrBadRequest)
}

func TestLogoutDenylistsAccessToken(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	f.register(t, "alice@example.com", "s3cret")

	pair, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	_, err = f.svc.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken, pair.AccessToken))

	_, err = f.svc.ValidateAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestFourthLoginEvictsOldestSession(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	f.register(t, "alice@example.com", "s3cret")

	var jtis []string
	var refreshTokens []string
	for i := 0; i < 4; i++ {
		pair, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
		require.NoError(t, err)
		claims, err := f.tokens.VerifyRefresh(pair.RefreshToken)
		require.NoError(t, err)
		jtis = append(jtis, claims.ID)
		refreshTokens = append(refreshTokens, pair.RefreshToken)
		f.clock.Advance(time.Minute)
	}

	// S1 is hard-deleted, not revoked: its record is simply gone.
	_, err := f.sessions.GetSessionByJTI(ctx, jtis[0])
	require.ErrorIs(t, err, storage.ErrSessionNotFound)
	_, err = f.svc.Refresh(ctx, refreshTokens[0])
	require.ErrorIs(t, err, ErrTokenInvalid)

	// S2, S3, S4 stay active and usable.
	for _, i := range []int{1, 2, 3} {
		session, err := f.sessions.GetSessionByJTI(ctx, jtis[i])
		require.NoError(t, err)
		require.True(t, session.Active(f.clock.Now()))

		_, err = f.svc.Refresh(ctx, refreshTokens[i])
		require.NoError(t, err)
	}
}

func TestRevokeAllRevokesEverySession(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	user := f.register(t, "alice@example.com", "s3cret")

	first, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)

	require.NoError(t, f.svc.RevokeAll(ctx, user.ID))

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	f.register(t, "alice@example.com", "old-password")

	pair, err := f.svc.Login(ctx, "alice@example.com", "old-password")
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com"))
	email, token := f.notifier.last()
	require.Equal(t, "alice@example.com", email)
	require.NotEmpty(t, token)

	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, token, "new-password"))

	// Old password dead, new one works, every prior session revoked.
	_, err = f.svc.Login(ctx, "alice@example.com", "old-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@example.com", "new-password")
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenInvalid)

	// The credential is single-use.
	err = f.svc.ConfirmPasswordReset(ctx, token, "another-password")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
	_, token := f.notifier.last()
	require.Empty(t, token)
}

func TestConfirmPasswordResetUnknownToken(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)

	err := f.svc.ConfirmPasswordReset(context.Background(), "bogus-token", "password")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, time.Now(), thirtyDays)
	ctx := context.Background()
	f.register(t, "alice@example.com", "s3cret")

	_, err := f.svc.Register(ctx, "alice@example.com", "other")
	require.ErrorIs(t, err, storage.ErrEmailTaken)
}
