package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkazakov/sessiond/internal/models"
	"github.com/mkazakov/sessiond/internal/storage"
)

// ErrBadRequest means the input is structurally unusable (e.g. no refresh
// token supplied where one is required).
var ErrBadRequest = errors.New("bad request")

// Clock is injected so session lifetimes are deterministic under test.
type Clock func() time.Time

// ResetNotification delivers a freshly issued password-reset credential to
// whatever sends it out. Implementations must not block the caller.
type ResetNotification interface {
	NotifyPasswordReset(ctx context.Context, email, token string)
}

const resetTokenBytes = 32

// AuthService orchestrates the session lifecycle: login issues a token
// pair and a session record, refresh re-issues access tokens against that
// record, logout revokes it. It never retries; storage failures surface to
// the caller and the request fails closed.
type AuthService struct {
	tokens       *TokenService
	verifier     *CredentialVerifier
	hasher       *PasswordHasher
	storage      storage.Storage
	tokenStorage storage.TokenStorage
	notifier     ResetNotification
	resetTTL     time.Duration
	now          Clock
	log          *zap.SugaredLogger
}

func NewAuthService(
	tokens *TokenService,
	verifier *CredentialVerifier,
	hasher *PasswordHasher,
	store storage.Storage,
	tokenStorage storage.TokenStorage,
	notifier ResetNotification,
	resetTTL time.Duration,
	now Clock,
	log *zap.SugaredLogger,
) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		tokens:       tokens,
		verifier:     verifier,
		hasher:       hasher,
		storage:      store,
		tokenStorage: tokenStorage,
		notifier:     notifier,
		resetTTL:     resetTTL,
		now:          now,
		log:          log,
	}
}

// Register creates a user with a bcrypt-hashed password. Duplicate emails
// surface as storage.ErrEmailTaken.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return s.storage.CreateUser(ctx, email, passwordHash, models.RoleUser)
}

// Login verifies credentials and issues a fresh access/refresh pair. The
// session record stores only the hash of the signed refresh token; creating
// it may silently evict the user's earliest-expiring session at the cap.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.TokenPairResponse, error) {
	user, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	jti := uuid.NewString()

	refreshToken, err := s.tokens.SignRefresh(user, jti, now)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.tokens.SignAccess(user, now)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.tokens.RefreshTTL())
	if _, err := s.storage.CreateSession(ctx, user.ID, jti, HashToken(refreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &models.TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; its session record stays as issued.
// Every failure mode collapses into ErrTokenInvalid.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (string, error) {
	if rawRefreshToken == "" {
		return "", ErrBadRequest
	}

	claims, err := s.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		return "", err
	}

	session, err := s.storage.GetSessionByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("find session: %w", err)
	}

	now := s.now().UTC()
	// The signed token carries its own expiry, but the row is the authority
	// for revocation state, which the token cannot carry after the fact.
	if !session.Active(now) {
		return "", ErrTokenInvalid
	}
	if !VerifyTokenHash(rawRefreshToken, session.TokenHash) {
		return "", ErrTokenInvalid
	}

	user, err := s.storage.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", ErrTokenInvalid
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	accessToken, err := s.tokens.SignAccess(user, now)
	if err != nil {
		return "", err
	}
	return accessToken, nil
}

// Logout revokes one session. An expired refresh token still revokes its
// record; malformed or forged input fails with ErrBadRequest. Revoking a
// session that is gone or already revoked succeeds silently. When the
// caller's access token is supplied it goes on the denylist for the
// remainder of its lifetime.
func (s *AuthService) Logout(ctx context.Context, rawRefreshToken, accessToken string) error {
	if rawRefreshToken == "" {
		return ErrBadRequest
	}

	claims, err := s.tokens.RefreshClaimsIgnoringExpiry(rawRefreshToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	if err := s.storage.RevokeSession(ctx, claims.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if accessToken != "" {
		s.invalidateAccessToken(ctx, accessToken)
	}
	return nil
}

// RevokeAll revokes every session the user owns, regardless of state.
func (s *AuthService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.storage.RevokeAllUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

// ValidateAccess checks the denylist before the signature, so a token
// invalidated at logout is rejected even while its signature holds.
func (s *AuthService) ValidateAccess(ctx context.Context, token string) (*AccessClaims, error) {
	invalidated, err := s.tokenStorage.IsTokenInvalidated(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("check denylist: %w", err)
	}
	if invalidated {
		return nil, ErrTokenInvalid
	}
	return s.tokens.VerifyAccess(token)
}

// RequestPasswordReset issues an opaque single-use reset credential for the
// account. An unknown email is reported as success so the endpoint cannot
// be used to probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("read random bytes: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.tokenStorage.StoreResetToken(ctx, HashToken(token), user.ID, s.resetTTL); err != nil {
		return err
	}

	s.notifier.NotifyPasswordReset(ctx, user.Email, token)
	return nil
}

// ConfirmPasswordReset redeems the credential, replaces the password hash
// and revokes every session of the user in one pass.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrBadRequest
	}

	userID, err := s.tokenStorage.ConsumeResetToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrResetTokenNotFound) {
			return ErrTokenInvalid
		}
		return err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.storage.UpdateUserPassword(ctx, userID, passwordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return s.RevokeAll(ctx, userID)
}

func (s *AuthService) invalidateAccessToken(ctx context.Context, accessToken string) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		// Nothing to deny: the token is already unusable.
		return
	}
	remaining := claims.ExpiresAt.Sub(s.now().UTC())
	if err := s.tokenStorage.InvalidateToken(ctx, accessToken, remaining); err != nil {
		s.log.Errorw("failed to denylist access token", "error", err)
	}
}
