package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkazakov/sessiond/internal/models"
	"github.com/mkazakov/sessiond/internal/util"
)

var (
	// ErrTokenInvalid covers malformed, unsigned, expired, revoked and
	// hash-mismatched tokens alike. Callers must not branch on which one it
	// was; the collapsed kind is what leaves the codec.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenMalformed means the input is not a structurally usable signed
	// token at all (logout path only).
	ErrTokenMalformed       = errors.New("token is malformed")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
)

type AccessClaims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies the two token types. Access and refresh
// tokens use independent secrets, so one leaking does not compromise the
// other.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenService(cfg *util.TokenConfig) *TokenService {
	return &TokenService{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

func (ts *TokenService) AccessTTL() time.Duration  { return ts.accessTTL }
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }

// SignAccess создает SHA512 signed access токен
func (ts *TokenService) SignAccess(user *models.User, now time.Time) (string, error) {
	claims := &AccessClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signedToken, nil
}

// SignRefresh создает SHA512 signed refresh токен с JTI
func (ts *TokenService) SignRefresh(user *models.User, jti string, now time.Time) (string, error) {
	claims := &RefreshClaims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}

	return signedToken, nil
}

func (ts *TokenService) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.parse(token, claims, ts.accessSecret); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (ts *TokenService) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.parse(token, claims, ts.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// RefreshClaimsIgnoringExpiry verifies the refresh token's signature but not
// its expiry. Logout of an expired session must still be able to revoke the
// record; forged or structurally broken input still fails.
func (ts *TokenService) RefreshClaimsIgnoringExpiry(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	parsedToken, err := jwt.ParseWithClaims(
		token,
		claims,
		ts.keyFunc(ts.refreshSecret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (ts *TokenService) parse(token string, claims jwt.Claims, secret []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(util.JWTLeeWay),
		jwt.WithExpirationRequired(),
	}

	parsedToken, err := jwt.ParseWithClaims(token, claims, ts.keyFunc(secret), opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return ErrTokenInvalid
	}
	return nil
}

func (ts *TokenService) keyFunc(secret []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
			return nil, ErrInvalidSigningMethod
		}
		return secret, nil
	}
}

// HashToken returns the hex SHA-256 of a raw signed token. The raw refresh
// token is never persisted, only this hash.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyTokenHash compares a raw token against a stored hash in constant
// time, defending a known jti against a forged token body.
func VerifyTokenHash(raw, storedHash string) bool {
	stored, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}
	sum := sha256.Sum256([]byte(raw))
	return subtle.ConstantTimeCompare(sum[:], stored) == 1
}
