package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/mkazakov/sessiond/internal/models"
	"github.com/mkazakov/sessiond/internal/storage"
)

// ErrInvalidCredentials is returned for both unknown email and wrong
// password. The two cases must stay indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// bcrypt hash of an unused random string, burned on lookups that find no
// user so the failure latency matches a real password comparison.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *PasswordHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// CredentialVerifier checks a presented email/password pair against the
// stored hash.
type CredentialVerifier struct {
	users  storage.UserRepository
	hasher *PasswordHasher
}

func NewCredentialVerifier(users storage.UserRepository, hasher *PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{users: users, hasher: hasher}
}

// Verify returns the user on success and ErrInvalidCredentials otherwise.
// A missing user still pays for one bcrypt comparison.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := v.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			_ = v.hasher.Compare(dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := v.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
