package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkazakov/sessiond/internal/storage"
)

const (
	denylistKeyPrefix = "denylist:"
	resetKeyPrefix    = "reset:"
)

type TokenStorage struct {
	client *redis.Client
}

func NewTokenStorage(client *redis.Client) *TokenStorage {
	return &TokenStorage{client: client}
}

// InvalidateToken puts an access token on the denylist for the remainder of
// its lifetime. Expired entries fall out of Redis on their own.
func (s *TokenStorage) InvalidateToken(ctx context.Context, token string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	return s.client.Set(ctx, denylistKeyPrefix+token, "invalidated", expiration).Err()
}

func (s *TokenStorage) IsTokenInvalidated(ctx context.Context, token string) (bool, error) {
	result, err := s.client.Get(ctx, denylistKeyPrefix+token).Result()
	if err == redis.Nil {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return result == "invalidated", nil
}

func (s *TokenStorage) StoreResetToken(ctx context.Context, tokenHash, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, resetKeyPrefix+tokenHash, userID, ttl).Err(); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken atomically fetches and deletes the reset credential so
// it can be redeemed only once.
func (s *TokenStorage) ConsumeResetToken(ctx context.Context, tokenHash string) (string, error) {
	userID, err := s.client.GetDel(ctx, resetKeyPrefix+tokenHash).Result()
	if err == redis.Nil {
		return "", storage.ErrResetTokenNotFound
	} else if err != nil {
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	return userID, nil
}
