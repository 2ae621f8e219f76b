package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const refreshKeyPrefix = "refresh:"

// RefreshStore keeps hashed refresh tokens.
type RefreshStore interface {
	Save(ctx context.Context, hash string, userID uuid.UUID, ttl time.Duration) error
	// Take returns the owner of hash and removes it, so a token is single use.
	Take(ctx context.Context, hash string) (uuid.UUID, error)
	Delete(ctx context.Context, hash string) error
}

// RedisRefreshStore stores refresh:<hash> -> user id with a TTL.
// A nil client disables refresh tokens.
type RedisRefreshStore struct {
	redis *redis.Client
}

// NewRedisRefreshStore creates the store.
func NewRedisRefreshStore(client *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{redis: client}
}

func (s *RedisRefreshStore) Save(ctx context.Context, hash string, userID uuid.UUID, ttl time.Duration) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Set(ctx, refreshKeyPrefix+hash, userID.String(), ttl).Err()
}

func (s *RedisRefreshStore) Take(ctx context.Context, hash string) (uuid.UUID, error) {
	if s.redis == nil {
		return uuid.Nil, ErrRefreshUnavailable
	}
	val, err := s.redis.GetDel(ctx, refreshKeyPrefix+hash).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	return id, nil
}

func (s *RedisRefreshStore) Delete(ctx context.Context, hash string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, refreshKeyPrefix+hash).Err()
}
