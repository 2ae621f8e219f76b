package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const linkMarkerTTL = 10 * time.Minute

// LinkStore remembers which signed-in user started a Discord link, keyed by
// the OAuth state.
type LinkStore interface {
	Save(ctx context.Context, state string, userID uuid.UUID) error
	// Take returns uuid.Nil when no link was started for state.
	Take(ctx context.Context, state string) (uuid.UUID, error)
}

// RedisLinkStore keeps link markers in Redis.
type RedisLinkStore struct {
	client *redis.Client // nil disables linking
}

// NewRedisLinkStore creates link store
func NewRedisLinkStore(client *redis.Client) *RedisLinkStore {
	return &RedisLinkStore{client: client}
}

func linkKey(state string) string {
	return "oauth:link:" + state
}

func (s *RedisLinkStore) Save(ctx context.Context, state string, userID uuid.UUID) error {
	if s.client == nil {
		return ErrLinkUnavailable
	}
	return s.client.Set(ctx, linkKey(state), userID.String(), linkMarkerTTL).Err()
}

func (s *RedisLinkStore) Take(ctx context.Context, state string) (uuid.UUID, error) {
	if s.client == nil {
		return uuid.Nil, nil
	}
	val, err := s.client.GetDel(ctx, linkKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, nil
	}
	return id, nil
}
