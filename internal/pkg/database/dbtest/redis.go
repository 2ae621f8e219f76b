package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// EnvRedisURL names the variable holding the test Redis URL.
const EnvRedisURL = "TEST_REDIS_URL"

// OpenRedis connects to the test Redis. The test is skipped when no Redis is
// configured.
func OpenRedis(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv(EnvRedisURL)
	if url == "" {
		t.Skipf("%s not set", EnvRedisURL)
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvRedisURL, err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
