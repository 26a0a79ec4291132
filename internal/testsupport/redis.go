package testsupport

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"airquality/internal/adapters/config"
	redisadapter "airquality/internal/adapters/redis"
)

// NewRedisClient connects to Redis and flushes the database before and after the test
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *redis.Client {
	t.Helper()

	ctx := context.Background()
	wrapped, err := redisadapter.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	client := wrapped.Client()

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = wrapped.Close()
	})

	return client
}
