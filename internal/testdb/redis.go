package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// GetTestRedisWithT connects to REDIS_URL and returns the client with a key
// prefix unique to this test. Keys under the prefix are deleted on cleanup.
// The test is skipped when REDIS_URL is not set.
func GetTestRedisWithT(t *testing.T) (*redis.Client, string) {
	t.Helper()

	if ShouldSkipRedisTest() {
		t.Skip(EnvRedisURL + " not set - skipping integration test")
	}

	opt, err := redis.ParseURL(RedisURL())
	require.NoError(t, err, "invalid "+EnvRedisURL)

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err(), "failed to ping test redis")

	prefix := "docqueue-test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		_ = client.Close()
	})

	return client, prefix
}
