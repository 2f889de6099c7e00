package settings_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uplinkd/uplink/internal/settings"
)

// redisClient connects to the Redis named by TEST_REDIS_ADDR or skips.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisProvider(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()

	// Unique prefix so parallel runs do not collide.
	provider := settings.NewRedisProvider(settings.RedisProviderConfig{
		Client:    client,
		KeyPrefix: "uplink-test:" + uuid.New().String() + ":",
	})

	_, err := provider.Get(ctx, settings.KeyDisconnectScreenEnabled)
	require.ErrorIs(t, err, settings.ErrNotFound)

	require.NoError(t, provider.Set(ctx, settings.KeyDisconnectScreenEnabled, "false",
		map[string]string{"category": "features"},
	))

	value, err := provider.Get(ctx, settings.KeyDisconnectScreenEnabled)
	require.NoError(t, err)
	assert.Equal(t, "false", value)

	require.NoError(t, provider.Set(ctx, settings.KeyDisconnectScreenEnabled, "true", nil))

	value, err = provider.Get(ctx, settings.KeyDisconnectScreenEnabled)
	require.NoError(t, err)
	assert.Equal(t, "true", value)
}
