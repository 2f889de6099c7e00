package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "settings:"

// RedisProvider stores settings as plain string keys in Redis.
type RedisProvider struct {
	client    *redis.Client
	keyPrefix string
}

// RedisProviderConfig contains configuration for RedisProvider.
type RedisProviderConfig struct {
	Client    *redis.Client
	KeyPrefix string
}

// NewRedisProvider creates a new Redis-based settings provider.
func NewRedisProvider(cfg RedisProviderConfig) *RedisProvider {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisProvider{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
	}
}

// settingKey generates the Redis key for a setting.
func (p *RedisProvider) settingKey(key string) string {
	return p.keyPrefix + key
}

// metadataKey generates the Redis key for a setting's metadata hash.
func (p *RedisProvider) metadataKey(key string) string {
	return p.keyPrefix + "meta:" + key
}

// Get returns the stored value for key, or ErrNotFound.
func (p *RedisProvider) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("key is required")
	}

	value, err := p.client.Get(ctx, p.settingKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}

	return value, nil
}

// Set stores value under key. Metadata, when present, is kept in a
// companion hash so callers can inspect provenance.
func (p *RedisProvider) Set(ctx context.Context, key, value string, metadata map[string]string) error {
	if key == "" {
		return errors.New("key is required")
	}

	if err := p.client.Set(ctx, p.settingKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to store setting: %w", err)
	}

	if len(metadata) > 0 {
		fields := make(map[string]any, len(metadata))
		for k, v := range metadata {
			fields[k] = v
		}
		if err := p.client.HSet(ctx, p.metadataKey(key), fields).Err(); err != nil {
			return fmt.Errorf("failed to store setting metadata: %w", err)
		}
	}

	return nil
}

var _ Provider = (*RedisProvider)(nil)
