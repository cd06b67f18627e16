package redis

import (
	"context"
	"fmt"
	"time"

	"carelink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisTokenCache shares minted media-relay tokens across instances. Keys
// expire with the token itself, so a cache hit is always still valid.
type RedisTokenCache struct {
	client *redis.Client
	prefix string
}

func NewRedisTokenCache(client *redis.Client) ports.TokenCache {
	return &RedisTokenCache{
		client: client,
		prefix: "carelink:",
	}
}

func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, time.Time, bool, error) {
	pipe := c.client.Pipeline()
	getCmd := pipe.Get(ctx, c.prefix+key)
	ttlCmd := pipe.PTTL(ctx, c.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return "", time.Time{}, false, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	token, err := getCmd.Result()
	if err == redis.Nil {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	// The key TTL tracks the token's remaining life, so expiry is now + TTL.
	ttl, err := ttlCmd.Result()
	if err != nil || ttl <= 0 {
		return "", time.Time{}, false, nil
	}

	return token, time.Now().Add(ttl), true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, key, token string, ttlSeconds int) error {
	ttl := time.Duration(ttlSeconds) * time.Second
	if err := c.client.Set(ctx, c.prefix+key, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token in Redis: %w", err)
	}
	return nil
}
