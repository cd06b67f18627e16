package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisUserRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisUserRepository(client *redis.Client) ports.UserRepository {
	return &RedisUserRepository{
		client: client,
		prefix: "carelink:user:",
	}
}

func (r *RedisUserRepository) userKey(id domain.UserID) string {
	return r.prefix + strconv.FormatInt(int64(id), 10)
}

func (r *RedisUserRepository) usernameKey(username string) string {
	return r.prefix + "name:" + username
}

func (r *RedisUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	data, err := r.client.Get(ctx, r.userKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &user, nil
}

func (r *RedisUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	raw, err := r.client.Get(ctx, r.usernameKey(username)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username in Redis: %w", err)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt username index entry %q: %w", raw, err)
	}

	return r.GetByID(ctx, domain.UserID(id))
}

func (r *RedisUserRepository) Save(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.userKey(user.ID), data, 0)
	pipe.Set(ctx, r.usernameKey(user.Username), int64(user.ID), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save user in Redis: %w", err)
	}

	return nil
}
