package redis

import (
	"context"
	"fmt"
	"strconv"

	"carelink/internal/core/domain"
	"carelink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisRelationshipRepository stores care assignments as one Redis set per
// user holding the ids of everyone assigned to them. Both directions are
// written together so Exists is a single SIsMember from either side.
type RedisRelationshipRepository struct {
	client *redis.Client
}

func NewRedisRelationshipRepository(client *redis.Client) ports.RelationshipRepository {
	return &RedisRelationshipRepository{client: client}
}

func (r *RedisRelationshipRepository) assignmentsKey(userID domain.UserID) string {
	return fmt.Sprintf("carelink:assignments:%d", userID)
}

func (r *RedisRelationshipRepository) Exists(ctx context.Context, a, b domain.UserID) (bool, error) {
	exists, err := r.client.SIsMember(ctx, r.assignmentsKey(a), int64(b)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check assignment in Redis: %w", err)
	}
	return exists, nil
}

func (r *RedisRelationshipRepository) RelatedIDs(ctx context.Context, userID domain.UserID) ([]domain.UserID, error) {
	members, err := r.client.SMembers(ctx, r.assignmentsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments from Redis: %w", err)
	}

	related := make([]domain.UserID, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt assignment entry %q: %w", member, err)
		}
		related = append(related, domain.UserID(id))
	}
	return related, nil
}

func (r *RedisRelationshipRepository) Assign(ctx context.Context, a, b domain.UserID) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.assignmentsKey(a), int64(b))
	pipe.SAdd(ctx, r.assignmentsKey(b), int64(a))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add assignment in Redis: %w", err)
	}
	return nil
}

func (r *RedisRelationshipRepository) Unassign(ctx context.Context, a, b domain.UserID) error {
	pipe := r.client.TxPipeline()
	pipe.SRem(ctx, r.assignmentsKey(a), int64(b))
	pipe.SRem(ctx, r.assignmentsKey(b), int64(a))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove assignment in Redis: %w", err)
	}
	return nil
}
