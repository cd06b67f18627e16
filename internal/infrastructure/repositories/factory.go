package repositories

import (
	"context"

	"carelink/internal/core/ports"
	"carelink/internal/infrastructure/repositories/memory"
	redisrepo "carelink/internal/infrastructure/repositories/redis"
	"carelink/pkg/circuitbreaker"
	"carelink/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateUserRepository creates the user directory (Redis or memory with fallback)
func (f *RepositoryFactory) CreateUserRepository() ports.UserRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisUserRepository(f.redisClient)
	}
	return memory.NewMemoryUserRepository()
}

// CreateRelationshipRepository creates the care assignment directory
// (Redis or memory with fallback). The Redis variant sits behind a
// circuit breaker because assignment lookups gate every relayed message.
func (f *RepositoryFactory) CreateRelationshipRepository() ports.RelationshipRepository {
	if f.useRedis && f.redisClient != nil {
		inner := redisrepo.NewRedisRelationshipRepository(f.redisClient)
		return NewGuardedRelationshipRepository(inner, circuitbreaker.New(circuitbreaker.DefaultConfig()))
	}
	return memory.NewMemoryRelationshipRepository()
}

// CreateTokenCache creates the rtc token cache. Caching across processes
// needs Redis; without it tokens are cached per-process.
func (f *RepositoryFactory) CreateTokenCache() ports.TokenCache {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisTokenCache(f.redisClient)
	}
	return memory.NewMemoryTokenCache()
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
