package repositories

import (
	"context"

	"omnicast/internal/core/ports"
	"omnicast/internal/infrastructure/repositories/memory"
	redisrepo "omnicast/internal/infrastructure/repositories/redis"
	"omnicast/pkg/config"

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

// CreateDestinationRepository creates a destination repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateDestinationRepository() ports.DestinationRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisDestinationRepository(f.redisClient)
	}
	return memory.NewMemoryDestinationRepository()
}

// CreateUsageRepository creates a cloud-hours usage ledger (Redis or memory with fallback)
func (f *RepositoryFactory) CreateUsageRepository() ports.UsageRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisUsageRepository(f.redisClient)
	}
	return memory.NewMemoryUsageRepository()
}

// RedisClient exposes the shared client for components that publish events.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
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
