package repositories

import (
	"context"
	"database/sql"
	"errors"

	"borerelay/internal/core/ports"
	"borerelay/internal/infrastructure/repositories/memory"
	"borerelay/internal/infrastructure/repositories/postgres"
	redisrepo "borerelay/internal/infrastructure/repositories/redis"
	"borerelay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory opens the configured store and hands out the player,
// ban and mute repositories backed by it. When the configured backend cannot
// be reached it falls back to the in-memory store.
type RepositoryFactory struct {
	driver      string
	redisClient *redis.Client
	db          *sql.DB
	logger      *zap.SugaredLogger

	players ports.PlayerRepository
	bans    ports.BanRepository
	mutes   ports.MuteRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		driver: cfg.Storage.Driver,
		logger: logger,
	}

	switch cfg.Storage.Driver {
	case config.StorageRedis:
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.ClientConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			break
		}
		factory.redisClient = client
		factory.players = redisrepo.NewRedisPlayerRepository(client)
		factory.bans = redisrepo.NewRedisBanRepository(client)
		factory.mutes = redisrepo.NewRedisMuteRepository(client)
		logger.Info("using Redis repositories")
	case config.StoragePostgres:
		db, err := postgres.Open(ctx, cfg.Storage.PostgresDSN, logger)
		if err != nil {
			logger.Warnw("failed to connect to PostgreSQL, falling back to memory repositories",
				"error", err,
			)
			break
		}
		factory.db = db
		factory.players = postgres.NewPostgresPlayerRepository(db)
		factory.bans = postgres.NewPostgresBanRepository(db)
		factory.mutes = postgres.NewPostgresMuteRepository(db)
		logger.Info("using PostgreSQL repositories")
	}

	if factory.players == nil {
		factory.driver = config.StorageMemory
		factory.players = memory.NewMemoryPlayerRepository()
		factory.bans = memory.NewMemoryBanRepository()
		factory.mutes = memory.NewMemoryMuteRepository()
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// Driver reports the backend actually in use, after any fallback.
func (f *RepositoryFactory) Driver() string { return f.driver }

func (f *RepositoryFactory) Players() ports.PlayerRepository { return f.players }
func (f *RepositoryFactory) Bans() ports.BanRepository       { return f.bans }
func (f *RepositoryFactory) Mutes() ports.MuteRepository     { return f.mutes }

// RedisClient returns the shared client, or nil when Redis is not the store.
func (f *RepositoryFactory) RedisClient() *redis.Client { return f.redisClient }

// Close releases the backing connection pool, if any.
func (f *RepositoryFactory) Close() error {
	var errs []error
	if f.redisClient != nil {
		errs = append(errs, redisrepo.CloseRedisClient(f.redisClient))
	}
	if f.db != nil {
		errs = append(errs, f.db.Close())
	}
	return errors.Join(errs...)
}

// HealthCheck pings the backing store; the memory store is always healthy.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	switch {
	case f.redisClient != nil:
		return f.redisClient.Ping(ctx).Err()
	case f.db != nil:
		return f.db.PingContext(ctx)
	}
	return nil
}

var _ ports.HealthChecker = (*RepositoryFactory)(nil)
