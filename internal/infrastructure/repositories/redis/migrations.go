package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	migrationLockKey     = keyPrefix + "lock:migrate"
	currentSchemaVersion = 2
)

type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs all pending migrations while holding the migration lock, so
// replicas starting together apply each version once.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) (err error) {
	lock := NewLock(client, migrationLockKey, 30*time.Second)
	if err := lock.Acquire(ctx, time.Minute); err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}()

	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("Redis schema is up to date", "version", currentVersion)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("Running Redis migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("Redis migrations completed", "version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// id sequences start at zero so the first INCR yields 1
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				for _, key := range []string{playerSeqKey, banSeqKey, muteSeqKey} {
					if err := client.SetNX(ctx, key, 0, 0).Err(); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			// rebuild the lowercase name index from stored players
			Version: 2,
			Up: func(ctx context.Context, client *redis.Client) error {
				ids, err := client.ZRange(ctx, playersKey, 0, -1).Result()
				if err != nil {
					return err
				}
				repo := &RedisPlayerRepository{client: client}
				for _, raw := range ids {
					players, err := repo.load(ctx, []string{raw})
					if err != nil {
						return err
					}
					for _, p := range players {
						if err := client.HSet(ctx, playerNamesKey, lowerName(p.Name), p.ID).Err(); err != nil {
							return err
						}
					}
				}
				return nil
			},
		},
	}
}
