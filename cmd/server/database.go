package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/docqueue/internal/config"
	"github.com/phrazzld/docqueue/internal/platform/memory"
	"github.com/phrazzld/docqueue/internal/platform/postgres"
	"github.com/phrazzld/docqueue/internal/platform/redis"
	"github.com/phrazzld/docqueue/internal/queue"
)

// backend is an open task store and the function that releases it.
type backend struct {
	db    queue.Database
	close func()
}

// openBackend connects to the store selected by cfg.Database.Driver.
// Postgres migrations run first when MigrateOnStart is set.
func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, postgres.PoolConfig{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, pool, log.With("component", "migrations")); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.Info("postgres task store ready")
		return &backend{db: postgres.NewDatabase(pool), close: pool.Close}, nil

	case config.DriverRedis:
		client, err := redis.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		log.Info("redis task store ready", "prefix", redis.DefaultPrefix)
		return &backend{
			db: redis.NewDatabase(client, redis.DefaultPrefix),
			close: func() {
				if err := client.Close(); err != nil {
					log.Error("failed to close redis client", "error", err)
				}
			},
		}, nil

	case config.DriverMemory:
		log.Warn("using the in-memory task store; tasks are lost on exit")
		return &backend{db: memory.NewDatabase(), close: func() {}}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// migrateOnly applies the postgres migrations and returns.
func migrateOnly(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations only apply to the %s driver, configured driver is %s",
			config.DriverPostgres, cfg.Database.Driver)
	}

	pool, err := postgres.Open(ctx, postgres.PoolConfig{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	return postgres.Migrate(ctx, pool, log.With("component", "migrations"))
}
