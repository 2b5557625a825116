package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/snake-arena/internal/auth"
	"github.com/snake-arena/internal/config"
	"github.com/snake-arena/internal/ledger"
	"github.com/snake-arena/internal/memory"
	"github.com/snake-arena/internal/postgres"
	"github.com/snake-arena/internal/redis"
)

// stores bundles the persistence chosen by storage.backend
type stores struct {
	ledger   ledger.Store
	users    auth.UserStore
	sessions auth.SessionStore
	ping     func(ctx context.Context) error
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		if err := repo.RunMigrations(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return &stores{
			ledger:   postgres.NewScoreLedger(repo, cfg.Storage.LockTimeout, logger),
			users:    postgres.NewUserRepository(repo),
			sessions: memory.NewSessionStore(),
			ping:     repo.Ping,
			close:    repo.Close,
		}, nil

	case config.BackendRedis:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("opening redis: %w", err)
		}
		locker := redis.NewLocker(client, cfg.Redis.LockTTL, cfg.Storage.LockTimeout)
		return &stores{
			ledger:   redis.NewScoreLedger(client, cfg.Redis.KeyPrefix, locker, logger),
			users:    memory.NewUserStore(),
			sessions: redis.NewSessionStore(client, cfg.Redis.KeyPrefix),
			ping: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			close: func() {
				_ = client.Close()
			},
		}, nil

	default:
		scores := memory.NewScoreLedger()
		scores.SetLockTimeout(cfg.Storage.LockTimeout)
		return &stores{
			ledger:   scores,
			users:    memory.NewUserStore(),
			sessions: memory.NewSessionStore(),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}
}
