package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/attaboy/walletcore/internal/handler"
	"github.com/attaboy/walletcore/internal/infra"
	"github.com/attaboy/walletcore/internal/projection"
	"github.com/attaboy/walletcore/internal/repository"
)

// Runtime is the opened infrastructure a process runs on.
type Runtime struct {
	Store  repository.Store
	Outbox repository.OutboxRepository
	Cache  projection.Store
	Pool   *pgxpool.Pool
	Redis  *redis.Client
}

// Open connects the configured store and cache. With STORE_DRIVER=postgres it
// also runs migrations when migrate is set. An unreachable Redis degrades to
// an in-process cache.
func Open(ctx context.Context, cfg *infra.Config, migrate bool, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}

	switch cfg.StoreDriver {
	case "memory":
		mem := repository.NewMemoryStore()
		rt.Store, rt.Outbox = mem, mem.Outbox()
		logger.Warn("using in-memory store; data is lost on exit")
	default:
		if migrate {
			if err := infra.RunMigrations(cfg.DSN(), cfg.MigrationsDir, logger); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg := repository.NewPgStore(pool)
		rt.Pool, rt.Store, rt.Outbox = pool, pg, pg.Outbox()
		logger.Info("connected to postgres")
	}

	client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, using in-process cache", "error", err)
		rt.Cache = projection.NewInMemoryStore()
	} else {
		rt.Redis = client
		rt.Cache = projection.NewRedisStore(client, "walletcore:")
		logger.Info("connected to redis")
	}
	return rt, nil
}

// HealthChecks probes whatever Open connected.
func (rt *Runtime) HealthChecks() []handler.HealthCheck {
	var checks []handler.HealthCheck
	if rt.Pool != nil {
		checks = append(checks, handler.HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
			return infra.PoolHealth(ctx, rt.Pool)
		}})
	}
	if rt.Redis != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		}})
	}
	return checks
}

// Close releases connections.
func (rt *Runtime) Close() {
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	if rt.Pool != nil {
		rt.Pool.Close()
	}
}
