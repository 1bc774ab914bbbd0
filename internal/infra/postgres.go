package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "walletcore"

// PoolConfig builds pool settings for the wallet store. Units of work hold a
// wallet row lock until commit, so the pool bound comes from PG_MAX_CONNS and
// lock waits are cut off server-side by lock_timeout.
func PoolConfig(cfg *Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.PGMaxConns)
	poolCfg.MinConns = int32(cfg.PGMinConns)
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 10 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	params := poolCfg.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	if cfg.PGLockTimeout > 0 {
		params["lock_timeout"] = strconv.FormatInt(cfg.PGLockTimeout.Milliseconds(), 10)
	}
	return poolCfg, nil
}

// NewPostgresPool opens the pool described by PoolConfig and pings it.
func NewPostgresPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PoolHealth pings the database. A failure reports how many connections were
// checked out, which is the first thing to look at when wallet locks pile up.
func PoolHealth(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		st := pool.Stat()
		return fmt.Errorf("ping postgres (%d/%d connections in use): %w", st.AcquiredConns(), st.MaxConns(), err)
	}
	return nil
}
