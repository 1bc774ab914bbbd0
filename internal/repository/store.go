package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/attaboy/walletcore/internal/domain"
)

// PgStore runs units of work as PostgreSQL transactions.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps a pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// BindRepos returns every repository bound to db.
func BindRepos(db DBTX) Repos {
	return Repos{
		Wallets:      NewWalletRepository(db),
		Transactions: NewTransactionRepository(db),
		Requests:     NewPaymentRequestRepository(db),
		Bonuses:      NewBonusRepository(db),
		Users:        NewUserDirectory(db),
		Outbox:       NewOutboxRepository(db),
	}
}

// InTx runs fn inside one READ COMMITTED transaction. Row locks taken with
// FOR UPDATE are held until fn returns. A lock wait cut short by the
// server's lock_timeout comes back as a Conflict the caller may retry.
func (s *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, BindRepos(tx))
	})
	return unitOfWorkError(err)
}

func unitOfWorkError(err error) error {
	switch {
	case err == nil:
		return nil
	case isLockTimeout(err):
		return domain.ErrConflict("wallet is busy with another operation, retry shortly")
	default:
		return fmt.Errorf("unit of work: %w", err)
	}
}

// Repos returns pool-bound repositories for committed reads.
func (s *PgStore) Repos() Repos {
	return BindRepos(s.pool)
}

// Outbox exposes the outbox table to the poller.
func (s *PgStore) Outbox() OutboxRepository {
	return NewOutboxRepository(s.pool)
}
