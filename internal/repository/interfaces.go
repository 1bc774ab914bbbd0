package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrPendingDuplicate is returned by PaymentRequestRepository.Create when another
// pending request already holds the (external tx id, method) pair.
var ErrPendingDuplicate = errors.New("pending request with same external transaction id exists")

// WalletRepository provides access to wallets. Lookups return (nil, nil) when absent.
type WalletRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)

	// LockForUpdate acquires the wallet lock for the rest of the unit of work.
	LockForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)

	Create(ctx context.Context, w *domain.Wallet) error

	// Save writes balances and counters of a wallet previously locked in this unit of work.
	Save(ctx context.Context, w *domain.Wallet) error
}

// TransactionRepository provides access to the append-only ledger.
type TransactionRepository interface {
	Append(ctx context.Context, tx *domain.Transaction) error
	Find(ctx context.Context, filter domain.TransactionFilter) (*domain.Transaction, error)

	// List returns matching entries, newest first, skipping filter.Offset matches.
	List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	// Finalize moves a pending entry to a terminal status. Returns Conflict if
	// the entry is not pending.
	Finalize(ctx context.Context, id string, fin Finalization) (*domain.Transaction, error)

	// Annotate merges metadata into an entry in any status. Amounts are untouched.
	Annotate(ctx context.Context, id string, meta domain.Metadata) error
}

// Finalization is the terminal write for a pending entry. The balance snapshot
// replaces the pending one and Metadata is merged into the existing map.
type Finalization struct {
	Status        domain.TransactionStatus
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Metadata      domain.Metadata
}

// PaymentRequestRepository provides access to payment requests.
type PaymentRequestRepository interface {
	// Create inserts a request. Returns ErrPendingDuplicate on a pending (external id, method) clash.
	Create(ctx context.Context, req *domain.PaymentRequest) error
	Get(ctx context.Context, id string) (*domain.PaymentRequest, error)
	LockForUpdate(ctx context.Context, id string) (*domain.PaymentRequest, error)
	Update(ctx context.Context, req *domain.PaymentRequest) error
	FindPendingByExternalTxID(ctx context.Context, externalTxID string, method domain.PaymentMethod) (*domain.PaymentRequest, error)

	// ListByStatus returns requests oldest first.
	ListByStatus(ctx context.Context, status domain.RequestStatus, limit int) ([]domain.PaymentRequest, error)

	// ListByStatusAfter returns requests with id greater than afterID in id
	// order. Request ids sort by creation time, so paging with the last id of
	// each page walks the whole status set.
	ListByStatusAfter(ctx context.Context, status domain.RequestStatus, afterID string, limit int) ([]domain.PaymentRequest, error)

	// ListByUser returns a user's requests newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PaymentRequest, error)
	CountByUser(ctx context.Context, userID uuid.UUID, status domain.RequestStatus) (int, error)
}

// BonusRepository provides access to streaks and one-off grants.
type BonusRepository interface {
	// GetStreak returns the user's streak, or (nil, nil) if they never claimed.
	GetStreak(ctx context.Context, userID uuid.UUID) (*domain.BonusStreak, error)
	SaveStreak(ctx context.Context, s *domain.BonusStreak) error

	// ResetStaleStreaks zeroes current streaks whose last claim is before cutoff.
	ResetStaleStreaks(ctx context.Context, cutoff time.Time) (int, error)

	// RecordGrant inserts a grant and reports false if the key was already taken.
	RecordGrant(ctx context.Context, g *domain.BonusGrant) (bool, error)
}

// UserDirectory is the read-only view of user profiles.
type UserDirectory interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event within the same unit of work as the ledger entry.
	Insert(ctx context.Context, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in sequence order.
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRecord, error)

	MarkPublished(ctx context.Context, seqIDs []int64) error
}

// Repos is the set of repositories bound to one unit of work.
type Repos struct {
	Wallets      WalletRepository
	Transactions TransactionRepository
	Requests     PaymentRequestRepository
	Bonuses      BonusRepository
	Users        UserDirectory
	Outbox       OutboxRepository
}

// Store runs units of work. Every write made through the Repos passed to fn
// commits together when fn returns nil and is discarded otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error

	// Repos returns repositories that read committed state outside any unit of work.
	Repos() Repos
}
