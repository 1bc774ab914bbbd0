package projection

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
)

// BalanceProjection represents a cached wallet balance.
type BalanceProjection struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	Currency      string          `json:"currency"`
	LastTxID      string          `json:"last_tx_id"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

const balanceTTL = 5 * time.Minute

func balanceKey(userID string) string { return "projection:balance:" + userID }

// UpdateBalance caches a wallet's balance projection.
func UpdateBalance(ctx context.Context, store Store, p BalanceProjection) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	return SetJSON(ctx, store, balanceKey(p.UserID), p, balanceTTL)
}

// GetBalance retrieves a cached balance projection. Misses return ErrMiss.
func GetBalance(ctx context.Context, store Store, userID string) (*BalanceProjection, error) {
	var p BalanceProjection
	if err := GetJSON(ctx, store, balanceKey(userID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// InvalidateBalance removes a user's cached balance.
func InvalidateBalance(ctx context.Context, store Store, userID uuid.UUID) error {
	return store.Delete(ctx, balanceKey(userID.String()))
}

// BalanceObserver refreshes the balance projection after each committed posting.
type BalanceObserver struct {
	store  Store
	logger *slog.Logger
}

// NewBalanceObserver creates a BalanceObserver.
func NewBalanceObserver(store Store, logger *slog.Logger) *BalanceObserver {
	return &BalanceObserver{store: store, logger: logger}
}

// OnPosting writes the wallet snapshot. Failures are logged; the ledger stays authoritative.
func (o *BalanceObserver) OnPosting(ctx context.Context, tx domain.Transaction, w domain.Wallet) {
	err := UpdateBalance(ctx, o.store, BalanceProjection{
		UserID:        w.UserID.String(),
		Balance:       w.Balance,
		LockedBalance: w.LockedBalance,
		Currency:      w.Currency,
		LastTxID:      tx.ID,
		UpdatedAt:     w.UpdatedAt,
	})
	if err != nil {
		o.logger.Warn("balance projection update failed", "user_id", w.UserID, "tx_id", tx.ID, "error", err)
	}
}
