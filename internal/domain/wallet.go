package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is the per-user balance record. One wallet per user.
type Wallet struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Balance        decimal.Decimal `json:"balance"`
	LockedBalance  decimal.Decimal `json:"locked_balance"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	TotalWon       decimal.Decimal `json:"total_won"`
	TotalLost      decimal.Decimal `json:"total_lost"`
	TotalWagered   decimal.Decimal `json:"total_wagered"`
	Currency       string          `json:"currency"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewWallet returns an empty wallet for userID.
func NewWallet(userID uuid.UUID, currency string, now time.Time) *Wallet {
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Funds is balance plus locked balance; the quantity conserved by the ledger.
func (w *Wallet) Funds() decimal.Decimal {
	return w.Balance.Add(w.LockedBalance)
}

// BalanceUpdate describes a set of column deltas applied to a wallet in one write.
type BalanceUpdate struct {
	Balance        decimal.Decimal
	LockedBalance  decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalWithdrawn decimal.Decimal
	TotalWon       decimal.Decimal
	TotalLost      decimal.Decimal
	TotalWagered   decimal.Decimal
}

// Apply returns a copy of w with the deltas added. It does not check invariants.
func (u BalanceUpdate) Apply(w Wallet, now time.Time) Wallet {
	w.Balance = Money(w.Balance.Add(u.Balance))
	w.LockedBalance = Money(w.LockedBalance.Add(u.LockedBalance))
	w.TotalDeposited = Money(w.TotalDeposited.Add(u.TotalDeposited))
	w.TotalWithdrawn = Money(w.TotalWithdrawn.Add(u.TotalWithdrawn))
	w.TotalWon = Money(w.TotalWon.Add(u.TotalWon))
	w.TotalLost = Money(w.TotalLost.Add(u.TotalLost))
	w.TotalWagered = Money(w.TotalWagered.Add(u.TotalWagered))
	w.UpdatedAt = now
	return w
}

// CounterUpdate returns the cumulative-counter deltas implied by a completed
// movement of the given type and signed amount.
func CounterUpdate(txType TransactionType, amount decimal.Decimal) BalanceUpdate {
	abs := amount.Abs()
	switch txType {
	case TxDeposit:
		return BalanceUpdate{TotalDeposited: abs}
	case TxWithdrawal:
		return BalanceUpdate{TotalWithdrawn: abs}
	case TxWin:
		return BalanceUpdate{TotalWon: abs}
	case TxBet:
		return BalanceUpdate{TotalLost: abs, TotalWagered: abs}
	case TxRefund:
		return BalanceUpdate{TotalWagered: abs.Neg()}
	default:
		return BalanceUpdate{}
	}
}

// Plus merges two updates.
func (u BalanceUpdate) Plus(o BalanceUpdate) BalanceUpdate {
	return BalanceUpdate{
		Balance:        u.Balance.Add(o.Balance),
		LockedBalance:  u.LockedBalance.Add(o.LockedBalance),
		TotalDeposited: u.TotalDeposited.Add(o.TotalDeposited),
		TotalWithdrawn: u.TotalWithdrawn.Add(o.TotalWithdrawn),
		TotalWon:       u.TotalWon.Add(o.TotalWon),
		TotalLost:      u.TotalLost.Add(o.TotalLost),
		TotalWagered:   u.TotalWagered.Add(o.TotalWagered),
	}
}
