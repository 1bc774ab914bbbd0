package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VerifiedNumber is a payout account the user registered for a method.
type VerifiedNumber struct {
	Number     string     `json:"number"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// UserProfile is the read-only view of the user directory this core consumes.
type UserProfile struct {
	ID                  uuid.UUID                        `json:"id"`
	MinWithdrawalAmount decimal.Decimal                  `json:"min_withdrawal_amount"`
	MaxWithdrawalAmount decimal.Decimal                  `json:"max_withdrawal_amount"`
	TotalWagered        decimal.Decimal                  `json:"total_wagered"`
	PaymentNumbers      map[PaymentMethod]VerifiedNumber `json:"payment_numbers"`
	ReferredBy          *uuid.UUID                       `json:"referred_by,omitempty"`
	Currency            string                           `json:"currency"`
	CreatedAt           time.Time                        `json:"created_at"`
}

// Default withdrawal limits applied when the directory leaves them unset.
var (
	DefaultMinWithdrawal = decimal.NewFromInt(500)
	DefaultMaxWithdrawal = decimal.NewFromInt(50000)
)

// WithdrawalLimits returns the user's [min, max], falling back to defaults.
func (u *UserProfile) WithdrawalLimits() (decimal.Decimal, decimal.Decimal) {
	lo, hi := u.MinWithdrawalAmount, u.MaxWithdrawalAmount
	if lo.IsZero() {
		lo = DefaultMinWithdrawal
	}
	if hi.IsZero() {
		hi = DefaultMaxWithdrawal
	}
	return lo, hi
}

// VerifiedNumberFor returns the verified account for method, if any.
func (u *UserProfile) VerifiedNumberFor(method PaymentMethod) (string, bool) {
	n, ok := u.PaymentNumbers[method]
	if !ok || !n.Verified || n.Number == "" {
		return "", false
	}
	return n.Number, true
}

// Wagered is the user's wagering total: what the directory carries from
// before this ledger plus the net bets recorded on w. w may be nil.
func (u *UserProfile) Wagered(w *Wallet) decimal.Decimal {
	if w == nil {
		return u.TotalWagered
	}
	return u.TotalWagered.Add(w.TotalWagered)
}

// WithdrawalRequirement reports progress toward the wagering threshold.
type WithdrawalRequirement struct {
	Required  decimal.Decimal `json:"required"`
	Wagered   decimal.Decimal `json:"wagered"`
	Remaining decimal.Decimal `json:"remaining"`
}

// WithdrawalEligibility is the boolean result of a can-withdraw check with its reason.
type WithdrawalEligibility struct {
	Allowed     bool                  `json:"allowed"`
	Reason      string                `json:"reason,omitempty"`
	Requirement WithdrawalRequirement `json:"requirement"`
}

// UserStats is the combined wallet and wagering summary for one user.
type UserStats struct {
	UserID                uuid.UUID             `json:"user_id"`
	Currency              string                `json:"currency"`
	WalletBalance         decimal.Decimal       `json:"wallet_balance"`
	LockedBalance         decimal.Decimal       `json:"locked_balance"`
	TotalDeposited        decimal.Decimal       `json:"total_deposited"`
	TotalWithdrawn        decimal.Decimal       `json:"total_withdrawn"`
	TotalWon              decimal.Decimal       `json:"total_won"`
	TotalLost             decimal.Decimal       `json:"total_lost"`
	TotalWagered          decimal.Decimal       `json:"total_wagered"`
	CanWithdraw           bool                  `json:"can_withdraw"`
	WithdrawalRequirement WithdrawalRequirement `json:"withdrawal_requirement"`
	CurrentStreak         int                   `json:"current_streak"`
	PendingRequests       int                   `json:"pending_requests"`
}
