package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BonusStreak tracks consecutive daily-bonus claims for one user.
// LastClaimDate is a calendar date stored at midnight UTC.
type BonusStreak struct {
	UserID              uuid.UUID       `json:"user_id"`
	LastClaimDate       *time.Time      `json:"last_claim_date,omitempty"`
	CurrentStreak       int             `json:"current_streak"`
	TotalBonusesClaimed int             `json:"total_bonuses_claimed"`
	TotalBonusAmount    decimal.Decimal `json:"total_bonus_amount"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// DailyBonusTier is one row of the daily payout table.
type DailyBonusTier struct {
	Day        int
	Amount     decimal.Decimal
	Multiplier decimal.Decimal
}

// Payout is Amount x Multiplier at money precision.
func (t DailyBonusTier) Payout() decimal.Decimal {
	return Money(t.Amount.Mul(t.Multiplier))
}

var dailyBonusTable = []DailyBonusTier{
	{Day: 1, Amount: decimal.NewFromInt(10), Multiplier: decimal.RequireFromString("1.0")},
	{Day: 2, Amount: decimal.NewFromInt(15), Multiplier: decimal.RequireFromString("1.1")},
	{Day: 3, Amount: decimal.NewFromInt(20), Multiplier: decimal.RequireFromString("1.2")},
	{Day: 4, Amount: decimal.NewFromInt(25), Multiplier: decimal.RequireFromString("1.3")},
	{Day: 5, Amount: decimal.NewFromInt(30), Multiplier: decimal.RequireFromString("1.5")},
	{Day: 6, Amount: decimal.NewFromInt(40), Multiplier: decimal.RequireFromString("1.8")},
	{Day: 7, Amount: decimal.NewFromInt(50), Multiplier: decimal.RequireFromString("2.0")},
}

// DailyBonusFor returns the payout tier for a streak. Streaks past 7 pay the day-7 tier.
func DailyBonusFor(streak int) DailyBonusTier {
	idx := min(max(streak, 1), len(dailyBonusTable)) - 1
	return dailyBonusTable[idx]
}

// BonusKind names a one-off bonus grant.
type BonusKind string

const (
	BonusWelcome  BonusKind = "welcome"
	BonusReferrer BonusKind = "referrer"
	BonusReferred BonusKind = "referred"
	BonusDeposit  BonusKind = "deposit"
	BonusDaily    BonusKind = "daily"
)

// TxPrefix returns the transaction id prefix used for this kind of bonus.
func (k BonusKind) TxPrefix() string {
	switch k {
	case BonusWelcome:
		return "WELCOME"
	case BonusReferrer:
		return "REF"
	case BonusReferred:
		return "REFERRED"
	case BonusDeposit:
		return "DEPBONUS"
	default:
		return "BONUS"
	}
}

// Fixed bonus amounts.
var (
	WelcomeBonusAmount  = decimal.NewFromInt(50)
	ReferrerBonusAmount = decimal.NewFromInt(100)
	ReferredBonusAmount = decimal.NewFromInt(50)
	DepositBonusRate    = decimal.RequireFromString("0.05")
	DepositBonusCap     = decimal.NewFromInt(500)
)

// DepositBonus returns min(5% of deposit, 500).
func DepositBonus(deposit decimal.Decimal) decimal.Decimal {
	return Money(MinDecimal(deposit.Mul(DepositBonusRate), DepositBonusCap))
}

// BonusGrant records that a one-off bonus was paid, keyed for uniqueness.
type BonusGrant struct {
	UserID        uuid.UUID       `json:"user_id"`
	Kind          BonusKind       `json:"kind"`
	GrantKey      string          `json:"grant_key"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DailyBonusResult is returned from a daily-bonus claim.
type DailyBonusResult struct {
	Amount         decimal.Decimal `json:"amount"`
	Streak         int             `json:"streak"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	AlreadyClaimed bool            `json:"already_claimed"`
}

// CalendarDate truncates t to its calendar date in loc, returned at midnight UTC
// so dates compare with Equal regardless of zone.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
