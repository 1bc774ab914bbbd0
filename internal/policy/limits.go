package policy

import (
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
)

// LimitPolicy holds the amount rules applied to payment requests.
type LimitPolicy struct {
	DepositMin          decimal.Decimal `json:"deposit_min"`
	DepositMax          decimal.Decimal `json:"deposit_max"`
	WageringRequirement decimal.Decimal `json:"wagering_requirement"`

	// MethodWithdrawalMin raises the user's own minimum for specific methods.
	MethodWithdrawalMin map[domain.PaymentMethod]decimal.Decimal `json:"method_withdrawal_min,omitempty"`
	DefaultMethodMin    decimal.Decimal                          `json:"default_method_min"`
}

// DefaultLimits returns deposits in [10, 50000], a 500 wagering threshold and
// method minimums of 500 for usdt and 100 otherwise.
func DefaultLimits() LimitPolicy {
	return LimitPolicy{
		DepositMin:          decimal.NewFromInt(10),
		DepositMax:          decimal.NewFromInt(50000),
		WageringRequirement: decimal.NewFromInt(500),
		MethodWithdrawalMin: map[domain.PaymentMethod]decimal.Decimal{
			domain.MethodUSDT: decimal.NewFromInt(500),
		},
		DefaultMethodMin: decimal.NewFromInt(100),
	}
}

// LimitEvaluation holds the result of an amount check.
type LimitEvaluation struct {
	Allowed       bool            `json:"allowed"`
	BreachedLimit string          `json:"breached_limit,omitempty"`
	LimitValue    decimal.Decimal `json:"limit_value"`
	RequestedAmt  decimal.Decimal `json:"requested_amount"`
}

// Err converts a refused evaluation into a validation error.
func (e LimitEvaluation) Err() error {
	if e.Allowed {
		return nil
	}
	switch e.BreachedLimit {
	case "deposit_min", "withdrawal_min", "method_min":
		return domain.ErrValidation("amount " + e.RequestedAmt.StringFixed(2) + " is below the minimum of " + e.LimitValue.StringFixed(2))
	case "wagering":
		return domain.ErrValidation("wagering requirement not met: " + e.RequestedAmt.StringFixed(2) + " of " + e.LimitValue.StringFixed(2) + " wagered")
	default:
		return domain.ErrValidation("amount " + e.RequestedAmt.StringFixed(2) + " exceeds the maximum of " + e.LimitValue.StringFixed(2))
	}
}

// EvaluateDeposit checks a deposit amount against [DepositMin, DepositMax].
func EvaluateDeposit(p LimitPolicy, amount decimal.Decimal) LimitEvaluation {
	if amount.LessThan(p.DepositMin) {
		return LimitEvaluation{BreachedLimit: "deposit_min", LimitValue: p.DepositMin, RequestedAmt: amount}
	}
	if amount.GreaterThan(p.DepositMax) {
		return LimitEvaluation{BreachedLimit: "deposit_max", LimitValue: p.DepositMax, RequestedAmt: amount}
	}
	return LimitEvaluation{Allowed: true, RequestedAmt: amount}
}

// MethodMinimum returns the smallest withdrawal allowed through method.
func (p LimitPolicy) MethodMinimum(method domain.PaymentMethod) decimal.Decimal {
	if v, ok := p.MethodWithdrawalMin[method]; ok {
		return v
	}
	return p.DefaultMethodMin
}

// EvaluateWithdrawalAmount checks amount against the user's own range and the
// method's minimum.
func EvaluateWithdrawalAmount(p LimitPolicy, user *domain.UserProfile, method domain.PaymentMethod, amount decimal.Decimal) LimitEvaluation {
	lo, hi := user.WithdrawalLimits()
	if amount.LessThan(lo) {
		return LimitEvaluation{BreachedLimit: "withdrawal_min", LimitValue: lo, RequestedAmt: amount}
	}
	if amount.GreaterThan(hi) {
		return LimitEvaluation{BreachedLimit: "withdrawal_max", LimitValue: hi, RequestedAmt: amount}
	}
	if m := p.MethodMinimum(method); amount.LessThan(m) {
		return LimitEvaluation{BreachedLimit: "method_min", LimitValue: m, RequestedAmt: amount}
	}
	return LimitEvaluation{Allowed: true, RequestedAmt: amount}
}

// WageringProgress reports how far the user is from the wagering threshold.
func WageringProgress(p LimitPolicy, wagered decimal.Decimal) domain.WithdrawalRequirement {
	remaining := p.WageringRequirement.Sub(wagered)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return domain.WithdrawalRequirement{
		Required:  p.WageringRequirement,
		Wagered:   wagered,
		Remaining: remaining,
	}
}

// EvaluateWithdrawal is the can-withdraw decision: the amount must be inside the
// user's [min, max] and wagered must reach the requirement.
func EvaluateWithdrawal(p LimitPolicy, user *domain.UserProfile, wagered, amount decimal.Decimal) domain.WithdrawalEligibility {
	req := WageringProgress(p, wagered)
	lo, hi := user.WithdrawalLimits()
	switch {
	case amount.LessThan(lo):
		return domain.WithdrawalEligibility{Reason: "below minimum withdrawal " + lo.StringFixed(2), Requirement: req}
	case amount.GreaterThan(hi):
		return domain.WithdrawalEligibility{Reason: "above maximum withdrawal " + hi.StringFixed(2), Requirement: req}
	case wagered.LessThan(p.WageringRequirement):
		return domain.WithdrawalEligibility{Reason: "wagering requirement not met", Requirement: req}
	}
	return domain.WithdrawalEligibility{Allowed: true, Requirement: req}
}
