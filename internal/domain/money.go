package domain

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits kept for every amount.
const MoneyScale = 2

// Money rounds d half away from zero to MoneyScale digits.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// MustMoney parses a literal amount. Panics on malformed input; intended for constants and tests.
func MustMoney(s string) decimal.Decimal {
	return Money(decimal.RequireFromString(s))
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the larger of a and b.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
