package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3,4}$`)

// DefaultMobileNumberPattern matches Bangladeshi mobile numbers with an optional +88/88 prefix.
const DefaultMobileNumberPattern = `^(?:\+88|88)?(01[3-9]\d{8})$`

// MinExternalTxIDLength is the shortest accepted user-supplied transaction id.
const MinExternalTxIDLength = 8

// ValidateCurrency checks an ISO-like currency code.
func ValidateCurrency(currency string) error {
	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("invalid currency code: %s", currency)
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive with at most two decimals.
func ValidatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrValidation(fmt.Sprintf("amount must be positive, got %s", amount.String()))
	}
	if !amount.Equal(Money(amount)) {
		return ErrValidation(fmt.Sprintf("amount %s has more than %d decimal places", amount.String(), MoneyScale))
	}
	return nil
}

// ValidateExternalTxID trims id and checks its minimum length.
func ValidateExternalTxID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if len(id) < MinExternalTxIDLength {
		return "", ErrValidation(fmt.Sprintf("transaction id must be at least %d characters", MinExternalTxIDLength))
	}
	return id, nil
}

// MobileNumberValidator checks and normalises mobile-money account numbers.
type MobileNumberValidator struct {
	pattern *regexp.Regexp
}

// NewMobileNumberValidator compiles pattern. The first capture group, if present,
// is taken as the normalised number.
func NewMobileNumberValidator(pattern string) (*MobileNumberValidator, error) {
	if pattern == "" {
		pattern = DefaultMobileNumberPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile mobile number pattern: %w", err)
	}
	return &MobileNumberValidator{pattern: re}, nil
}

// Normalize validates raw and returns the cleaned number without country prefix.
func (v *MobileNumberValidator) Normalize(raw string) (string, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	m := v.pattern.FindStringSubmatch(cleaned)
	if m == nil {
		return "", ErrValidation("invalid mobile number format")
	}
	if len(m) > 1 && m[1] != "" {
		return m[1], nil
	}
	return cleaned, nil
}
