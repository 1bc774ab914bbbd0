package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/infra"
)

// decimalField lets scan helpers convert numeric columns in a loop.
type decimalField decimal.Decimal

func (f *decimalField) set(n pgtype.Numeric) error {
	d, err := infra.NumericToDecimal(n)
	if err != nil {
		return err
	}
	*f = decimalField(d)
	return nil
}

const (
	uniqueViolation  = "23505"
	lockNotAvailable = "55P03"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// isLockTimeout reports whether err is lock_timeout firing on a row lock.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable
}

// MaxListLimit caps a single list query.
const MaxListLimit = 10000

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return min(limit, MaxListLimit)
}
