package infra

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToDecimal_Zero(t *testing.T) {
	v, err := NumericToDecimal(DecimalToNumeric(decimal.Zero))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestNumericToDecimal_Fractional(t *testing.T) {
	// 1650 * 10^-2 = 16.50
	n := pgtype.Numeric{Int: big.NewInt(1650), Exp: -2, Valid: true}
	v, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.Equal(t, "16.5", v.String())
}

func TestNumericToDecimal_PositiveExponent(t *testing.T) {
	n := pgtype.Numeric{Int: big.NewInt(5), Exp: 3, Valid: true}
	v, err := NumericToDecimal(n)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(5000)))
}

func TestNumericToDecimal_NullReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{Valid: false})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")
}

func TestNumericToDecimal_NaNReturnsError(t *testing.T) {
	_, err := NumericToDecimal(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)
}

func TestDecimalToNumeric_Roundtrip(t *testing.T) {
	values := []string{"0", "0.01", "-500", "16.5", "49999.99", "999999999999.99"}
	for _, s := range values {
		d := decimal.RequireFromString(s)
		out, err := NumericToDecimal(DecimalToNumeric(d))
		require.NoError(t, err, "value: %s", s)
		assert.True(t, d.Equal(out), "value: %s got %s", s, out)
	}
}

func TestDecimalToNumeric_DoesNotAlias(t *testing.T) {
	d := decimal.RequireFromString("12.34")
	n := DecimalToNumeric(d)
	n.Int.SetInt64(0)
	assert.Equal(t, "12.34", d.String())
}
