package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every amount.
const Scale = 2

// Zero is the zero amount.
var Zero = decimal.Zero

// ErrTooPrecise is returned by Parse for amounts finer than Scale places.
var ErrTooPrecise = errors.New("amount has more than two decimal places")

// Round rounds d to Scale places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Parse reads a decimal string such as "1200.00". Amounts finer than
// Scale places are rejected, not rounded.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !Exact(d) {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, ErrTooPrecise)
	}
	return Round(d), nil
}

// Exact reports whether d carries no digits beyond Scale places.
// Trailing zeros such as "10.500" are fine.
func Exact(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Equal compares two amounts after rounding both to Scale places.
func Equal(a, b decimal.Decimal) bool {
	return Round(a).Equal(Round(b))
}

// Times multiplies a rate by a whole number of units.
func Times(rate decimal.Decimal, units int) decimal.Decimal {
	return Round(rate.Mul(decimal.NewFromInt(int64(units))))
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ToMinorUnits converts an amount to the smallest currency unit (satang, paise, cents).
func ToMinorUnits(d decimal.Decimal) int64 {
	return Round(d).Shift(Scale).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -Scale)
}

// Format renders an amount with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return Round(d).StringFixed(Scale)
}
