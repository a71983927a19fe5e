package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound_HalfUp(t *testing.T) {
	assert.Equal(t, "10.13", Format(decimal.RequireFromString("10.125")))
	assert.Equal(t, "10.12", Format(decimal.RequireFromString("10.124")))
	assert.Equal(t, "0.01", Format(decimal.RequireFromString("0.005")))
}

func TestParse(t *testing.T) {
	d, err := Parse("1200")
	require.NoError(t, err)
	assert.Equal(t, "1200.00", Format(d))

	_, err = Parse("12,00")
	assert.Error(t, err)

	d, err = Parse("10.500")
	require.NoError(t, err)
	assert.Equal(t, "10.50", Format(d))

	_, err = Parse("1199.995")
	assert.ErrorIs(t, err, ErrTooPrecise)
	_, err = Parse("0.001")
	assert.Error(t, err)
}

func TestExact(t *testing.T) {
	assert.True(t, Exact(decimal.RequireFromString("1200")))
	assert.True(t, Exact(decimal.RequireFromString("19.99")))
	assert.False(t, Exact(decimal.RequireFromString("1199.995")))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(MustParse("500"), MustParse("500.00")))
	assert.False(t, Equal(MustParse("500"), MustParse("500.01")))
}

func TestTimes(t *testing.T) {
	assert.Equal(t, "500.00", Format(Times(MustParse("50"), 10)))
	assert.Equal(t, "0.00", Format(Times(MustParse("50"), 0)))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(120000), ToMinorUnits(MustParse("1200")))
	assert.Equal(t, int64(1999), ToMinorUnits(MustParse("19.99")))
	assert.True(t, FromMinorUnits(1999).Equal(MustParse("19.99")))
}

func TestMin(t *testing.T) {
	assert.Equal(t, "3.00", Format(Min(MustParse("3"), MustParse("4"))))
	assert.Equal(t, "3.00", Format(Min(MustParse("4"), MustParse("3"))))
}
