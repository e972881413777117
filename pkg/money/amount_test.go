package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WholeNumber(t *testing.T) {
	result, err := Parse("150")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(result))
}

func TestParse_WithDecimals(t *testing.T) {
	result, err := Parse("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1.5", result.String())
}

func TestParse_MaxScale(t *testing.T) {
	result, err := Parse("0.0001")
	require.NoError(t, err)
	assert.Equal(t, "0.0001", result.String())
}

func TestParse_TrailingZerosBeyondScale(t *testing.T) {
	// 1.50000 carries no value past the fourth digit
	result, err := Parse("1.50000")
	require.NoError(t, err)
	assert.Equal(t, "1.5", Format(result))
}

func TestParse_TooPrecise(t *testing.T) {
	_, err := Parse("0.00001")
	assert.ErrorIs(t, err, ErrTooPrecise)
}

func TestParse_Negative(t *testing.T) {
	result, err := Parse("-10")
	require.NoError(t, err)
	assert.True(t, IsNegative(result))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmpty},
		{"whitespace", "   ", ErrEmpty},
		{"letters", "abc", ErrInvalidFormat},
		{"exponent", "1e3", ErrInvalidFormat},
		{"two dots", "1.2.3", ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIsPositive(t *testing.T) {
	assert.True(t, IsPositive(MustParse("0.0001")))
	assert.False(t, IsPositive(decimal.Zero))
	assert.False(t, IsPositive(MustParse("-1")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "150.5", Format(MustParse("150.5000")))
	assert.Equal(t, "0", Format(decimal.Zero))
	assert.Equal(t, "150.5000", FormatFixed(MustParse("150.5")))
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
}

func TestCheckRange(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"zero", "0", false},
		{"largest allowed", "99999999999999999999.9999", false},
		{"negative largest allowed", "-99999999999999999999.9999", false},
		{"twenty one integer digits", "100000000000000000000", true},
		{"1e24", "1000000000000000000000000", true},
		{"negative overflow", "-100000000000000000000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRange(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfRange)
				return
			}
			assert.NoError(t, err)
		})
	}
}
