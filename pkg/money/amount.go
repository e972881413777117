package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits a ledger amount may carry.
const Scale = 4

// MaxIntegerDigits bounds the integer part of amounts and balances so they
// fit NUMERIC(24,4) columns.
const MaxIntegerDigits = 20

var (
	ErrEmpty         = errors.New("amount is required")
	ErrInvalidFormat = errors.New("invalid amount format")
	ErrTooPrecise    = fmt.Errorf("amount has more than %d fractional digits", Scale)
	ErrOutOfRange    = fmt.Errorf("amount has more than %d integer digits", MaxIntegerDigits)
)

// limit is the smallest magnitude with MaxIntegerDigits+1 integer digits.
var limit = decimal.New(1, MaxIntegerDigits)

// Parse converts a human-readable amount string to a decimal.
// "150" → 150, "0.5" → 0.5, "1.23456" → ErrTooPrecise.
// The sign is preserved; callers decide whether negatives are acceptable.
func Parse(amountStr string) (decimal.Decimal, error) {
	s := strings.TrimSpace(amountStr)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}

	// decimal accepts exponents; ledger inputs are plain notation only
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidFormat
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidFormat
	}

	if err := CheckScale(d); err != nil {
		return decimal.Zero, err
	}

	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(amountStr string) decimal.Decimal {
	d, err := Parse(amountStr)
	if err != nil {
		panic(fmt.Sprintf("money: %q: %v", amountStr, err))
	}
	return d
}

// CheckScale reports ErrTooPrecise when d has more than Scale fractional digits.
func CheckScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(Scale)) {
		return ErrTooPrecise
	}
	return nil
}

// CheckRange reports ErrOutOfRange when |d| has more than MaxIntegerDigits
// integer digits.
func CheckRange(d decimal.Decimal) error {
	if d.Abs().GreaterThanOrEqual(limit) {
		return ErrOutOfRange
	}
	return nil
}

// IsPositive reports whether d > 0.
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// IsNegative reports whether d < 0.
func IsNegative(d decimal.Decimal) bool {
	return d.Sign() < 0
}

// Format renders d in canonical form: no exponent, trailing zeros trimmed.
// E.g., 150.5000 → "150.5", 0 → "0"
func Format(d decimal.Decimal) string {
	return d.Truncate(Scale).String()
}

// FormatFixed renders d with exactly Scale fractional digits, the form
// stored in NUMERIC/DECIMAL columns.
func FormatFixed(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
