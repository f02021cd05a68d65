package model

import (
	"fmt"

	"github.com/shopspring/decimal"

	"school-payments/internal/domain"
)

// Amounts are stored in minor units (pesewas, kobo, cents).
const minorUnitExp = 2

// MinorToMajor converts minor units into a decimal major amount.
func MinorToMajor(amount int64) decimal.Decimal {
	return decimal.New(amount, -minorUnitExp)
}

// FormatMinor renders minor units as a fixed two-place major amount, e.g. 500 -> "5.00".
func FormatMinor(amount int64) string {
	return MinorToMajor(amount).StringFixed(minorUnitExp)
}

// ParseMajor parses a major-unit string ("5", "5.5", "5.00") into minor units.
// More than two decimal places is rejected rather than rounded.
func ParseMajor(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", domain.ErrInvalidArgument, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: amount must not be negative", domain.ErrInvalidArgument)
	}
	minor := d.Shift(minorUnitExp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimal places", domain.ErrInvalidArgument, s, minorUnitExp)
	}
	return minor.IntPart(), nil
}
