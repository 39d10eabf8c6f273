// Package money holds the fixed-point helpers shared by the ledger and the
// processor gateway. Ledger amounts have two decimal places; the processor
// speaks integer minor units.
package money

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for ledger amounts.
const Scale = 2

var (
	ErrNotPositive   = errors.New("amount must be positive")
	ErrTooPrecise    = errors.New("amount has more than two decimal places")
	ErrUnparseable   = errors.New("amount is not a decimal number")
	ErrMinorOverflow = errors.New("amount exceeds minor unit range")
)

// FromMinorUnits converts an integer minor-unit value (e.g. cents) into a
// decimal amount: 2500 -> 25.00.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Scale)
}

// ToMinorUnits converts a decimal amount into integer minor units, rounding
// half away from zero at the second decimal place.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Round(Scale).Shift(Scale)
	if !minor.IsInteger() || minor.Abs().GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, ErrMinorOverflow
	}
	return minor.IntPart(), nil
}

// ParsePositive parses s as a strictly positive amount with at most two
// decimal places.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparseable, s)
	}
	if err := ValidatePositive(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidatePositive checks d > 0 with at most two decimal places.
func ValidatePositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrNotPositive
	}
	if d.Exponent() < -Scale && !d.Equal(d.Round(Scale)) {
		return ErrTooPrecise
	}
	return nil
}

// HoursTimesRate multiplies a worked duration by an hourly rate and rounds
// to cents: 7h30m at 25.00 -> 187.50.
func HoursTimesRate(worked time.Duration, hourlyRate decimal.Decimal) decimal.Decimal {
	hours := decimal.NewFromInt(int64(worked)).Div(decimal.NewFromInt(int64(time.Hour)))
	return hours.Mul(hourlyRate).Round(Scale)
}
