// Package core holds the domain model of the money tracker: monetary
// amounts, ledger records, locations, spheres and the balance engine.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a monetary amount in integer cents. Arithmetic on balances
// happens in cents; decimals appear only at the wire boundary.
type Money struct {
	Cents int64
}

// ParseSum converts a decimal string ("12.34", comma accepted as
// separator) into positive cents. Amounts with more than two decimal
// places, zero or negative values are rejected.
func ParseSum(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return Money{}, fmt.Errorf("%w: %w", ErrValidation, ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %w", ErrValidation, ErrInvalidAmount)
	}
	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return Money{}, fmt.Errorf("%w: %w: more than two decimal places", ErrValidation, ErrInvalidAmount)
	}
	if !cents.IsPositive() {
		return Money{}, fmt.Errorf("%w: %w: must be positive", ErrValidation, ErrInvalidAmount)
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount as a two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with exactly two decimal places, e.g. "700.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Validate rejects non-positive amounts.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidAmount)
	}
	return nil
}
