// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents so that incremental aggregation and a
// full recomputation always produce identical sums.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

var hundred = decimal.NewFromInt(100)

// ParseMoney converts a decimal string to Money with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Only
// strictly positive values are accepted.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234 cents
//	ParseMoney("12,345") -> 1235 cents
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
// Returns ErrInvalidAmount for invalid formats, signs, zero, or overflow.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsPositive() || !cents.LessThan(decimal.NewFromInt(1<<62)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// ParseBudget is ParseMoney for category budgets: zero is accepted and
// means no ceiling. Negative values return ErrNegativeBudget.
func ParseBudget(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Money{}, ErrNegativeBudget
	}
	return MoneyFromDecimal(d), nil
}

// MoneyFromDecimal rounds d half-up to cents. Sign is preserved.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Mul(hundred).Round(0).IntPart()}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// Decimal returns the exact decimal value in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats with two decimals, e.g. "12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Percent returns part/whole*100 rounded to two decimals, or 0 when whole
// is not positive.
func Percent(part, whole Money) float64 {
	if whole.Cents <= 0 {
		return 0
	}
	pct := part.Decimal().Div(whole.Decimal()).Mul(hundred).Round(2)
	f, _ := pct.Float64()
	return f
}
