// Package money parses and converts billing amounts. All amounts carry two
// decimal places.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const Scale = 2

var (
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
)

var hundred = decimal.NewFromInt(100)

// MaxAmount is the largest value a numeric(12,2) amount column holds. Its
// minor units always fit in an int64.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ParsePositive parses a decimal string, rounds it to two places and
// rejects anything that is not strictly positive or exceeds MaxAmount
// after rounding.
func ParsePositive(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	value = value.Round(Scale)
	if !value.IsPositive() || value.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

// MinorUnits converts a major-unit amount to integer minor units (paise,
// cents) after rounding to two places.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(Scale).Mul(hundred).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// NormalizeCurrency upper-cases an ISO 4217 code, substituting def when
// raw is blank.
func NormalizeCurrency(raw, def string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		code = strings.ToUpper(strings.TrimSpace(def))
	}
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return code, nil
}

// Format renders an amount with exactly two decimals.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(Scale)
}
