// Package money parses user-entered currency amounts.
//
// Every amount typed by a user goes through ParseAmount, so the two decimal
// separators the forms accept are normalized in exactly one place.
package money

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for an amount.
const Places = 2

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a positive decimal string into a decimal rounded to cents.
//
// Both dot (12.34) and comma (12,34) are accepted as decimal separator. Signs,
// thousands separators, empty input and values that round to zero are rejected.
//
//	ParseAmount("450")     -> 450, nil
//	ParseAmount("450,50")  -> 450.5, nil
//	ParseAmount("12.345")  -> 12.35, nil (half-up)
//	ParseAmount("-5")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseBalance is ParseAmount but also accepts zero, for balances that may
// already be fully paid.
func ParseBalance(s string) (decimal.Decimal, error) {
	return parse(s)
}

func parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.':
		default:
			// Covers signs, exponents and stray characters
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(Places), nil
}

// Format renders an amount with two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}
