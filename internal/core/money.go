// Package core holds the domain types of the spending assistant: monetary
// amounts, calendar dates, entries and categories, and the shared error
// taxonomy.
//
// Money is kept in integer cents so that sums over many entries stay exact;
// shopspring/decimal is used only at the parsing and formatting boundary.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a signed amount with two-fraction-digit precision, stored as
// integer cents.
type Money struct {
	Cents int64
}

var amountPattern = regexp.MustCompile(`^-?\d+([.,]\d{1,2})?€?$`)

// ParseMoney parses a user-supplied amount. Dot and comma both act as the
// decimal separator, at most two fraction digits are allowed, and a trailing
// euro sign is accepted and ignored.
//
// Examples:
//
//	ParseMoney("12.50") -> 1250 cents
//	ParseMoney("-3,1€") -> -310 cents
//	ParseMoney("1.234")  -> error
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if !amountPattern.MatchString(s) {
		return Money{}, ErrInvalidAmount
	}
	s = strings.TrimSuffix(s, "€")
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: d.Shift(2).IntPart()}, nil
}

// Add returns the exact sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// String renders the amount with exactly two fraction digits, e.g. "12.50".
func (m Money) String() string {
	return decimal.New(m.Cents, -2).StringFixed(2)
}
