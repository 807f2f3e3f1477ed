// Package core provides money parsing and handling utilities.
//
// This file contains the nullable decimal used for the three monetary
// columns and the parsing rules applied to raw sheet cells.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Bounds of a ledger amount. Anything outside them is treated as
// unparseable so a single cell cannot blow up rendering.
var (
	maxAmount      = decimal.New(1, 15)
	minAmountScale = int32(-12)
)

// Amount is a nullable decimal. The zero value is null.
type Amount struct {
	value decimal.Decimal
	valid bool
}

// NewAmount wraps a decimal as a valid Amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{value: d, valid: true}
}

// ParseAmount converts a cell into an Amount.
//
// Thousands separators (",") are stripped before parsing. Empty or
// unparseable input yields a null Amount, never an error. So does
// exponent notation, a magnitude above 1e15 or more than 12 decimals.
//
// Examples:
//
//	ParseAmount("1,200.50") -> 1200.5
//	ParseAmount("1300")     -> 1300
//	ParseAmount("")         -> null
//	ParseAmount("abc")      -> null
//	ParseAmount("1e6")      -> null
func ParseAmount(s string) Amount {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || strings.ContainsAny(s, "eE") {
		return Amount{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}
	}
	if d.Abs().GreaterThan(maxAmount) || d.Exponent() < minAmountScale {
		return Amount{}
	}
	return NewAmount(d)
}

// Valid reports whether the amount holds a value.
func (a Amount) Valid() bool {
	return a.valid
}

// Decimal returns the value, or zero for a null amount.
func (a Amount) Decimal() decimal.Decimal {
	if !a.valid {
		return decimal.Zero
	}
	return a.value
}

// String returns the canonical cell text; "" for a null amount.
func (a Amount) String() string {
	if !a.valid {
		return ""
	}
	return a.value.String()
}

// FormatMoney renders d with two decimals and "," thousands separators,
// e.g. 1234567.891 -> "1,234,567.89".
func FormatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
