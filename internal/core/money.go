// Package core provides the domain types of the spending analysis.
//
// This file contains helpers for USD amounts. Transactions are stored in
// integer cents; arithmetic on totals and shares uses decimal values so that
// threshold comparisons are exact.
package core

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// USDFromCents converts an integer cent amount to a decimal dollar value.
func USDFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// CentsFromUSD converts a dollar amount to integer cents, rounding half away from zero.
func CentsFromUSD(usd decimal.Decimal) int64 {
	return usd.Mul(hundred).Round(0).IntPart()
}

// FormatUSD renders an amount as "$1,234.56".
func FormatUSD(usd decimal.Decimal) string {
	neg := usd.IsNegative()
	s := usd.Abs().StringFixed(2)

	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var grouped []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, intPart[i])
	}

	out := "$" + string(grouped) + frac
	if neg {
		return "-" + out
	}
	return out
}

// Percent renders a 0-1 share as a percentage with one decimal, e.g. "30.0%".
func Percent(share float64) string {
	return decimal.NewFromFloat(share).Mul(hundred).StringFixed(1) + "%"
}
