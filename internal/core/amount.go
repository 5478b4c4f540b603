// Package core provides amount parsing utilities.
//
// This file contains functions for parsing monetary amounts typed by users
// into the float64 representation stored in the ledger.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a positive expense amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("1.005")  -> 1.01, nil
//	ParseAmount("0")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	return f, nil
}

// ParseBudgetAmount is like ParseAmount but also accepts zero.
func ParseBudgetAmount(s string) (float64, error) {
	d, err := parseDecimal(s)
	if err != nil || d.IsNegative() {
		return 0, ErrInvalidBudget
	}
	f := d.Round(2).InexactFloat64()
	if ValidateBudgetAmount(f) != nil {
		return 0, ErrInvalidBudget
	}
	return f, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	return decimal.NewFromString(s)
}
