// Package core provides the ledger's value types and money parsing.
//
// This file contains functions for parsing monetary amounts typed by users.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered decimal string into a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and keeps
// full precision; rounding happens only at presentation time.
// Returns ErrInvalidAmount for invalid formats, signs, or zero amounts.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("0")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := ParseNonNegative(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseNonNegative is ParseAmount without the zero check, used for filter
// bounds and goal progress where zero is meaningful.
func ParseNonNegative(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
