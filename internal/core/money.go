// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing user-entered amounts and
// formatting them for display in Qatari riyal.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencyCode prefixes every formatted amount.
const CurrencyCode = "QAR"

// ParseAmount converts a user-entered decimal string to a non-negative decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents and thousands separators are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,5")  -> 12.5, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseMoney parses an amount and rounds it half-up to cents.
//
//	ParseMoney("1.005") -> 1.01, nil
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(2), nil
}

// FormatQAR renders an amount with grouping and two decimals ("QAR 1,234.50").
func FormatQAR(d decimal.Decimal) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s %.2f", CurrencyCode, d.InexactFloat64())
}
