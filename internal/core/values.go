// Package core provides the ledger data model and cell value handling.
//
// This file contains parsing and formatting of spreadsheet-style cell text:
// dollar-formatted amounts with thousands separators and parenthesized
// negatives, as produced by the CSV exporter and typed by users.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseCellValue converts spreadsheet cell text to a float64 with a zero
// fallback. It strips "$", ",", and surrounding whitespace, and treats a
// parenthesized value as negative. Non-numeric text coerces to 0.
//
// Examples:
//
//	ParseCellValue("$1,234.56")   -> 1234.56
//	ParseCellValue("($1,234.56)") -> -1234.56
//	ParseCellValue("n/a")         -> 0
func ParseCellValue(s string) float64 {
	v, err := ParseAmount(s)
	if err != nil {
		return 0
	}
	return v
}

// ParseAmount is the strict variant of ParseCellValue used for API input:
// it returns an error instead of coercing malformed text to zero.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		// A minus inside parentheses is still a single negation.
		neg = true
		s = s[1:]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// FormatDollars renders a value as spreadsheet cell text: two decimals,
// thousands separators, negatives parenthesized.
//
//	FormatDollars(1234.5)  -> "$1,234.50"
//	FormatDollars(-0.75)   -> "($0.75)"
func FormatDollars(v float64) string {
	neg := v < 0
	s := groupThousands(strconv.FormatFloat(math.Abs(round2(v)), 'f', 2, 64))
	if neg {
		return "($" + s + ")"
	}
	return "$" + s
}

// FormatCount renders a plain (non-monetary) value, trimming a trailing
// ".00" so counts read naturally.
func FormatCount(v float64) string {
	s := strconv.FormatFloat(round2(v), 'f', 2, 64)
	s = strings.TrimSuffix(s, ".00")
	return s
}

// Round2 rounds to two decimals, half away from zero.
func Round2(v float64) float64 {
	return round2(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func groupThousands(s string) string {
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}
	if len(intPart) <= 3 {
		return intPart + fracPart
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String() + fracPart
}
