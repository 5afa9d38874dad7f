package core

import (
	"math"
	"testing"
)

func TestParseCellValue(t *testing.T) {
	cases := []struct {
		in  string
		out float64
	}{
		{"1234.56", 1234.56},
		{"$1,234.56", 1234.56},
		{"($1,234.56)", -1234.56},
		{"(12.00)", -12},
		{"-45.5", -45.5},
		{"(-45.5)", -45.5},
		{" $2.50 ", 2.5},
		{"0", 0},
		{"", 0},
		{"n/a", 0},
		{"1.2.3", 0},
		{"$", 0},
	}
	for _, tc := range cases {
		if got := ParseCellValue(tc.in); math.Abs(got-tc.out) > 1e-9 {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.out, got)
		}
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, in := range []string{"abc", "1.2.3", "12x"} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("%q expected error", in)
		}
	}
	if v, err := ParseAmount(""); err != nil || v != 0 {
		t.Fatalf("empty string expected 0, got %v (err=%v)", v, err)
	}
}

func TestFormatDollars(t *testing.T) {
	cases := []struct {
		in  float64
		out string
	}{
		{0, "$0.00"},
		{1234.5, "$1,234.50"},
		{-0.75, "($0.75)"},
		{1000000, "$1,000,000.00"},
		{-98765.432, "($98,765.43)"},
		{999.999, "$1,000.00"},
	}
	for _, tc := range cases {
		if got := FormatDollars(tc.in); got != tc.out {
			t.Fatalf("%v expected %q, got %q", tc.in, tc.out, got)
		}
	}
}

func TestFormatDollarsRoundTrips(t *testing.T) {
	for _, v := range []float64{0, 12.34, -12.34, 1234567.89, -0.01} {
		if got := ParseCellValue(FormatDollars(v)); math.Abs(got-v) > 0.005 {
			t.Fatalf("round trip of %v gave %v", v, got)
		}
	}
}
