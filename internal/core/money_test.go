package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0", "0", true},
		{".5", "0.5", true},
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"1e3", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1,234.50", "", false},
		{".", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseMoneyRoundsHalfUp(t *testing.T) {
	cases := map[string]string{
		"1.005":  "1.01",
		"1.004":  "1",
		"12,345": "12.35",
		"75.50":  "75.5",
	}
	for in, want := range cases {
		got, err := ParseMoney(in)
		if err != nil || !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("%q expected %s, got %s (err=%v)", in, want, got, err)
		}
	}
}

func TestFormatQAR(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"75.5", "QAR 75.50"},
		{"0", "QAR 0.00"},
		{"-10", "QAR -10.00"},
	}
	for _, tc := range cases {
		if got := FormatQAR(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Fatalf("FormatQAR(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
