package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"0", "$0.00"},
		{"1", "$1.00"},
		{"12.3", "$12.30"},
		{"999.999", "$1,000.00"},
		{"1234.56", "$1,234.56"},
		{"1234567.8", "$1,234,567.80"},
		{"-42.5", "-$42.50"},
	}
	for _, tc := range cases {
		got := FormatUSD(decimal.RequireFromString(tc.in))
		if got != tc.out {
			t.Fatalf("FormatUSD(%s) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

func TestCentsConversion(t *testing.T) {
	if got := USDFromCents(30000); !got.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("USDFromCents(30000) = %s, want 300", got)
	}
	if got := USDFromCents(1); got.String() != "0.01" {
		t.Fatalf("USDFromCents(1) = %s, want 0.01", got)
	}
	if got := CentsFromUSD(decimal.RequireFromString("12.345")); got != 1235 {
		t.Fatalf("CentsFromUSD(12.345) = %d, want 1235", got)
	}
}

func TestPercent(t *testing.T) {
	cases := map[float64]string{
		0:     "0.0%",
		0.3:   "30.0%",
		0.255: "25.5%",
		1:     "100.0%",
	}
	for in, want := range cases {
		if got := Percent(in); got != want {
			t.Fatalf("Percent(%v) = %q, want %q", in, got, want)
		}
	}
}
