package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCurrencyFormatterFormat(t *testing.T) {
	vnd := DefaultFormatter()
	usd, err := NewCurrencyFormatter("usd")
	if err != nil {
		t.Fatalf("usd formatter: %v", err)
	}

	cases := []struct {
		f   CurrencyFormatter
		in  string
		out string
	}{
		{vnd, "0", "0\u00a0₫"},
		{vnd, "999", "999\u00a0₫"},
		{vnd, "1000", "1.000\u00a0₫"},
		{vnd, "1000000", "1.000.000\u00a0₫"},
		{vnd, "1234567.5", "1.234.568\u00a0₫"}, // half away from zero
		{vnd, "1234567.49", "1.234.567\u00a0₫"},
		{vnd, "-50000", "-50.000\u00a0₫"},
		{usd, "1500.4", "$1,500"},
		{usd, "12", "$12"},
	}
	for _, tc := range cases {
		got := tc.f.Format(decimal.RequireFromString(tc.in))
		if got != tc.out {
			t.Fatalf("%s %q expected %q, got %q", tc.f.Code, tc.in, tc.out, got)
		}
	}
}

func TestNewCurrencyFormatterUnknown(t *testing.T) {
	if _, err := NewCurrencyFormatter("XYZ"); err == nil {
		t.Fatalf("expected error for unknown currency")
	}
}
