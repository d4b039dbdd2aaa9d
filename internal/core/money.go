package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyFormatter renders amounts with zero decimal places, rounded half
// away from zero and grouped by thousands. The rounding shows up in the
// literal text embedded in insights.
type CurrencyFormatter struct {
	Code        string
	Symbol      string
	GroupSep    string
	SymbolFirst bool
}

var currencies = map[string]CurrencyFormatter{
	"VND": {Code: "VND", Symbol: "₫", GroupSep: ".", SymbolFirst: false},
	"EUR": {Code: "EUR", Symbol: "€", GroupSep: ".", SymbolFirst: false},
	"USD": {Code: "USD", Symbol: "$", GroupSep: ",", SymbolFirst: true},
}

// DefaultCurrency is the display currency when none is configured.
const DefaultCurrency = "VND"

// NewCurrencyFormatter returns the formatter for an ISO currency code.
func NewCurrencyFormatter(code string) (CurrencyFormatter, error) {
	f, ok := currencies[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return CurrencyFormatter{}, fmt.Errorf("unsupported display currency %q", code)
	}
	return f, nil
}

// DefaultFormatter formats in DefaultCurrency.
func DefaultFormatter() CurrencyFormatter {
	return currencies[DefaultCurrency]
}

// Format renders d rounded to a whole amount, e.g. "1.000.000 ₫" or "$1,000".
func (f CurrencyFormatter) Format(d decimal.Decimal) string {
	rounded := d.Round(0)
	neg := rounded.IsNegative()
	digits := groupThousands(rounded.Abs().StringFixed(0), f.GroupSep)

	var s string
	if f.SymbolFirst {
		s = f.Symbol + digits
	} else {
		// Non-breaking space, as locale-aware formatters emit.
		s = digits + "\u00a0" + f.Symbol
	}
	if neg {
		return "-" + s
	}
	return s
}

// FormatFloat is Format for float inputs.
func (f CurrencyFormatter) FormatFloat(v float64) string {
	return f.Format(decimal.NewFromFloat(v))
}

func groupThousands(digits, sep string) string {
	if len(digits) <= 3 || sep == "" {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
