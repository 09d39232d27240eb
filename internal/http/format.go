package http

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"rentdesk/internal/core"
)

// MoneyFormatter renders amounts for people: currency symbol, grouping and
// two decimals ("₱12,500.00"). Printers and casers are stateful, so one is
// built per call.
type MoneyFormatter struct {
	symbol string
	tag    language.Tag
}

// NewMoneyFormatter creates a formatter for symbol using English grouping.
func NewMoneyFormatter(symbol string) *MoneyFormatter {
	return &MoneyFormatter{symbol: symbol, tag: language.English}
}

// Format renders m with the currency symbol.
func (f *MoneyFormatter) Format(m core.Money) string {
	sign := ""
	if m.IsNegative() {
		sign = "-"
		m = m.Neg()
	}
	p := message.NewPrinter(f.tag)
	return sign + f.symbol + p.Sprint(number.Decimal(m.Float64(), number.Scale(2)))
}

// Label renders an upper-case status as a label ("COMPLETED" -> "Completed").
func (f *MoneyFormatter) Label(s string) string {
	return cases.Title(f.tag).String(s)
}
