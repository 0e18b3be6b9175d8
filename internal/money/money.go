// Package money formats decimal amounts for display.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders an amount as display text.
type Formatter interface {
	Format(amount decimal.Decimal) string
}

// LocaleFormatter formats amounts with locale digit grouping, two decimal
// places and the ISO currency code.
type LocaleFormatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewLocaleFormatter builds a formatter for a BCP 47 locale tag and an
// ISO 4217 currency code.
func NewLocaleFormatter(locale, currencyCode string) (*LocaleFormatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}
	return &LocaleFormatter{printer: message.NewPrinter(tag), unit: unit}, nil
}

// Format implements Formatter.
func (f *LocaleFormatter) Format(amount decimal.Decimal) string {
	v := amount.Round(2).InexactFloat64()
	return f.printer.Sprintf("%v %s", number.Decimal(v, number.Scale(2)), f.unit.String())
}

// Currency returns the ISO code the formatter appends.
func (f *LocaleFormatter) Currency() string {
	return f.unit.String()
}
