package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ErrUnknownCurrency is returned when a currency code is not an ISO 4217 code.
var ErrUnknownCurrency = errors.New("money: unknown currency")

// Currency describes a display currency configured for the storefront.
type Currency struct {
	Code      string          `json:"code"`
	Locale    string          `json:"locale"`
	Symbol    string          `json:"symbol,omitempty"`
	Factor    decimal.Decimal `json:"factor"`
	Precision int32           `json:"precision"`
	Default   bool            `json:"default"`
}

// ParseCurrencies parses a comma separated list of CODE[:locale[:symbol]] entries.
// The first entry is the default currency unless def names another one.
func ParseCurrencies(value, def string) ([]Currency, error) {
	parts := strings.Split(value, ",")
	out := make([]Currency, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		c := Currency{
			Code:      strings.ToUpper(strings.TrimSpace(fields[0])),
			Factor:    decimal.NewFromInt(1),
			Precision: DefaultPrecision,
		}
		if len(fields) > 1 {
			c.Locale = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			c.Symbol = strings.TrimSpace(fields[2])
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no currencies configured: %w", ErrUnknownCurrency)
	}
	def = strings.ToUpper(strings.TrimSpace(def))
	marked := false
	for i := range out {
		if def != "" && out[i].Code == def {
			out[i].Default = true
			marked = true
		}
	}
	if !marked {
		out[0].Default = true
	}
	return out, nil
}

// Validate checks the code against ISO 4217.
func (c Currency) Validate() error {
	if _, err := currency.ParseISO(c.Code); err != nil {
		return fmt.Errorf("%s: %w", c.Code, ErrUnknownCurrency)
	}
	return nil
}

// Places returns the display precision, defaulting to two places.
func (c Currency) Places() int32 {
	if c.Precision <= 0 {
		return DefaultPrecision
	}
	return c.Precision
}

// Convert applies the conversion factor to an amount in the default currency.
func (c Currency) Convert(amount decimal.Decimal) decimal.Decimal {
	if c.Factor.IsZero() {
		return amount
	}
	return amount.Mul(c.Factor)
}

// Round rounds the amount to the display precision.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.Places())
}

// Format renders an already converted amount as a localized price string.
func (c Currency) Format(amount decimal.Decimal) string {
	tag := language.English
	if c.Locale != "" {
		if parsed, err := language.Parse(c.Locale); err == nil {
			tag = parsed
		}
	}
	p := message.NewPrinter(tag)
	places := c.Places()
	rounded := amount.Round(places)
	if rounded.Abs().Shift(places).LessThan(floatExactLimit) {
		f, _ := rounded.Float64()
		return p.Sprint(number.Decimal(f, number.Scale(int(places)))) + " " + c.symbol(p)
	}
	return formatExact(p, rounded, places) + " " + c.symbol(p)
}

// floatExactLimit bounds the scaled amounts a float64 still renders digit exact.
var floatExactLimit = decimal.New(1, 15)

// formatExact renders the integer and fraction parts separately so that no
// digit passes through float64. The integer part must fit an int64.
func formatExact(p *message.Printer, amount decimal.Decimal, places int32) string {
	whole := amount.Truncate(0)
	out := p.Sprint(number.Decimal(whole.IntPart()))
	if places <= 0 {
		return out
	}
	frac := amount.Sub(whole).Abs().Shift(places).IntPart()
	return out + decimalSeparator(p) + p.Sprint(number.Decimal(frac, number.MinIntegerDigits(int(places)), number.NoSeparator()))
}

func decimalSeparator(p *message.Printer) string {
	sample := []rune(p.Sprint(number.Decimal(1.5, number.Scale(1))))
	if len(sample) < 3 {
		return "."
	}
	return string(sample[1 : len(sample)-1])
}

func (c Currency) symbol(p *message.Printer) string {
	if c.Symbol != "" {
		return c.Symbol
	}
	unit, err := currency.ParseISO(c.Code)
	if err != nil {
		return c.Code
	}
	return p.Sprint(currency.Symbol(unit))
}

// DefaultOf returns the default currency of the list.
func DefaultOf(list []Currency) (Currency, bool) {
	for _, c := range list {
		if c.Default {
			return c, true
		}
	}
	if len(list) > 0 {
		return list[0], true
	}
	return Currency{}, false
}
