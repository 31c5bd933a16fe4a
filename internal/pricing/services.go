package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/money"
)

var (
	// ErrTaxClassUnknown is returned when no rate is configured for a tax class.
	ErrTaxClassUnknown = errors.New("pricing: unknown tax class")
	// ErrCurrencyUnknown is returned when no conversion factor exists for a currency.
	ErrCurrencyUnknown = errors.New("pricing: unknown currency")
)

// TaxService resolves the tax percentage of a tax class in a country.
type TaxService interface {
	RateForClass(ctx context.Context, taxClassID int64, country string) (decimal.Decimal, error)
}

// CurrencyService resolves the factor converting default currency amounts.
type CurrencyService interface {
	ConversionFactor(ctx context.Context, code string) (decimal.Decimal, error)
}

// StaticTax is a fixed rate table. Country specific rates win over the
// rates registered for the empty country. Default, when set, answers
// classes missing from both.
type StaticTax struct {
	Rates   map[string]map[int64]decimal.Decimal
	Default *decimal.Decimal
}

// NewStaticTax returns a table with the given rates for every country.
func NewStaticTax(rates map[int64]decimal.Decimal) *StaticTax {
	return &StaticTax{Rates: map[string]map[int64]decimal.Decimal{"": rates}}
}

// RateForClass implements TaxService.
func (s *StaticTax) RateForClass(_ context.Context, taxClassID int64, country string) (decimal.Decimal, error) {
	if rates, ok := s.Rates[strings.ToUpper(country)]; ok {
		if rate, ok := rates[taxClassID]; ok {
			return rate, nil
		}
	}
	if rate, ok := s.Rates[""][taxClassID]; ok {
		return rate, nil
	}
	if s.Default != nil {
		return *s.Default, nil
	}
	return decimal.Zero, fmt.Errorf("class %d in %q: %w", taxClassID, country, ErrTaxClassUnknown)
}

// StaticCurrencies answers conversion factors from configured currencies.
type StaticCurrencies []money.Currency

// ConversionFactor implements CurrencyService.
func (s StaticCurrencies) ConversionFactor(_ context.Context, code string) (decimal.Decimal, error) {
	for _, c := range s {
		if strings.EqualFold(c.Code, code) {
			if c.Factor.IsZero() {
				return decimal.NewFromInt(1), nil
			}
			return c.Factor, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%s: %w", code, ErrCurrencyUnknown)
}
