package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// StaticConverter converts through fixed rates expressed in units of the reference currency.
type StaticConverter struct {
	reference string
	rates     map[string]decimal.Decimal
}

func NewStaticConverter(reference string, rates map[string]decimal.Decimal) *StaticConverter {
	ref := strings.ToUpper(reference)
	normalized := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		normalized[strings.ToUpper(code)] = rate
	}
	normalized[ref] = decimal.NewFromInt(1)
	return &StaticConverter{reference: ref, rates: normalized}
}

// ParseRates builds a StaticConverter from decimal strings, as read from config.
func ParseRates(reference string, raw map[string]string) (*StaticConverter, error) {
	rates := make(map[string]decimal.Decimal, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", code, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive", code)
		}
		rates[code] = rate
	}
	return NewStaticConverter(reference, rates), nil
}

func (c *StaticConverter) Reference() string {
	return c.reference
}

func (c *StaticConverter) Supports(code string) bool {
	_, ok := c.rates[strings.ToUpper(code)]
	return ok
}

func (c *StaticConverter) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	fromRate, ok := c.rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, from)
	}
	toRate, ok := c.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, to)
	}

	return amount.Mul(fromRate).Div(toRate), nil
}
