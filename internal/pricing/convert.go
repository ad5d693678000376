package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Converter converts amounts through a common base currency. Each rate is the
// value of one unit of the currency expressed in the base currency.
type Converter struct {
	base   string
	toBase map[string]decimal.Decimal
}

// NewConverter constructs a converter for the given base currency.
func NewConverter(base string) *Converter {
	code, err := NormalizeCurrency(base)
	if err != nil {
		code = base
	}
	return &Converter{
		base:   code,
		toBase: map[string]decimal.Decimal{code: decimal.NewFromInt(1)},
	}
}

// Base returns the base currency code.
func (c *Converter) Base() string { return c.base }

// AddRate registers the base-denominated value of one unit of currency.
func (c *Converter) AddRate(currency string, toBase decimal.Decimal) error {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	if !toBase.IsPositive() {
		return fmt.Errorf("rate for %s must be positive: %w", code, ErrInvalidInput)
	}
	if code == c.base {
		return nil
	}
	c.toBase[code] = toBase
	return nil
}

// Currencies lists the supported codes in alphabetical order.
func (c *Converter) Currencies() []string {
	out := make([]string, 0, len(c.toBase))
	for code := range c.toBase {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Convert moves amount from one currency to another with one multiplication and
// one division.
func (c *Converter) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	fromCode, err := NormalizeCurrency(from)
	if err != nil {
		return decimal.Zero, err
	}
	toCode, err := NormalizeCurrency(to)
	if err != nil {
		return decimal.Zero, err
	}
	fromRate, ok := c.toBase[fromCode]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency %s: %w", fromCode, ErrInvalidInput)
	}
	toRate, ok := c.toBase[toCode]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency %s: %w", toCode, ErrInvalidInput)
	}
	if fromCode == toCode {
		return amount, nil
	}
	return amount.Mul(fromRate).DivRound(toRate, 16), nil
}
