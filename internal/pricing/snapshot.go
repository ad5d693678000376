package pricing

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCustomsRate applies when a category has no configured customs rate.
var DefaultCustomsRate = decimal.RequireFromString("0.20")

// RateSnapshot is one immutable version of the price settings. A quote binds to
// exactly one snapshot so it can be reproduced later from the same values.
type RateSnapshot struct {
	Version             int64     `json:"version"`
	EffectiveFrom       time.Time `json:"effectiveFrom"`
	SourceCurrency      string    `json:"sourceCurrency"`
	DestinationCurrency string    `json:"destinationCurrency"`
	// ExchangeRate converts one source-currency unit into destination-currency units.
	ExchangeRate      decimal.Decimal              `json:"exchangeRate"`
	TransportBase     decimal.Decimal              `json:"transportBase"`
	TransportPerKg    decimal.Decimal              `json:"transportPerKg"`
	CustomsByCategory map[Category]decimal.Decimal `json:"customsByCategory"`
	MarginRate        decimal.Decimal              `json:"marginRate"`
	// CurrencyRates holds the value of one unit of each currency expressed in the
	// destination currency. Source and destination are implied.
	CurrencyRates map[string]decimal.Decimal `json:"currencyRates,omitempty"`
}

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// NormalizeCurrency upper-cases and validates an ISO-4217 style code.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !currencyCodePattern.MatchString(c) {
		return "", fmt.Errorf("currency code %q: %w", code, ErrInvalidInput)
	}
	return c, nil
}

// Validate checks the snapshot is usable for pricing.
func (s *RateSnapshot) Validate() error {
	if s == nil {
		return ErrRateSnapshotMissing
	}
	if _, err := NormalizeCurrency(s.SourceCurrency); err != nil {
		return fmt.Errorf("source currency: %w", err)
	}
	if _, err := NormalizeCurrency(s.DestinationCurrency); err != nil {
		return fmt.Errorf("destination currency: %w", err)
	}
	if !s.ExchangeRate.IsPositive() {
		return fmt.Errorf("exchange rate must be positive: %w", ErrInvalidInput)
	}
	if s.TransportBase.IsNegative() || s.TransportPerKg.IsNegative() {
		return fmt.Errorf("transport fees must not be negative: %w", ErrInvalidInput)
	}
	if s.MarginRate.IsNegative() {
		return fmt.Errorf("margin rate must not be negative: %w", ErrInvalidInput)
	}
	for cat, rate := range s.CustomsByCategory {
		if rate.IsNegative() {
			return fmt.Errorf("customs rate for %s must not be negative: %w", cat, ErrInvalidInput)
		}
	}
	for code, rate := range s.CurrencyRates {
		if _, err := NormalizeCurrency(code); err != nil {
			return err
		}
		if !rate.IsPositive() {
			return fmt.Errorf("rate for %s must be positive: %w", code, ErrInvalidInput)
		}
	}
	return nil
}

// CustomsRate returns the configured rate for the category and whether the
// default had to be used instead.
func (s *RateSnapshot) CustomsRate(c Category) (decimal.Decimal, bool) {
	if rate, ok := s.CustomsByCategory[c]; ok && c.Known() {
		return rate, false
	}
	return DefaultCustomsRate, true
}

// Converter builds a currency converter whose base is the destination currency.
func (s *RateSnapshot) Converter() (*Converter, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	dest, _ := NormalizeCurrency(s.DestinationCurrency)
	src, _ := NormalizeCurrency(s.SourceCurrency)
	conv := NewConverter(dest)
	for code, rate := range s.CurrencyRates {
		if err := conv.AddRate(code, rate); err != nil {
			return nil, err
		}
	}
	if src != dest {
		if err := conv.AddRate(src, s.ExchangeRate); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// Clone returns a deep copy so callers cannot mutate a shared snapshot.
func (s *RateSnapshot) Clone() *RateSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.CustomsByCategory = make(map[Category]decimal.Decimal, len(s.CustomsByCategory))
	for k, v := range s.CustomsByCategory {
		out.CustomsByCategory[k] = v
	}
	out.CurrencyRates = make(map[string]decimal.Decimal, len(s.CurrencyRates))
	for k, v := range s.CurrencyRates {
		out.CurrencyRates[k] = v
	}
	return &out
}

// OfflineSnapshot is the first-run snapshot used only when no stored snapshot
// exists and the offline fallback is explicitly enabled.
func OfflineSnapshot() *RateSnapshot {
	return &RateSnapshot{
		Version:             0,
		SourceCurrency:      "KRW",
		DestinationCurrency: "XOF",
		ExchangeRate:        decimal.RequireFromString("0.45"),
		TransportBase:       decimal.NewFromInt(50000),
		TransportPerKg:      decimal.NewFromInt(1500),
		CustomsByCategory: map[Category]decimal.Decimal{
			CategoryVehicles:    decimal.RequireFromString("0.30"),
			CategoryElectronics: decimal.RequireFromString("0.25"),
			CategoryAppliances:  decimal.RequireFromString("0.25"),
			CategoryFilters:     decimal.RequireFromString("0.15"),
			CategoryBrakes:      decimal.RequireFromString("0.15"),
			CategoryLubricants:  decimal.RequireFromString("0.10"),
		},
		MarginRate:    decimal.RequireFromString("0.35"),
		CurrencyRates: map[string]decimal.Decimal{"EUR": decimal.RequireFromString("655.957")},
	}
}
