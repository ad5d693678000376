package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// MaxWeightKg is the heaviest single consignment the shipping partners accept.
const MaxWeightKg = 10000

var maxWeight = decimal.NewFromInt(MaxWeightKg)

// Breakdown itemises a landed-cost quote in destination-currency units. The four
// cost lines always add up to FinalPrice exactly.
type Breakdown struct {
	SupplierPrice    Money           `json:"supplierPrice"`
	TransportCost    Money           `json:"transportCost"`
	CustomsCost      Money           `json:"customsCost"`
	MarginCost       Money           `json:"marginCost"`
	FinalPrice       Money           `json:"finalPrice"`
	Currency         string          `json:"currency"`
	Category         Category        `json:"category"`
	CustomsRate      decimal.Decimal `json:"customsRate"`
	CategoryFallback bool            `json:"categoryFallback"`
	SnapshotVersion  int64           `json:"snapshotVersion"`
}

// Landed returns the pre-margin cost.
func (b Breakdown) Landed() Money {
	return b.SupplierPrice + b.TransportCost + b.CustomsCost
}

// ComputePrice turns a supplier price into a customer price using a single rate
// snapshot. Intermediate amounts keep full decimal precision; only the total is
// rounded, and the difference between the rounded total and the individually
// rounded lines is absorbed by the margin line first.
func ComputePrice(sourcePriceMinor Money, weightKg float64, category Category, rates *RateSnapshot) (Breakdown, error) {
	if rates == nil {
		return Breakdown{}, ErrRateSnapshotMissing
	}
	if err := rates.Validate(); err != nil {
		return Breakdown{}, fmt.Errorf("%w: %s", ErrRateSnapshotMissing, err.Error())
	}
	if sourcePriceMinor <= 0 {
		return Breakdown{}, fmt.Errorf("source price must be positive: %w", ErrInvalidInput)
	}
	if math.IsNaN(weightKg) || math.IsInf(weightKg, 0) || weightKg <= 0 {
		return Breakdown{}, fmt.Errorf("weight must be positive: %w", ErrInvalidInput)
	}
	weight := decimal.NewFromFloat(weightKg)
	if weight.GreaterThan(maxWeight) {
		return Breakdown{}, fmt.Errorf("weight %s kg exceeds %d kg: %w", weight.String(), MaxWeightKg, ErrInvalidInput)
	}

	supplier := decimal.NewFromInt(sourcePriceMinor).Mul(rates.ExchangeRate)
	transport := rates.TransportBase.Add(weight.Mul(rates.TransportPerKg))
	customsRate, fallback := rates.CustomsRate(category)
	customs := supplier.Mul(customsRate)
	landed := supplier.Add(transport).Add(customs)
	margin := landed.Mul(rates.MarginRate)
	final := landed.Add(margin).Round(0).IntPart()

	b := Breakdown{
		SupplierPrice:    supplier.Round(0).IntPart(),
		TransportCost:    transport.Round(0).IntPart(),
		CustomsCost:      customs.Round(0).IntPart(),
		MarginCost:       margin.Round(0).IntPart(),
		FinalPrice:       final,
		Currency:         rates.DestinationCurrency,
		Category:         category,
		CustomsRate:      customsRate,
		CategoryFallback: fallback,
		SnapshotVersion:  rates.Version,
	}
	carryRemainder(&b)
	return b, nil
}

// carryRemainder makes the lines add up to FinalPrice. A positive remainder goes
// to the margin; a negative one is taken from margin, supplier, customs and
// transport in that order, never pushing a line below zero. Each line rounds up
// by at most half a unit, so the lines always hold enough to cover it.
func carryRemainder(b *Breakdown) {
	rem := b.FinalPrice - (b.Landed() + b.MarginCost)
	if rem >= 0 {
		b.MarginCost += rem
		return
	}
	for _, line := range []*Money{&b.MarginCost, &b.SupplierPrice, &b.CustomsCost, &b.TransportCost} {
		take := min(*line, -rem)
		*line -= take
		rem += take
		if rem == 0 {
			return
		}
	}
}

// Item describes a priced line item used for totals calculation.
type Item struct {
	Qty  int
	Unit Breakdown
}

// Summary aggregates computed pricing components over several lines.
type Summary struct {
	Supplier  Money `json:"supplier"`
	Transport Money `json:"transport"`
	Customs   Money `json:"customs"`
	Margin    Money `json:"margin"`
	Total     Money `json:"total"`
}

// Compute sums line breakdowns multiplied by their quantities. Lines with a
// non-positive quantity are ignored.
func Compute(items []Item) Summary {
	var s Summary
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		q := Money(it.Qty)
		s.Supplier += q * it.Unit.SupplierPrice
		s.Transport += q * it.Unit.TransportCost
		s.Customs += q * it.Unit.CustomsCost
		s.Margin += q * it.Unit.MarginCost
		s.Total += q * it.Unit.FinalPrice
	}
	return s
}
