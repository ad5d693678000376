package pricing

import (
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioRates() *RateSnapshot {
	return &RateSnapshot{
		Version:             7,
		SourceCurrency:      "KRW",
		DestinationCurrency: "XOF",
		ExchangeRate:        decimal.RequireFromString("0.65"),
		TransportBase:       decimal.NewFromInt(50000),
		TransportPerKg:      decimal.NewFromInt(1500),
		CustomsByCategory: map[Category]decimal.Decimal{
			CategoryVehicles: decimal.RequireFromString("0.30"),
		},
		MarginRate: decimal.RequireFromString("0.35"),
	}
}

func TestComputePriceVehicleScenario(t *testing.T) {
	b, err := ComputePrice(5_000_000, 50, CategoryVehicles, scenarioRates())
	require.NoError(t, err)

	assert.Equal(t, Money(3_250_000), b.SupplierPrice)
	assert.Equal(t, Money(125_000), b.TransportCost)
	assert.Equal(t, Money(975_000), b.CustomsCost)
	assert.Equal(t, Money(4_350_000), b.Landed())
	assert.Equal(t, Money(1_522_500), b.MarginCost)
	assert.Equal(t, Money(5_872_500), b.FinalPrice)
	assert.False(t, b.CategoryFallback)
	assert.Equal(t, int64(7), b.SnapshotVersion)
	assert.Equal(t, "XOF", b.Currency)
}

func TestComputePriceMarginOnLandedSubtotal(t *testing.T) {
	b, err := ComputePrice(5_000_000, 50, CategoryVehicles, scenarioRates())
	require.NoError(t, err)
	// 35% of the supplier price alone would be 1,137,500.
	assert.NotEqual(t, Money(1_137_500), b.MarginCost)
}

func TestComputePriceUnknownCategoryFallsBack(t *testing.T) {
	b, err := ComputePrice(1_000_000, 10, Category("hoverboards"), scenarioRates())
	require.NoError(t, err)
	assert.True(t, b.CategoryFallback)
	assert.True(t, b.CustomsRate.Equal(DefaultCustomsRate))
	assert.Equal(t, Money(130_000), b.CustomsCost) // 650,000 * 0.20

	// A known category without a configured rate also falls back.
	b, err = ComputePrice(1_000_000, 10, CategoryBrakes, scenarioRates())
	require.NoError(t, err)
	assert.True(t, b.CategoryFallback)
	assert.Equal(t, Money(130_000), b.CustomsCost)
}

func TestComputePriceWeightBoundary(t *testing.T) {
	rates := scenarioRates()

	_, err := ComputePrice(1_000, MaxWeightKg, CategoryVehicles, rates)
	require.NoError(t, err)

	_, err = ComputePrice(1_000, 10000.01, CategoryVehicles, rates)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestComputePriceRejectsInvalidInput(t *testing.T) {
	rates := scenarioRates()
	cases := []struct {
		name   string
		price  Money
		weight float64
	}{
		{name: "zero price", price: 0, weight: 1},
		{name: "negative price", price: -10, weight: 1},
		{name: "zero weight", price: 100, weight: 0},
		{name: "negative weight", price: 100, weight: -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputePrice(tc.price, tc.weight, CategoryVehicles, rates)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestComputePriceRequiresSnapshot(t *testing.T) {
	_, err := ComputePrice(100, 1, CategoryVehicles, nil)
	require.ErrorIs(t, err, ErrRateSnapshotMissing)

	broken := scenarioRates()
	broken.ExchangeRate = decimal.Zero
	_, err = ComputePrice(100, 1, CategoryVehicles, broken)
	require.True(t, errors.Is(err, ErrRateSnapshotMissing))
}

func TestComputePriceSumInvariant(t *testing.T) {
	faker := gofakeit.New(42)
	rates := scenarioRates()
	rates.ExchangeRate = decimal.RequireFromString("0.4537")
	rates.TransportPerKg = decimal.RequireFromString("1499.75")
	rates.MarginRate = decimal.RequireFromString("0.1333")
	rates.CustomsByCategory[CategoryElectronics] = decimal.RequireFromString("0.177")

	categories := []Category{CategoryVehicles, CategoryElectronics, CategoryOther, Category("unknown")}
	for i := 0; i < 500; i++ {
		price := Money(faker.IntRange(1, 90_000_000))
		weight := faker.Float64Range(0.01, MaxWeightKg)
		cat := categories[i%len(categories)]

		b, err := ComputePrice(price, weight, cat, rates)
		require.NoError(t, err)
		require.Equal(t, b.FinalPrice, b.SupplierPrice+b.TransportCost+b.CustomsCost+b.MarginCost,
			"price=%d weight=%f category=%s", price, weight, cat)
		require.GreaterOrEqual(t, b.SupplierPrice, Money(0))
		require.GreaterOrEqual(t, b.MarginCost, Money(0))
	}

	rates.TransportBase = decimal.RequireFromString("0.5")
	rates.TransportPerKg = decimal.RequireFromString("0.5")
	for price := Money(1); price <= 50; price++ {
		b, err := ComputePrice(price, 1, CategoryElectronics, rates)
		require.NoError(t, err)
		require.Equal(t, b.FinalPrice, b.SupplierPrice+b.TransportCost+b.CustomsCost+b.MarginCost, "price=%d", price)
		require.GreaterOrEqual(t, b.SupplierPrice, Money(0), "price=%d", price)
		require.GreaterOrEqual(t, b.TransportCost, Money(0), "price=%d", price)
	}
}

func TestComputePriceSmallAmountsKeepLinesNonNegative(t *testing.T) {
	rates := scenarioRates()
	rates.ExchangeRate = decimal.RequireFromString("0.5")
	rates.TransportBase = decimal.RequireFromString("0.5")
	rates.TransportPerKg = decimal.Zero
	rates.CustomsByCategory[CategoryBrakes] = decimal.NewFromInt(1)
	rates.MarginRate = decimal.RequireFromString("0.4")

	// Every line rounds up by half a unit while the total rounds down.
	b, err := ComputePrice(1, 1, CategoryBrakes, rates)
	require.NoError(t, err)
	require.EqualValues(t, 2, b.FinalPrice)
	require.Equal(t, b.FinalPrice, b.SupplierPrice+b.TransportCost+b.CustomsCost+b.MarginCost)
	for _, line := range []Money{b.SupplierPrice, b.TransportCost, b.CustomsCost, b.MarginCost} {
		require.GreaterOrEqual(t, line, Money(0), "%+v", b)
	}

	faker := gofakeit.New(11)
	for i := 0; i < 2000; i++ {
		rates.ExchangeRate = decimal.NewFromFloat(faker.Float64Range(0.01, 3)).Round(4)
		rates.TransportBase = decimal.NewFromFloat(faker.Float64Range(0, 5)).Round(2)
		rates.TransportPerKg = decimal.NewFromFloat(faker.Float64Range(0, 2)).Round(2)
		rates.CustomsByCategory[CategoryBrakes] = decimal.NewFromFloat(faker.Float64Range(0, 1.5)).Round(3)
		rates.MarginRate = decimal.NewFromFloat(faker.Float64Range(0, 1)).Round(3)
		price := Money(faker.IntRange(1, 20))
		weight := faker.Float64Range(0.01, 5)

		b, err := ComputePrice(price, weight, CategoryBrakes, rates)
		require.NoError(t, err)
		require.Equal(t, b.FinalPrice, b.SupplierPrice+b.TransportCost+b.CustomsCost+b.MarginCost)
		for _, line := range []Money{b.SupplierPrice, b.TransportCost, b.CustomsCost, b.MarginCost} {
			require.GreaterOrEqual(t, line, Money(0), "price=%d weight=%f %+v", price, weight, b)
		}
	}
}

func TestComputePriceMonotonic(t *testing.T) {
	rates := scenarioRates()
	rates.ExchangeRate = decimal.RequireFromString("0.0731")

	var prev Money
	for price := Money(1); price < 20_000; price += 7 {
		b, err := ComputePrice(price, 3.5, CategoryVehicles, rates)
		require.NoError(t, err)
		require.GreaterOrEqual(t, b.FinalPrice, prev, "price %d", price)
		prev = b.FinalPrice
	}

	var prevTransport Money
	for w := 0.25; w <= 200; w += 0.25 {
		b, err := ComputePrice(10_000, w, CategoryVehicles, rates)
		require.NoError(t, err)
		require.GreaterOrEqual(t, b.TransportCost, prevTransport, "weight %f", w)
		prevTransport = b.TransportCost
	}
}

func TestComputeSummary(t *testing.T) {
	unit, err := ComputePrice(5_000_000, 50, CategoryVehicles, scenarioRates())
	require.NoError(t, err)

	s := Compute([]Item{{Qty: 2, Unit: unit}, {Qty: 0, Unit: unit}})
	assert.Equal(t, Money(11_745_000), s.Total)
	assert.Equal(t, s.Total, s.Supplier+s.Transport+s.Customs+s.Margin)
}
