package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/entropy"
)

func newTestStore(t *testing.T) *Retail {
	t.Helper()
	return NewRetail("RETAIL_01", "Building & Farm Supply", 2000,
		[]string{"direct_sales", "online"},
		[]string{"agricultural", "commercial"},
		entropy.NewSource(23))
}

func sellValues(overrides map[string]any) decision.Values {
	vals := decision.Values{
		"sales_channel":    "direct_sales",
		"delivery_method":  "standard_delivery",
		"pricing_strategy": "standard",
		"priority_level":   "normal",
		"customer_type":    "returning",
	}
	for k, v := range overrides {
		vals[k] = v
	}
	return vals
}

func TestStockSeedsPriceAndDemand(t *testing.T) {
	r := newTestStore(t)

	accepted, err := r.Stock("Bagged_Fertilizer", 400)
	require.NoError(t, err)
	assert.Equal(t, 400.0, accepted)

	// 25 base price with at most 15% market variation.
	price := r.Prices["Bagged_Fertilizer"]
	assert.GreaterOrEqual(t, price, 25*0.85-1e-9)
	assert.Less(t, price, 25*1.15)

	demand := r.Demand["Bagged_Fertilizer"]
	assert.GreaterOrEqual(t, demand, 0.3)
	assert.Less(t, demand, 0.8)

	// Restocking the same product keeps the established price.
	r.Stock("Bagged_Fertilizer", 100)
	assert.Equal(t, price, r.Prices["Bagged_Fertilizer"])
}

func TestStockUnknownProductUsesDefaultBase(t *testing.T) {
	r := newTestStore(t)
	_, err := r.Stock("Garden_Gnomes", 10)
	require.NoError(t, err)

	price := r.Prices["Garden_Gnomes"]
	assert.GreaterOrEqual(t, price, 50*0.85-1e-9)
	assert.Less(t, price, 50*1.15)
}

func TestSellAppliesPricingMultipliers(t *testing.T) {
	r := newTestStore(t)
	_, err := r.Stock("Steel_Beams", 2000)
	require.NoError(t, err)
	base := r.Prices["Steel_Beams"]

	// Standard strategy, returning customer, small quantity: list price.
	sale, err := r.Sell(testStart, "Steel_Beams", 10, "commercial", sellValues(nil))
	require.NoError(t, err)
	assert.InDelta(t, base, sale.UnitPrice, 1e-9)
	assert.InDelta(t, base*10, sale.Revenue, 1e-6)

	// Promotional pricing for a wholesale buyer over 100 units stacks
	// all three discounts.
	sale, err = r.Sell(testStart, "Steel_Beams", 120, "commercial", sellValues(map[string]any{
		"pricing_strategy": "promotional",
		"customer_type":    "wholesale",
	}))
	require.NoError(t, err)
	assert.InDelta(t, base*0.85*0.80*0.95, sale.UnitPrice, 1e-9)

	// Bulk discount only applies above 50 units.
	sale, err = r.Sell(testStart, "Steel_Beams", 40, "commercial", sellValues(map[string]any{
		"pricing_strategy": "bulk_discount",
	}))
	require.NoError(t, err)
	assert.InDelta(t, base, sale.UnitPrice, 1e-9)

	sale, err = r.Sell(testStart, "Steel_Beams", 60, "commercial", sellValues(map[string]any{
		"pricing_strategy": "bulk_discount",
	}))
	require.NoError(t, err)
	assert.InDelta(t, base*0.90, sale.UnitPrice, 1e-9)
}

func TestSellComputesDeliveryTime(t *testing.T) {
	r := newTestStore(t)
	_, err := r.Stock("Bagged_Fertilizer", 500)
	require.NoError(t, err)

	// Express delivery into an agricultural zone: 24h base + 12h delay.
	sale, err := r.Sell(testStart, "Bagged_Fertilizer", 20, "agricultural", sellValues(map[string]any{
		"delivery_method": "express_delivery",
	}))
	require.NoError(t, err)
	assert.Equal(t, 36.0, sale.DeliveryHours)

	// Pickup from a commercial customer: 2h base + 4h delay.
	sale, err = r.Sell(testStart, "Bagged_Fertilizer", 20, "commercial", sellValues(map[string]any{
		"delivery_method": "pickup",
	}))
	require.NoError(t, err)
	assert.Equal(t, 6.0, sale.DeliveryHours)
}

func TestSellTracksRevenueMetrics(t *testing.T) {
	r := newTestStore(t)
	_, err := r.Stock("Bagged_Fertilizer", 500)
	require.NoError(t, err)

	s1, err := r.Sell(testStart, "Bagged_Fertilizer", 100, "agricultural", sellValues(nil))
	require.NoError(t, err)
	s2, err := r.Sell(testStart, "Bagged_Fertilizer", 50, "commercial", sellValues(map[string]any{
		"sales_channel": "online",
	}))
	require.NoError(t, err)

	assert.InDelta(t, s1.Revenue+s2.Revenue, r.TotalRevenue, 1e-6)
	assert.Equal(t, 150.0, r.UnitsSold)
	assert.InDelta(t, s1.Revenue, r.RevenueByChannel["direct_sales"], 1e-9)
	assert.InDelta(t, s2.Revenue, r.RevenueByChannel["online"], 1e-9)
	assert.Equal(t, 1, r.SalesByZone["agricultural"])
	assert.Equal(t, 350.0, r.Products.Quantity("Bagged_Fertilizer"), "sold stock is consumed")
}

func TestSellRejectsUnservedZoneAndOversell(t *testing.T) {
	r := newTestStore(t)
	_, err := r.Stock("Bagged_Fertilizer", 100)
	require.NoError(t, err)

	_, err = r.Sell(testStart, "Bagged_Fertilizer", 10, "residential", sellValues(nil))
	assert.ErrorIs(t, err, ErrUnsupportedZone)

	_, err = r.Sell(testStart, "Bagged_Fertilizer", 500, "commercial", sellValues(nil))
	assert.Error(t, err)
	assert.Equal(t, 100.0, r.Products.Quantity("Bagged_Fertilizer"))
}

func TestFertilizerSchemaHasSeasonalFields(t *testing.T) {
	r := newTestStore(t)

	schema := r.DecisionSchema("Bagged_Fertilizer")
	assert.Contains(t, schema, "local_delivery_options")
	assert.Contains(t, schema, "application_season")

	schema = r.DecisionSchema("Steel_Beams")
	assert.NotContains(t, schema, "local_delivery_options")
}
