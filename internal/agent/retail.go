package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/inventory"
)

// Base unit prices before market variation.
var retailBasePrices = map[string]float64{
	"Bagged_Fertilizer":     25.0,
	"Steel_Beams":           150.0,
	"Steel_Products":        120.0,
	"Chemical_Products":     80.0,
	"Industrial_Components": 200.0,
}

const retailDefaultPrice = 50.0

var pricingStrategyMultipliers = map[string]float64{
	"standard":      1.0,
	"promotional":   0.85,
	"bulk_discount": 0.90,
	"premium":       1.15,
}

var customerTypeMultipliers = map[string]float64{
	"new":       0.95,
	"returning": 1.0,
	"vip":       0.90,
	"wholesale": 0.80,
}

var deliveryMethodHours = map[string]float64{
	"standard_delivery": 48,
	"express_delivery":  24,
	"pickup":            2,
	"bulk_delivery":     72,
}

var customerZoneDelayHours = map[string]float64{
	"residential":  0,
	"commercial":   4,
	"industrial":   8,
	"agricultural": 12,
}

// Sale records one completed retail transaction.
type Sale struct {
	ID            string    `json:"id"`
	Product       string    `json:"product"`
	Quantity      float64   `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	Revenue       float64   `json:"revenue"`
	Channel       string    `json:"channel"`
	CustomerType  string    `json:"customer_type"`
	CustomerZone  string    `json:"customer_zone"`
	DeliveryHours float64   `json:"delivery_hours"`
	SoldAt        time.Time `json:"sold_at"`
}

// Retail is the final stage: it stocks products, prices them against
// local demand, and sells through its channels.
type Retail struct {
	Core

	Products *inventory.Ledger

	SalesChannels []string
	CustomerZones []string

	Prices map[string]float64
	Demand map[string]float64

	Sales        []Sale
	TotalRevenue float64
	UnitsSold    float64

	RevenueByChannel map[string]float64
	SalesByZone      map[string]int

	rng *entropy.Source
}

// NewRetail creates a retail outlet. Prices and demand levels for a
// product are seeded lazily on first stock arrival.
func NewRetail(id, name string, capacity float64, channels, zones []string, rng *entropy.Source) *Retail {
	r := &Retail{
		Core:             newCore(id, name, StageRetail, capacity),
		Products:         inventory.NewLedger(capacity),
		SalesChannels:    channels,
		CustomerZones:    zones,
		Prices:           make(map[string]float64),
		Demand:           make(map[string]float64),
		RevenueByChannel: make(map[string]float64),
		SalesByZone:      make(map[string]int),
		rng:              rng,
	}
	slog.Info("retail agent ready", "agent", id, "name", name,
		"channels", channels, "zones", zones)
	return r
}

// Stock receives product into the store, seeding its price and demand
// if this is the first arrival. Returns the accepted quantity.
func (r *Retail) Stock(product string, quantity float64) (float64, error) {
	accepted, err := r.Products.Receive(product, quantity)
	if err != nil {
		return 0, err
	}
	if _, ok := r.Prices[product]; !ok {
		base, known := retailBasePrices[product]
		if !known {
			base = retailDefaultPrice
		}
		r.Prices[product] = base * r.rng.Variance(0.15)
		r.Demand[product] = r.rng.Uniform(0.3, 0.8)
	}
	return accepted, nil
}

// DecisionSchema publishes the operator inputs for selling a product.
// Fertilizer gets local delivery and season fields on top of the base
// set.
func (r *Retail) DecisionSchema(product string) decision.Schema {
	schema := decision.Schema{
		"sales_channel": decision.Choice(
			"Channel to sell through", r.SalesChannels, first(r.SalesChannels, "direct_sales")),
		"delivery_method": decision.Choice(
			"How the customer receives the order",
			[]string{"standard_delivery", "express_delivery", "pickup", "bulk_delivery"},
			"standard_delivery"),
		"pricing_strategy": decision.Choice(
			"Pricing strategy for this sale",
			[]string{"standard", "promotional", "bulk_discount", "premium"}, "standard"),
		"priority_level": decision.Choice(
			"Order fulfillment priority",
			[]string{"urgent", "normal", "batch"}, "normal"),
		"customer_type": decision.Choice(
			"Customer segment",
			[]string{"new", "returning", "vip", "wholesale"}, "returning"),
	}
	if product == "Bagged_Fertilizer" {
		schema["local_delivery_options"] = decision.OptionalChoice(
			"Local delivery arrangement for fertilizer orders",
			[]string{"same_day", "next_day", "scheduled"}, "next_day")
		schema["application_season"] = decision.OptionalChoice(
			"Intended application season",
			[]string{"spring", "summer", "fall"}, "spring")
	}
	return schema
}

// Sell executes a sale from a validated decision payload. The unit
// price applies the strategy, customer and bulk multipliers to the
// listed price; delivery time is the method's base plus the zone delay.
func (r *Retail) Sell(now time.Time, product string, quantity float64, customerZone string, values decision.Values) (*Sale, error) {
	if !r.servesCustomerZone(customerZone) {
		return nil, fmt.Errorf("%s does not serve customer zone %s: %w", r.ID, customerZone, ErrUnsupportedZone)
	}
	if err := r.Products.Reserve(product, quantity); err != nil {
		return nil, fmt.Errorf("sell %s: %w", product, err)
	}

	base, ok := r.Prices[product]
	if !ok {
		base = retailDefaultPrice
	}
	strategy := values.String("pricing_strategy")
	unit := base
	if m, ok := pricingStrategyMultipliers[strategy]; ok {
		if strategy != "bulk_discount" || quantity > 50 {
			unit *= m
		}
	}
	customerType := values.String("customer_type")
	if m, ok := customerTypeMultipliers[customerType]; ok {
		unit *= m
	}
	switch {
	case quantity > 500:
		unit *= 0.90
	case quantity > 100:
		unit *= 0.95
	}

	method := values.String("delivery_method")
	hours, ok := deliveryMethodHours[method]
	if !ok {
		hours = deliveryMethodHours["standard_delivery"]
	}
	hours += customerZoneDelayHours[customerZone]

	channel := values.String("sales_channel")
	sale := Sale{
		ID:            fmt.Sprintf("SALE_%s_%04d", r.ID, len(r.Sales)+1),
		Product:       product,
		Quantity:      quantity,
		UnitPrice:     unit,
		Revenue:       unit * quantity,
		Channel:       channel,
		CustomerType:  customerType,
		CustomerZone:  customerZone,
		DeliveryHours: hours,
		SoldAt:        now,
	}
	r.Sales = append(r.Sales, sale)
	r.TotalRevenue += sale.Revenue
	r.UnitsSold += quantity
	r.RevenueByChannel[channel] += sale.Revenue
	r.SalesByZone[customerZone]++

	slog.Info("sale completed", "agent", r.ID, "sale", sale.ID,
		"product", product, "quantity", quantity,
		"revenue", fmt.Sprintf("%.2f", sale.Revenue), "channel", channel)
	return &r.Sales[len(r.Sales)-1], nil
}

func (r *Retail) servesCustomerZone(zone string) bool {
	for _, z := range r.CustomerZones {
		if z == zone {
			return true
		}
	}
	return false
}

func first(options []string, fallback string) string {
	if len(options) > 0 {
		return options[0]
	}
	return fallback
}
