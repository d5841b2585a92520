package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/inventory"
	"github.com/talgya/chainflow/internal/shipment"
)

// A distribution center dispatches at most this many orders per cycle.
const distributionDispatchCap = 5

// Distribution holds finished goods in a warehouse and books delivery
// orders out to retail across its serviced zones.
type Distribution struct {
	Core

	Warehouse *inventory.Ledger
	Outbound  *shipment.Manifest

	ShippingZones []string

	OrdersCreated   int
	OrdersDelivered int

	rng *entropy.Source
}

// NewDistribution creates a distribution center serving the given
// zones. Unknown zones are rejected at order time, not here.
func NewDistribution(id, name string, capacity float64, zones []string, rng *entropy.Source) *Distribution {
	d := &Distribution{
		Core:          newCore(id, name, StageDistribution, capacity),
		Warehouse:     inventory.NewLedger(capacity),
		Outbound:      shipment.NewManifest(id, distributionDispatchCap),
		ShippingZones: zones,
		rng:           rng,
	}
	slog.Info("distribution agent ready", "agent", id, "name", name, "zones", zones)
	return d
}

// ServesZone reports whether the center can deliver to the zone.
func (d *Distribution) ServesZone(zone string) bool {
	for _, z := range d.ShippingZones {
		if z == zone {
			return true
		}
	}
	return false
}

// CreateOrder reserves warehouse stock and books a delivery into the
// zone. The transit time comes from the zone's route at dispatch.
func (d *Distribution) CreateOrder(now time.Time, product string, quantity float64, destination, zone string) (*shipment.Shipment, error) {
	if !d.ServesZone(zone) {
		return nil, fmt.Errorf("%s does not serve zone %s: %w", d.ID, zone, ErrUnsupportedZone)
	}
	s, err := d.Outbound.Book(now, d.Warehouse, product, quantity, destination, 1.0, 0)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.Zone = zone
	d.OrdersCreated++
	slog.Info("order created", "agent", d.ID, "order", s.ID,
		"product", product, "quantity", quantity, "zone", zone)
	return s, nil
}

// DispatchOrders loads up to the per-cycle cap of pending orders.
func (d *Distribution) DispatchOrders(now time.Time) []*shipment.Shipment {
	return d.Outbound.Dispatch(now, d.rng)
}

// CompleteOrder marks a dispatched order delivered and updates the
// delivery stats.
func (d *Distribution) CompleteOrder(id string, now time.Time) (*shipment.Shipment, error) {
	s, err := d.Outbound.Complete(id, now)
	if err != nil {
		return nil, err
	}
	d.OrdersDelivered++
	return s, nil
}

// OnTimeRate returns the fraction of completed orders delivered within
// their route's transit estimate.
func (d *Distribution) OnTimeRate() float64 {
	return d.Outbound.OnTimeRate()
}
