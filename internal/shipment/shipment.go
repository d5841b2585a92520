// Package shipment implements the handoff protocol between two agents:
// a reserved quantity of one material moving through the
// pending_pickup → dispatched → delivered lifecycle. Shipment creation
// is the only path by which material leaves one agent's ledger for
// another's.
package shipment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/inventory"
)

// Status is the lifecycle state of a shipment.
type Status string

const (
	StatusPending    Status = "pending_pickup"
	StatusDispatched Status = "dispatched"
	StatusDelivered  Status = "delivered"
)

// Shipment is a reserved, in-transit quantity of one material.
type Shipment struct {
	ID          string  `json:"id"`
	Material    string  `json:"material"`
	Quantity    float64 `json:"quantity"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`

	// Quality and cost carried over from the origin stage.
	Quality float64 `json:"quality"`
	Cost    float64 `json:"cost"`

	Zone  string `json:"zone,omitempty"`
	Route string `json:"route,omitempty"`

	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	DispatchedAt     time.Time `json:"dispatched_at"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
	DeliveredAt      time.Time `json:"delivered_at"`

	// Delivery outcome, populated by Complete.
	TransitTime time.Duration `json:"transit_time"`
	OnTime      bool          `json:"on_time"`

	// AcceptedQuantity records how much the destination actually took;
	// the remainder was refunded to the origin.
	AcceptedQuantity float64 `json:"accepted_quantity"`
}

// zoneRoutes maps a delivery zone to its route name and nominal transit
// time. Unknown zones fall through to a 24h catch-all.
var zoneRoutes = map[string]struct {
	route   string
	transit time.Duration
}{
	"Zone_A": {"Route_A", 8 * time.Hour},
	"Zone_B": {"Route_B", 12 * time.Hour},
	"Zone_C": {"Route_C", 16 * time.Hour},
}

const fallbackTransit = 24 * time.Hour

// Manifest holds an agent's outbound shipments: the pending queue and
// everything in transit.
type Manifest struct {
	agentID string

	// MaxDispatch bounds how many pending shipments one Dispatch call may
	// move to in-transit. Zero means unbounded (mining loads everything);
	// distribution centers use 5.
	MaxDispatch int

	pending   []*Shipment
	inTransit map[string]*Shipment
	history   []*Shipment
}

// NewManifest creates an empty manifest for an agent.
func NewManifest(agentID string, maxDispatch int) *Manifest {
	return &Manifest{
		agentID:     agentID,
		MaxDispatch: maxDispatch,
		inTransit:   make(map[string]*Shipment),
	}
}

// Book creates a pending shipment, reserving its quantity from the
// origin ledger. The reservation fails with ErrInsufficientStock when
// the origin holds less than requested.
func (m *Manifest) Book(now time.Time, origin *inventory.Ledger, material string, quantity float64, destination string, quality, cost float64) (*Shipment, error) {
	if err := origin.Reserve(material, quantity); err != nil {
		return nil, fmt.Errorf("book shipment: %w", err)
	}
	s := &Shipment{
		ID:          uuid.NewString(),
		Material:    material,
		Quantity:    quantity,
		Origin:      m.agentID,
		Destination: destination,
		Quality:     quality,
		Cost:        cost,
		Status:      StatusPending,
		CreatedAt:   now,
	}
	m.pending = append(m.pending, s)
	return s, nil
}

// Dispatch moves pending shipments to in-transit, assigning each a route
// and estimated arrival. Transit time comes from the zone table when a
// zone is set, otherwise a uniform 2–8h haul (the mine-to-plant case).
// Returns the shipments dispatched by this call.
func (m *Manifest) Dispatch(now time.Time, rng *entropy.Source) []*Shipment {
	n := len(m.pending)
	if m.MaxDispatch > 0 && n > m.MaxDispatch {
		n = m.MaxDispatch
	}
	dispatched := m.pending[:n]
	m.pending = m.pending[n:]

	for _, s := range dispatched {
		transit := time.Duration(rng.Uniform(2, 8) * float64(time.Hour))
		if s.Zone != "" {
			if zr, ok := zoneRoutes[s.Zone]; ok {
				s.Route, transit = zr.route, zr.transit
			} else {
				s.Route, transit = "Unknown", fallbackTransit
			}
		}
		s.Status = StatusDispatched
		s.DispatchedAt = now
		s.EstimatedArrival = now.Add(transit)
		m.inTransit[s.ID] = s
	}
	return dispatched
}

// Deliver credits the shipment's quantity to the destination ledger,
// clipping at headroom. The unaccepted remainder is refunded to the
// origin ledger so material is never silently destroyed. Returns the
// accepted quantity; zero with a CapacityExceeded error means the whole
// shipment bounced.
func Deliver(s *Shipment, origin, destination *inventory.Ledger) (float64, error) {
	accepted, err := destination.Receive(s.Material, s.Quantity)
	if refund := s.Quantity - accepted; refund > 0 && origin != nil {
		origin.Add(s.Material, refund)
	}
	s.AcceptedQuantity = accepted
	if err != nil {
		return 0, fmt.Errorf("deliver %s: %w", s.ID, err)
	}
	return accepted, nil
}

// Complete marks an in-transit shipment delivered, recording transit
// time and whether it beat its estimated arrival.
func (m *Manifest) Complete(id string, now time.Time) (*Shipment, error) {
	s, ok := m.inTransit[id]
	if !ok {
		return nil, fmt.Errorf("shipment %s not in transit", id)
	}
	s.Status = StatusDelivered
	s.DeliveredAt = now
	s.TransitTime = now.Sub(s.DispatchedAt)
	s.OnTime = !now.After(s.EstimatedArrival)
	delete(m.inTransit, id)
	m.history = append(m.history, s)
	return s, nil
}

// PendingLen returns the number of booked, undispatched shipments.
func (m *Manifest) PendingLen() int { return len(m.pending) }

// InTransit returns the shipments currently dispatched and undelivered.
func (m *Manifest) InTransit() []*Shipment {
	out := make([]*Shipment, 0, len(m.inTransit))
	for _, s := range m.inTransit {
		out = append(out, s)
	}
	return out
}

// History returns completed shipments in delivery order.
func (m *Manifest) History() []*Shipment { return m.history }

// OnTimeRate returns the fraction of completed shipments that arrived by
// their estimate, or 1.0 when nothing has been delivered yet.
func (m *Manifest) OnTimeRate() float64 {
	if len(m.history) == 0 {
		return 1.0
	}
	onTime := 0
	for _, s := range m.history {
		if s.OnTime {
			onTime++
		}
	}
	return float64(onTime) / float64(len(m.history))
}
