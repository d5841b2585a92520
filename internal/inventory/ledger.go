// Package inventory provides the capacity-bounded material ledger owned
// by every agent. All quantity mutation in the system goes through a
// Ledger; quantities are never negative and the stored total never
// exceeds capacity.
package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStock is returned when a reservation asks for more
	// of a material than the ledger holds. Never clamped.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrCapacityExceeded is returned when a receipt cannot accept any
	// quantity at all because the ledger is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// Ledger maps material name to a non-negative quantity, bounded by a
// fixed capacity on the total.
type Ledger struct {
	capacity float64
	stock    map[string]float64
}

// NewLedger creates an empty ledger with the given capacity.
func NewLedger(capacity float64) *Ledger {
	return &Ledger{
		capacity: capacity,
		stock:    make(map[string]float64),
	}
}

// Capacity returns the maximum total quantity the ledger may hold.
func (l *Ledger) Capacity() float64 { return l.capacity }

// Quantity returns the held quantity of one material.
func (l *Ledger) Quantity(material string) float64 { return l.stock[material] }

// Total returns the sum of all held quantities.
func (l *Ledger) Total() float64 {
	var total float64
	for _, qty := range l.stock {
		total += qty
	}
	return total
}

// Headroom returns the remaining capacity.
func (l *Ledger) Headroom() float64 {
	h := l.capacity - l.Total()
	if h < 0 {
		return 0
	}
	return h
}

// Utilization returns the fraction of capacity in use, in [0, 1].
func (l *Ledger) Utilization() float64 {
	if l.capacity <= 0 {
		return 0
	}
	return l.Total() / l.capacity
}

// Receive accepts up to headroom of the requested quantity and returns
// how much was accepted. A full ledger returns ErrCapacityExceeded and
// accepts nothing; a partial acceptance is not an error. The caller is
// responsible for refunding any unaccepted remainder to its origin.
func (l *Ledger) Receive(material string, quantity float64) (float64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("receive %s: non-positive quantity %.2f", material, quantity)
	}
	accepted := quantity
	if headroom := l.Headroom(); accepted > headroom {
		accepted = headroom
	}
	if accepted <= 0 {
		return 0, fmt.Errorf("receive %.2f %s: %w", quantity, material, ErrCapacityExceeded)
	}
	l.stock[material] += accepted
	return accepted, nil
}

// Reserve removes quantity from the ledger for a committed use (a queued
// job or a booked shipment). Fails with ErrInsufficientStock when the
// ledger holds less than requested; it never partially reserves.
func (l *Ledger) Reserve(material string, quantity float64) error {
	if quantity <= 0 {
		return fmt.Errorf("reserve %s: non-positive quantity %.2f", material, quantity)
	}
	held := l.stock[material]
	if held < quantity {
		return fmt.Errorf("reserve %.2f %s (held %.2f): %w", quantity, material, held, ErrInsufficientStock)
	}
	l.consume(material, quantity)
	return nil
}

// Add credits quantity unconditionally with respect to stock levels but
// still clips at capacity, returning the credited amount. Used by
// validated internal paths (job output, refunds).
func (l *Ledger) Add(material string, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}
	if headroom := l.Headroom(); quantity > headroom {
		quantity = headroom
	}
	if quantity <= 0 {
		return 0
	}
	l.stock[material] += quantity
	return quantity
}

func (l *Ledger) consume(material string, quantity float64) {
	remaining := l.stock[material] - quantity
	if remaining <= 0 {
		delete(l.stock, material)
		return
	}
	l.stock[material] = remaining
}

// Snapshot returns a copy of the current holdings.
func (l *Ledger) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(l.stock))
	for material, qty := range l.stock {
		out[material] = qty
	}
	return out
}
