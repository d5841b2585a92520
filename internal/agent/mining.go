package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/inventory"
	"github.com/talgya/chainflow/internal/shipment"
)

// Mining extracts raw ore from its reserves into on-site storage and
// ships it downstream. Unlike every other stage it creates material
// rather than receiving it.
type Mining struct {
	Core

	OreTypes       []string
	ExtractionRate float64 // tons per extraction call

	Store    *inventory.Ledger
	Outbound *shipment.Manifest

	// Per-ore state, drawn from the entropy source at construction the
	// way the reference mine seeds its deposits.
	Reserves       map[string]float64
	OreQuality     map[string]float64
	ExtractionCost map[string]float64 // per ton

	Efficiency float64 // equipment efficiency, 1.0 = nominal

	TotalExtracted  float64
	ExtractionCosts float64
	rng             *entropy.Source
}

// ExtractionResult reports one extraction operation.
type ExtractionResult struct {
	Material          string  `json:"material"`
	Quantity          float64 `json:"quantity"`
	Quality           float64 `json:"quality"`
	CostPerTon        float64 `json:"cost_per_ton"`
	RemainingReserves float64 `json:"remaining_reserves"`
	StoredTotal       float64 `json:"stored_total"`
}

// NewMining creates a mine with randomized reserves, quality grades,
// and extraction costs per ore type.
func NewMining(id, name string, capacity float64, oreTypes []string, extractionRate float64, rng *entropy.Source) *Mining {
	m := &Mining{
		Core:           newCore(id, name, StageMining, capacity),
		OreTypes:       oreTypes,
		ExtractionRate: extractionRate,
		Store:          inventory.NewLedger(capacity),
		Outbound:       shipment.NewManifest(id, 0), // mines load everything per dispatch
		Reserves:       make(map[string]float64, len(oreTypes)),
		OreQuality:     make(map[string]float64, len(oreTypes)),
		ExtractionCost: make(map[string]float64, len(oreTypes)),
		Efficiency:     1.0,
		rng:            rng,
	}
	for _, ore := range oreTypes {
		m.Reserves[ore] = rng.Uniform(1000, 5000)
		m.OreQuality[ore] = rng.Uniform(0.5, 1.0)
		m.ExtractionCost[ore] = rng.Uniform(10, 50)
	}
	slog.Info("mining agent ready",
		"agent", id, "name", name,
		"capacity", capacity, "rate", extractionRate,
		"ores", oreTypes,
	)
	return m
}

func (m *Mining) supports(ore string) bool {
	for _, o := range m.OreTypes {
		if o == ore {
			return true
		}
	}
	return false
}

// Extract pulls ore from the ground into mine storage. A requested
// quantity is capped by the extraction rate; zero means one nominal
// extraction with ±20% variability scaled by equipment efficiency. The
// amount is then clamped to remaining reserves and storage headroom —
// extraction never goes negative and never overfills the mine.
func (m *Mining) Extract(now time.Time, ore string, quantity float64) (ExtractionResult, error) {
	if !m.supports(ore) {
		return ExtractionResult{}, fmt.Errorf("mine %s does not produce %s: %w", m.ID, ore, ErrUnsupportedMaterial)
	}

	amount := quantity
	if amount > 0 {
		if amount > m.ExtractionRate {
			amount = m.ExtractionRate
		}
	} else {
		amount = m.ExtractionRate * m.rng.Uniform(0.8, 1.2) * m.Efficiency
	}

	if reserves := m.Reserves[ore]; amount > reserves {
		slog.Warn("limited reserves", "agent", m.ID, "ore", ore, "requested", amount, "available", reserves)
		amount = reserves
	}
	if headroom := m.Store.Headroom(); amount > headroom {
		slog.Warn("storage near capacity", "agent", m.ID, "requested", amount, "headroom", headroom)
		amount = headroom
	}
	if amount <= 0 {
		return ExtractionResult{}, fmt.Errorf("extract %s at %s: nothing extractable", ore, m.ID)
	}

	m.Reserves[ore] -= amount
	m.Store.Add(ore, amount)
	m.TotalExtracted += amount
	m.ExtractionCosts += amount * m.ExtractionCost[ore]

	slog.Info("extracted", "agent", m.ID, "ore", ore, "tons", fmt.Sprintf("%.1f", amount),
		"stored_total", fmt.Sprintf("%.1f", m.Store.Total()))

	return ExtractionResult{
		Material:          ore,
		Quantity:          amount,
		Quality:           m.OreQuality[ore],
		CostPerTon:        m.ExtractionCost[ore],
		RemainingReserves: m.Reserves[ore],
		StoredTotal:       m.Store.Total(),
	}, nil
}

// Ship books an outbound shipment of extracted ore, reserving it from
// mine storage.
func (m *Mining) Ship(now time.Time, ore string, quantity float64, destination string) (*shipment.Shipment, error) {
	if !m.supports(ore) {
		return nil, fmt.Errorf("mine %s does not produce %s: %w", m.ID, ore, ErrUnsupportedMaterial)
	}
	return m.Outbound.Book(now, m.Store, ore, quantity, destination, m.OreQuality[ore], m.ExtractionCost[ore])
}

// DispatchAll loads every pending shipment for transport.
func (m *Mining) DispatchAll(now time.Time) []*shipment.Shipment {
	return m.Outbound.Dispatch(now, m.rng)
}
