package agent

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/inventory"
	"github.com/talgya/chainflow/internal/job"
	"github.com/talgya/chainflow/internal/recipe"
	"github.com/talgya/chainflow/internal/shipment"
)

// Storage split at a manufacturing plant: 60% incoming processed
// materials, 40% finished goods.
const (
	manufacturingRawShare      = 0.6
	manufacturingFinishedShare = 0.4
)

// Duration/cost multipliers by quality standard. Premium runs slower
// and costs more; industrial grade trades finish for throughput.
var qualityStandardMultipliers = map[string]float64{
	"standard":         1.0,
	"premium":          1.3,
	"industrial_grade": 0.8,
}

// Certification records a batch that passed quality control.
type Certification struct {
	Product         string    `json:"product"`
	BatchID         string    `json:"batch_id"`
	QualityStandard string    `json:"quality_standard"`
	Quantity        float64   `json:"quantity"`
	CertifiedAt     time.Time `json:"certified_at"`
}

// Manufacturing turns processed materials into finished products on its
// production lines, gating every completed batch through quality
// control before it reaches the finished goods store.
type Manufacturing struct {
	Core

	Recipes recipe.Book

	RawMaterials  *inventory.Ledger
	FinishedGoods *inventory.Ledger
	Outbound      *shipment.Manifest

	Queue          *job.Queue
	Certifications []Certification

	EnergySpent float64
	rng         *entropy.Source
}

// NewManufacturing creates a plant with one production line per name,
// each at a random 85–98% efficiency.
func NewManufacturing(id, name string, capacity float64, lines []string, recipes recipe.Book, rng *entropy.Source) *Manufacturing {
	raw := inventory.NewLedger(capacity * manufacturingRawShare)
	finished := inventory.NewLedger(capacity * manufacturingFinishedShare)

	jobLines := make([]job.Line, len(lines))
	for i, l := range lines {
		jobLines[i] = job.Line{
			Name:        l,
			Operational: true,
			Efficiency:  rng.Uniform(0.85, 0.98),
		}
	}

	m := &Manufacturing{
		Core:          newCore(id, name, StageManufacturing, capacity),
		Recipes:       recipes,
		RawMaterials:  raw,
		FinishedGoods: finished,
		Outbound:      shipment.NewManifest(id, 0),
		Queue:         job.NewQueue(id, raw, finished, jobLines, rng, 0.03),
		rng:           rng,
	}
	slog.Info("manufacturing agent ready", "agent", id, "name", name,
		"lines", len(lines), "recipes", len(recipes))
	return m
}

// CanManufacture reports whether any recipe consumes the material.
func (m *Manufacturing) CanManufacture(material string) bool {
	return len(m.Recipes.ForInput(material)) > 0
}

// Intake returns the raw materials ledger after checking the plant has
// a recipe for the material.
func (m *Manufacturing) Intake(material string) (*inventory.Ledger, error) {
	if !m.CanManufacture(material) {
		return nil, fmt.Errorf("%s has no recipe for %s: %w", m.ID, material, ErrUnsupportedMaterial)
	}
	return m.RawMaterials, nil
}

// DecisionSchema publishes the operator inputs for manufacturing with
// the named recipe. Product-specific fields appear for fertilizer and
// steel outputs.
func (m *Manufacturing) DecisionSchema(recipeName string, available float64) (decision.Schema, error) {
	r, ok := m.Recipes[recipeName]
	if !ok {
		return nil, fmt.Errorf("%s: unknown recipe %q", m.ID, recipeName)
	}
	maxBatch := available
	if m.Capacity < maxBatch {
		maxBatch = m.Capacity
	}
	// A sub-unit delivery still needs a valid range.
	minBatch := min(1.0, maxBatch)
	schema := decision.Schema{
		"production_priority": decision.Choice(
			"Production scheduling priority",
			[]string{"urgent", "normal", "batch_production"}, "normal"),
		"quality_standard": decision.Choice(
			"Quality standard for manufactured products",
			[]string{"standard", "premium", "industrial_grade"}, "standard"),
		"batch_size": decision.FloatRange(
			fmt.Sprintf("Production batch size (available materials for %.1f units)", available),
			minBatch, maxBatch, min(available, m.Capacity*0.7)),
		"quality_control_level": decision.Choice(
			"Level of quality control testing to perform",
			[]string{"basic", "standard", "enhanced"}, "standard"),
	}
	switch {
	case strings.Contains(r.Output, "Fertilizer"):
		schema["nutrient_blend"] = decision.Choice(
			"Fertilizer nutrient blend configuration",
			[]string{"standard_npk", "high_phosphorus", "balanced_mix"}, "standard_npk")
	case strings.Contains(r.Output, "Steel"):
		schema["alloy_composition"] = decision.Choice(
			"Steel alloy composition specification",
			[]string{"carbon_steel", "stainless_steel", "alloy_steel"}, "carbon_steel")
	}
	return schema, nil
}

// Manufacture enqueues a production job from a validated decision
// payload. All recipe inputs are reserved at enqueue; the quality
// standard maps onto the duration/cost multiplier and the QC gate.
func (m *Manufacturing) Manufacture(now time.Time, recipeName string, values decision.Values) (*job.Job, error) {
	r, ok := m.Recipes[recipeName]
	if !ok {
		return nil, fmt.Errorf("%s: unknown recipe %q", m.ID, recipeName)
	}
	standard := values.String("quality_standard")
	mult, ok := qualityStandardMultipliers[standard]
	if !ok {
		standard, mult = "standard", 1.0
	}
	j, err := m.Queue.Enqueue(now, job.Request{
		Recipe:    r,
		BatchSize: values.Float("batch_size"),
		// The standard's multiplier rides through the quality-target
		// scaling: target/reference == mult.
		QualityTarget:   recipe.ReferenceQuality * mult,
		QualityStandard: standard,
		QCLevel:         values.String("quality_control_level"),
		Priority:        job.ParsePriority(values.String("production_priority")),
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// RunOperations advances the production queue, certifying every batch
// that cleared quality control.
func (m *Manufacturing) RunOperations(now time.Time) []*job.Job {
	finished := m.Queue.Advance(now)
	for _, j := range finished {
		m.EnergySpent += j.EnergyCost
		if j.Status != job.StatusCompleted {
			continue
		}
		m.Certifications = append(m.Certifications, Certification{
			Product:         j.ExpectedOutputMaterial,
			BatchID:         j.ID,
			QualityStandard: j.QualityStandard,
			Quantity:        j.ActualOutputQuantity,
			CertifiedAt:     now,
		})
	}
	return finished
}

// Ship books an outbound shipment of finished product.
func (m *Manufacturing) Ship(now time.Time, product string, quantity float64, destination string) (*shipment.Shipment, error) {
	unitCost := 0.0
	if produced := m.totalManufactured(); produced > 0 {
		unitCost = m.EnergySpent / produced
	}
	return m.Outbound.Book(now, m.FinishedGoods, product, quantity, destination, 1.0, unitCost)
}

// DispatchAll loads every pending outbound shipment.
func (m *Manufacturing) DispatchAll(now time.Time) []*shipment.Shipment {
	return m.Outbound.Dispatch(now, m.rng)
}

func (m *Manufacturing) totalManufactured() float64 {
	var total float64
	for _, j := range m.Queue.History() {
		total += j.ActualOutputQuantity
	}
	return total
}

// QCRate returns the fraction of completed batches that passed quality
// control, or 1.0 before any batch has finished.
func (m *Manufacturing) QCRate() float64 {
	total := m.Queue.QCPasses + m.Queue.QCFailures
	if total == 0 {
		return 1.0
	}
	return float64(m.Queue.QCPasses) / float64(total)
}
