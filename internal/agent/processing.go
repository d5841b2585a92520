package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/inventory"
	"github.com/talgya/chainflow/internal/job"
	"github.com/talgya/chainflow/internal/recipe"
	"github.com/talgya/chainflow/internal/shipment"
)

// Storage split between raw intake and processed output at a processing
// plant: three quarters of capacity holds incoming ore.
const (
	processingRawShare       = 0.75
	processingProcessedShare = 0.25
)

// Processing refines raw ore into intermediate materials through its
// transformation recipes. Incoming ore lands in the raw ledger; job
// output accumulates in the processed ledger until shipped onward.
type Processing struct {
	Core

	Recipes recipe.Book

	Raw       *inventory.Ledger
	Processed *inventory.Ledger
	Outbound  *shipment.Manifest

	Queue *job.Queue

	// QualityGrades tracks the latest quality seen per material.
	QualityGrades map[string]float64

	EnergySpent float64
	rng         *entropy.Source
}

// NewProcessing creates a plant with one equipment line per processing
// method, each at a random 85–100% efficiency.
func NewProcessing(id, name string, capacity float64, methods []string, recipes recipe.Book, rng *entropy.Source) *Processing {
	raw := inventory.NewLedger(capacity * processingRawShare)
	processed := inventory.NewLedger(capacity * processingProcessedShare)

	lines := make([]job.Line, len(methods))
	for i, method := range methods {
		lines[i] = job.Line{
			Name:        method,
			Operational: true,
			Efficiency:  rng.Uniform(0.85, 1.0),
		}
	}

	p := &Processing{
		Core:          newCore(id, name, StageProcessing, capacity),
		Recipes:       recipes,
		Raw:           raw,
		Processed:     processed,
		Outbound:      shipment.NewManifest(id, 0),
		Queue:         job.NewQueue(id, raw, processed, lines, rng, 0.05),
		QualityGrades: make(map[string]float64),
		rng:           rng,
	}
	slog.Info("processing agent ready", "agent", id, "name", name,
		"methods", len(methods), "recipes", len(recipes))
	return p
}

// CanProcess reports whether any recipe consumes the material.
func (p *Processing) CanProcess(material string) bool {
	return len(p.Recipes.ForInput(material)) > 0
}

// Intake returns the ledger shipments deliver into, after checking the
// plant can actually process the material.
func (p *Processing) Intake(material string) (*inventory.Ledger, error) {
	if !p.CanProcess(material) {
		return nil, fmt.Errorf("%s has no recipe for %s: %w", p.ID, material, ErrUnsupportedMaterial)
	}
	return p.Raw, nil
}

// RecordQuality notes the quality grade of a received material.
func (p *Processing) RecordQuality(material string, quality float64) {
	p.QualityGrades[material] = quality
}

// DecisionSchema publishes the operator inputs needed before the plant
// will transform a received material.
func (p *Processing) DecisionSchema(material string, available float64) (decision.Schema, error) {
	recipes := p.Recipes.ForInput(material)
	if len(recipes) == 0 {
		return nil, fmt.Errorf("%s has no recipe for %s: %w", p.ID, material, ErrUnsupportedMaterial)
	}
	maxBatch := available
	if p.Capacity < maxBatch {
		maxBatch = p.Capacity
	}
	// A sub-ton delivery still needs a valid range.
	minBatch := min(1.0, maxBatch)
	return decision.Schema{
		"selected_recipe": decision.Choice(
			fmt.Sprintf("Choose processing method for %s", material),
			recipes, recipes[0]),
		"processing_priority": decision.Choice(
			"When should this processing job be scheduled?",
			[]string{"urgent", "normal", "batch_when_full"}, "normal"),
		"quality_target": decision.FloatRange(
			"Target quality grade for processed material (0.5-1.0)",
			0.5, 1.0, 0.85),
		"batch_size": decision.FloatRange(
			fmt.Sprintf("How many tons to process in this batch? (Available: %.1f)", available),
			minBatch, maxBatch, min(available, p.Capacity*0.5)),
	}, nil
}

// Transform validates the decision payload against the material's
// recipes and enqueues a processing job, reserving the batch from raw
// storage. No mutation happens on a validation failure.
func (p *Processing) Transform(now time.Time, material string, values decision.Values) (*job.Job, error) {
	name := values.String("selected_recipe")
	r, ok := p.Recipes[name]
	if !ok {
		return nil, fmt.Errorf("%s: unknown recipe %q", p.ID, name)
	}
	if !r.Consumes(material) {
		return nil, fmt.Errorf("recipe %s does not consume %s: %w", name, material, ErrUnsupportedMaterial)
	}
	j, err := p.Queue.Enqueue(now, job.Request{
		Recipe:        r,
		BatchSize:     values.Float("batch_size"),
		QualityTarget: values.Float("quality_target"),
		Priority:      job.ParsePriority(values.String("processing_priority")),
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// RunOperations advances the job clock: completes elapsed jobs (banking
// their output in processed storage) and starts queued ones on free
// lines. Returns the jobs finished during this call.
func (p *Processing) RunOperations(now time.Time) []*job.Job {
	finished := p.Queue.Advance(now)
	for _, j := range finished {
		if j.Status == job.StatusCompleted {
			p.QualityGrades[j.ExpectedOutputMaterial] = j.ActualQuality
			p.EnergySpent += j.EnergyCost
		}
	}
	return finished
}

// Ship books an outbound shipment of processed material.
func (p *Processing) Ship(now time.Time, material string, quantity float64, destination string) (*shipment.Shipment, error) {
	return p.Outbound.Book(now, p.Processed, material, quantity, destination,
		p.QualityGrades[material], p.EnergySpent)
}

// DispatchAll loads every pending outbound shipment.
func (p *Processing) DispatchAll(now time.Time) []*shipment.Shipment {
	return p.Outbound.Dispatch(now, p.rng)
}
