// Package recipe defines static transformation rules and the pure
// arithmetic that turns an input batch into expected output, duration,
// and energy cost. Callers own all inventory mutation.
package recipe

import (
	"fmt"
	"sort"
	"time"
)

// ReferenceQuality is the quality target at which a recipe runs at its
// nominal duration and cost. Targets above it slow and cost more,
// targets below it run faster and cheaper, linearly.
const ReferenceQuality = 0.85

// Recipe is a static transformation definition. Immutable once loaded.
type Recipe struct {
	Name string `yaml:"name" json:"name"`

	// Inputs maps each consumed material to its consumption ratio per
	// unit of batch size. Single-input recipes use ratio 1.0.
	Inputs map[string]float64 `yaml:"inputs" json:"inputs"`

	Output string  `yaml:"output" json:"output"`
	Yield  float64 `yaml:"yield" json:"yield"` // output units per input unit

	Duration          time.Duration `yaml:"duration" json:"duration"`
	EnergyCostPerUnit float64       `yaml:"energy_cost_per_unit" json:"energy_cost_per_unit"`

	// RequiredLine names the equipment line or processing method this
	// recipe occupies while active.
	RequiredLine string `yaml:"required_line" json:"required_line"`

	// MinQuality is an optional input-quality floor. Zero means none.
	MinQuality float64 `yaml:"min_quality,omitempty" json:"min_quality,omitempty"`
}

// Validate checks structural invariants after load.
func (r Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("recipe has no name")
	}
	if len(r.Inputs) == 0 {
		return fmt.Errorf("recipe %s: no inputs", r.Name)
	}
	for material, ratio := range r.Inputs {
		if ratio <= 0 {
			return fmt.Errorf("recipe %s: input %s has non-positive ratio %.2f", r.Name, material, ratio)
		}
	}
	if r.Output == "" {
		return fmt.Errorf("recipe %s: no output material", r.Name)
	}
	if r.Yield <= 0 {
		return fmt.Errorf("recipe %s: non-positive yield %.2f", r.Name, r.Yield)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("recipe %s: non-positive duration %s", r.Name, r.Duration)
	}
	return nil
}

// Consumes reports whether the recipe takes material as an input.
func (r Recipe) Consumes(material string) bool {
	_, ok := r.Inputs[material]
	return ok
}

// PrimaryInput returns the input with the highest consumption ratio.
// Ties resolve to the lexicographically smaller name so the result is
// stable across runs.
func (r Recipe) PrimaryInput() string {
	var best string
	var bestRatio float64
	for material, ratio := range r.Inputs {
		if ratio > bestRatio || (ratio == bestRatio && (best == "" || material < best)) {
			best, bestRatio = material, ratio
		}
	}
	return best
}

// Result is the expected outcome of applying a recipe to a batch.
type Result struct {
	OutputMaterial string
	OutputQuantity float64
	Duration       time.Duration
	EnergyCost     float64
}

// Apply computes the expected output of running batchSize input units
// through the recipe at the given quality target and equipment
// efficiency (1.0 = nominal). Pure: no side effects.
func Apply(r Recipe, batchSize, qualityTarget, lineEfficiency float64) Result {
	mult := qualityTarget / ReferenceQuality
	return Result{
		OutputMaterial: r.Output,
		OutputQuantity: batchSize * r.Yield * lineEfficiency,
		Duration:       time.Duration(float64(r.Duration) * mult),
		EnergyCost:     r.EnergyCostPerUnit * mult * batchSize,
	}
}

// Book is a named collection of recipes with input-material lookup.
type Book map[string]Recipe

// ForInput returns the names of recipes that consume material, sorted
// for deterministic presentation in decision schemas.
func (b Book) ForInput(material string) []string {
	var names []string
	for name, r := range b {
		if r.Consumes(material) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
