// Package trace records the end-to-end journey of one logical material
// batch across every stage it passes through. The journey log is the
// sole audit record correlating a batch across transformations.
package trace

import (
	"time"

	"github.com/google/uuid"
)

// Step is one appended entry in a batch's journey. Material and
// Quantity capture the batch identity as of the step, so the flow list
// can be rebuilt without replaying transformations.
type Step struct {
	Time      time.Time      `json:"time"`
	Stage     string         `json:"stage"`
	AgentID   string         `json:"agent_id"`
	Operation string         `json:"operation"`
	Material  string         `json:"material"`
	Quantity  float64        `json:"quantity"`
	Details   map[string]any `json:"details,omitempty"`
}

// Trace follows one logical batch. The quantity may shrink at each
// transformation per recipe yield, but the trace ID persists end to end.
type Trace struct {
	ID string `json:"id"`

	OriginalMaterial string  `json:"original_material"`
	OriginalQuantity float64 `json:"original_quantity"`

	// Denormalized latest state, updated alongside each append so status
	// reads never replay the log.
	CurrentMaterial string  `json:"current_material"`
	CurrentQuantity float64 `json:"current_quantity"`
	CurrentLocation string  `json:"current_location"`

	Steps []Step `json:"steps"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// New opens a trace for a batch extracted at an agent.
func New(now time.Time, material string, quantity float64, location string) *Trace {
	return &Trace{
		ID:               uuid.NewString(),
		OriginalMaterial: material,
		OriginalQuantity: quantity,
		CurrentMaterial:  material,
		CurrentQuantity:  quantity,
		CurrentLocation:  location,
		CreatedAt:        now,
		LastUpdated:      now,
	}
}

// AddStep appends a journey entry and updates the denormalized location.
// Timestamps are forced monotonic: a step stamped earlier than the last
// append is recorded at the later time.
func (t *Trace) AddStep(now time.Time, stage, agentID, operation string, details map[string]any) {
	if now.Before(t.LastUpdated) {
		now = t.LastUpdated
	}
	t.Steps = append(t.Steps, Step{
		Time:      now,
		Stage:     stage,
		AgentID:   agentID,
		Operation: operation,
		Material:  t.CurrentMaterial,
		Quantity:  t.CurrentQuantity,
		Details:   details,
	})
	t.CurrentLocation = agentID
	t.LastUpdated = now
}

// Transform updates the denormalized material identity after a
// processing or manufacturing step changed what the batch is.
func (t *Trace) Transform(material string, quantity float64) {
	t.CurrentMaterial = material
	t.CurrentQuantity = quantity
}
