// Package job provides the per-agent transformation job queue: priority
// scheduling over equipment lines, input reservation at enqueue time,
// and stochastic completion with an optional quality-control gate.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/talgya/chainflow/internal/recipe"
)

// ErrEquipmentUnavailable is returned at enqueue when the recipe's
// required line is not operational. A busy line is not an error — the
// job simply waits in the queue.
var ErrEquipmentUnavailable = errors.New("equipment unavailable")

// Priority orders jobs in the queue. Lower value runs first.
type Priority uint8

const (
	PriorityUrgent Priority = iota
	PriorityNormal
	PriorityBatch
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityBatch:
		return "batch"
	default:
		return "normal"
	}
}

// ParsePriority maps the operator-facing priority strings (including the
// stage-specific batch aliases) onto a Priority. Unknown strings are
// treated as normal.
func ParsePriority(s string) Priority {
	switch s {
	case "urgent":
		return PriorityUrgent
	case "batch", "batch_when_full", "batch_production":
		return PriorityBatch
	default:
		return PriorityNormal
	}
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusQCFailed  Status = "quality_control_failed"
)

// Job is one queued-or-running execution of a recipe against reserved
// inventory. Input is deducted from the owning ledger when the job is
// created, so two jobs can never claim the same material.
type Job struct {
	ID     string        `json:"id"`
	Recipe recipe.Recipe `json:"recipe"`

	BatchSize float64            `json:"batch_size"`
	Inputs    map[string]float64 `json:"inputs"` // reserved quantities by material

	ExpectedOutputMaterial string        `json:"expected_output_material"`
	ExpectedOutputQuantity float64       `json:"expected_output_quantity"`
	Duration               time.Duration `json:"duration"`
	EnergyCost             float64       `json:"energy_cost"`

	QualityTarget   float64 `json:"quality_target"`
	QualityStandard string  `json:"quality_standard,omitempty"`
	QCLevel         string  `json:"qc_level,omitempty"`

	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	seq         uint64
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	ActualOutputQuantity float64 `json:"actual_output_quantity"`
	ActualQuality        float64 `json:"actual_quality"`
}

// Line is one unit of processing equipment. At most one active job may
// occupy a line at a time.
type Line struct {
	Name        string  `json:"name"`
	Operational bool    `json:"operational"`
	Efficiency  float64 `json:"efficiency"` // 1.0 = nominal
}

// NewJobID derives a job ID from the owning agent and the count of jobs
// ever created by that agent, matching the Ship_/JOB_ numbering scheme
// used throughout the chain.
func NewJobID(agentID string, count uint64) string {
	return fmt.Sprintf("JOB_%s_%04d", agentID, count+1)
}
