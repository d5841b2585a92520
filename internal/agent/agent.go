// Package agent provides the five stage variants of a supply chain
// actor: mining, processing, manufacturing, distribution, and retail.
// Every variant embeds a Core holding identity and connections; each
// agent owns its ledgers and job queue exclusively, and cross-agent
// interaction happens only through the shipment protocol.
package agent

import (
	"errors"
	"time"
)

// Stage identifies which link of the chain an agent occupies.
type Stage string

const (
	StageMining        Stage = "mining"
	StageProcessing    Stage = "processing"
	StageManufacturing Stage = "manufacturing"
	StageDistribution  Stage = "distribution"
	StageRetail        Stage = "retail"
)

var (
	// ErrUnsupportedMaterial means no recipe or route exists for a
	// material at this agent. The batch stalls; it is not discarded.
	ErrUnsupportedMaterial = errors.New("unsupported material")

	// ErrUnsupportedZone means a distribution center does not serve the
	// requested delivery zone.
	ErrUnsupportedZone = errors.New("unsupported delivery zone")
)

// Core holds the identity every stage variant shares.
type Core struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Stage       Stage     `json:"stage"`
	Capacity    float64   `json:"capacity"`
	Connections []string  `json:"connections,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// newCore builds a Core. Agents are created once at configuration time
// and never destroyed mid-run.
func newCore(id, name string, stage Stage, capacity float64) Core {
	return Core{
		ID:        id,
		Name:      name,
		Stage:     stage,
		Capacity:  capacity,
		CreatedAt: time.Now(),
	}
}
