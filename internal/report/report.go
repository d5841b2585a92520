// Package report defines the plain data shapes the orchestrator and
// API hand out: chain snapshots, per-agent metrics and flow records.
package report

import "time"

// AgentStatus is one agent's position in a chain snapshot.
type AgentStatus struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Stage       string  `json:"stage"`
	Capacity    float64 `json:"capacity"`
	Stored      float64 `json:"stored"`
	Utilization float64 `json:"utilization"`

	QueuedJobs int `json:"queued_jobs,omitempty"`
	ActiveJobs int `json:"active_jobs,omitempty"`

	PendingShipments   int `json:"pending_shipments,omitempty"`
	InTransitShipments int `json:"in_transit_shipments,omitempty"`

	Stock map[string]float64 `json:"stock,omitempty"`
}

// Snapshot is the whole chain at a moment in time.
type Snapshot struct {
	Time            time.Time     `json:"time"`
	Agents          []AgentStatus `json:"agents"`
	ActiveTraces    int           `json:"active_traces"`
	PendingRequests int           `json:"pending_requests"`
	TotalRevenue    float64       `json:"total_revenue"`
}

// Metrics are the chain-wide aggregates for one run.
type Metrics struct {
	InputOre       float64 `json:"input_ore"`
	UnitsProduced  float64 `json:"units_produced"`
	UnitsSold      float64 `json:"units_sold"`
	TotalRevenue   float64 `json:"total_revenue"`
	TotalCosts     float64 `json:"total_costs"`
	NetProfit      float64 `json:"net_profit"`
	ConversionRate float64 `json:"conversion_rate"` // units sold per ton of ore
	RevenuePerTon  float64 `json:"revenue_per_ton"`
}

// Results is the structured end-of-run report: aggregate metrics, the
// full material flow and the operator decision audit.
type Results struct {
	Metrics      Metrics          `json:"metrics"`
	MaterialFlow []FlowStep       `json:"material_flow"`
	Decisions    []DecisionRecord `json:"decisions"`
}

// FlowStep records one hop of material through the chain.
type FlowStep struct {
	Time      time.Time `json:"time"`
	TraceID   string    `json:"trace_id"`
	Stage     string    `json:"stage"`
	AgentID   string    `json:"agent_id"`
	Operation string    `json:"operation"`
	Material  string    `json:"material"`
	Quantity  float64   `json:"quantity"`
}

// DecisionRecord is a resolved operator decision, kept for audit.
type DecisionRecord struct {
	RequestID  string         `json:"request_id"`
	TraceID    string         `json:"trace_id"`
	AgentID    string         `json:"agent_id"`
	Operation  string         `json:"operation"`
	Values     map[string]any `json:"values"`
	ResolvedAt time.Time      `json:"resolved_at"`
}
