package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chainflow/internal/agent"
	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/recipe"
)

var testStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func fertilizerChain(t *testing.T) (*Orchestrator, *agent.Retail) {
	t.Helper()
	rng := entropy.NewSource(5)

	routing := NewRouting()
	routing.Processing["Phosphorite"] = "PROC_01"
	routing.Manufacturing["Processed_Phosphorite"] = "MFG_01"
	routing.Distribution["Bagged_Fertilizer"] = "DIST_01"
	routing.Retail["Bagged_Fertilizer"] = "RETAIL_01"

	o := New(testStart, routing, rng)

	o.RegisterMining(agent.NewMining("MINE_01", "Northern Pit", 5000,
		[]string{"Phosphorite"}, 500, rng))

	processingBook := recipe.Book{
		"phosphorite_beneficiation": {
			Name:              "phosphorite_beneficiation",
			Inputs:            map[string]float64{"Phosphorite": 1},
			Output:            "Processed_Phosphorite",
			Yield:             0.82,
			Duration:          4 * time.Hour,
			EnergyCostPerUnit: 2.5,
			RequiredLine:      "beneficiation",
		},
	}
	o.RegisterProcessing(agent.NewProcessing("PROC_01", "Regional Processing", 4000,
		[]string{"beneficiation"}, processingBook, rng))

	manufacturingBook := recipe.Book{
		"fertilizer_bagging": {
			Name:              "fertilizer_bagging",
			Inputs:            map[string]float64{"Processed_Phosphorite": 1},
			Output:            "Bagged_Fertilizer",
			Yield:             0.95,
			Duration:          2 * time.Hour,
			EnergyCostPerUnit: 1.0,
			RequiredLine:      "bagging",
		},
	}
	o.RegisterManufacturing(agent.NewManufacturing("MFG_01", "Bagging Plant", 3000,
		[]string{"bagging"}, manufacturingBook, rng))

	o.RegisterDistribution(agent.NewDistribution("DIST_01", "Central Distribution", 2500,
		[]string{"Zone_A"}, rng))

	store := agent.NewRetail("RETAIL_01", "Farm Supply", 1500,
		[]string{"direct_sales"}, []string{"agricultural"}, rng)
	o.RegisterRetail(store)

	return o, store
}

func TestInjectRawMaterialsParksProcessingDecision(t *testing.T) {
	o, _ := fertilizerChain(t)

	tr, err := o.InjectRawMaterials("MINE_01", "Phosphorite", 300)
	require.NoError(t, err)

	assert.Equal(t, "Phosphorite", tr.CurrentMaterial)
	assert.Equal(t, 300.0, tr.CurrentQuantity)
	assert.Equal(t, "PROC_01", tr.CurrentLocation)

	// extracted, dispatched, received
	require.Len(t, tr.Steps, 3)
	assert.Equal(t, "extracted", tr.Steps[0].Operation)
	assert.Equal(t, "received", tr.Steps[2].Operation)

	pending := o.PendingRequests()
	require.Len(t, pending, 1)
	req := pending[0]
	assert.Equal(t, "PROC_01", req.AgentID)
	assert.Equal(t, "process_material", req.Operation)
	assert.Contains(t, req.Schema, "selected_recipe")
	assert.Contains(t, req.Schema, "batch_size")

	// The clock followed the haul to the plant.
	assert.True(t, o.Now().After(testStart))
}

func TestInjectUnknownMineOrRoute(t *testing.T) {
	o, _ := fertilizerChain(t)

	_, err := o.InjectRawMaterials("MINE_99", "Phosphorite", 100)
	assert.Error(t, err)

	_, err = o.InjectRawMaterials("MINE_01", "Iron_Ore", 100)
	assert.Error(t, err, "no processing route for the ore")
}

func TestFlowRunsMineToRetail(t *testing.T) {
	o, store := fertilizerChain(t)

	tr, err := o.InjectRawMaterials("MINE_01", "Phosphorite", 300)
	require.NoError(t, err)

	// Resolve each stage's decision with its defaults until the flow
	// either completes at retail or dies at quality control.
	for i := 0; i < 10; i++ {
		pending := o.PendingRequests()
		if len(pending) == 0 {
			break
		}
		req := pending[0]
		require.NoError(t, o.ProcessRequest(req.ID, decision.Defaults(req.Schema)))
	}
	assert.Empty(t, o.PendingRequests())

	last := tr.Steps[len(tr.Steps)-1]
	switch last.Operation {
	case "sold":
		assert.Equal(t, "Bagged_Fertilizer", tr.CurrentMaterial)
		assert.Greater(t, store.TotalRevenue, 0.0)
		assert.Len(t, store.Sales, 1)

		// 300 tons at 0.82 then 0.95 yield, minus line efficiency and
		// per-stage variance, bounds the sold quantity.
		sold := store.Sales[0].Quantity
		assert.Greater(t, sold, 300*0.82*0.95*0.8*0.8)
		assert.Less(t, sold, 300*0.82*0.95*1.06)
	case "quality_control_failed":
		assert.Zero(t, store.TotalRevenue)
	default:
		t.Fatalf("flow ended on unexpected step %q", last.Operation)
	}

	records := o.DecisionLog()
	assert.NotEmpty(t, records)
	for _, r := range records {
		assert.Equal(t, tr.ID, r.TraceID)
	}
}

func TestProcessRequestValidationLeavesRequestPending(t *testing.T) {
	o, _ := fertilizerChain(t)

	_, err := o.InjectRawMaterials("MINE_01", "Phosphorite", 300)
	require.NoError(t, err)

	req := o.PendingRequests()[0]
	vals := decision.Defaults(req.Schema)
	vals["processing_priority"] = "asap"

	err = o.ProcessRequest(req.ID, vals)
	var verr *decision.ValidationError
	require.ErrorAs(t, err, &verr)

	// The request is still open and accepts a corrected payload.
	require.Len(t, o.PendingRequests(), 1)
	vals["processing_priority"] = "urgent"
	assert.NoError(t, o.ProcessRequest(req.ID, vals))
}

func TestProcessRequestUnknownID(t *testing.T) {
	o, _ := fertilizerChain(t)
	err := o.ProcessRequest("nope", decision.Values{})
	assert.Error(t, err)
}

func TestTraceTimestampsAreMonotonic(t *testing.T) {
	o, _ := fertilizerChain(t)

	tr, err := o.InjectRawMaterials("MINE_01", "Phosphorite", 200)
	require.NoError(t, err)
	for i := 0; i < 10 && len(o.PendingRequests()) > 0; i++ {
		req := o.PendingRequests()[0]
		require.NoError(t, o.ProcessRequest(req.ID, decision.Defaults(req.Schema)))
	}

	for i := 1; i < len(tr.Steps); i++ {
		assert.False(t, tr.Steps[i].Time.Before(tr.Steps[i-1].Time),
			"step %d before step %d", i, i-1)
	}
}

func TestSnapshotAggregatesAgents(t *testing.T) {
	o, _ := fertilizerChain(t)

	snap := o.Snapshot()
	require.Len(t, snap.Agents, 5)
	assert.Zero(t, snap.ActiveTraces)
	assert.Zero(t, snap.PendingRequests)

	_, err := o.InjectRawMaterials("MINE_01", "Phosphorite", 300)
	require.NoError(t, err)

	snap = o.Snapshot()
	assert.Equal(t, 1, snap.ActiveTraces)
	assert.Equal(t, 1, snap.PendingRequests)

	stages := make(map[string]bool)
	for _, a := range snap.Agents {
		stages[a.Stage] = true
	}
	for _, stage := range []string{"mining", "processing", "manufacturing", "distribution", "retail"} {
		assert.True(t, stages[stage], stage)
	}
}

func TestRoutingLastRegistrationWins(t *testing.T) {
	o, _ := fertilizerChain(t)
	rng := entropy.NewSource(9)

	second := agent.NewProcessing("PROC_02", "Second Plant", 4000,
		[]string{"beneficiation"}, recipe.Book{
			"phosphorite_beneficiation": {
				Name:         "phosphorite_beneficiation",
				Inputs:       map[string]float64{"Phosphorite": 1},
				Output:       "Processed_Phosphorite",
				Yield:        0.82,
				Duration:     4 * time.Hour,
				RequiredLine: "beneficiation",
			},
		}, rng)
	o.RegisterProcessing(second)
	o.routing.Processing["Phosphorite"] = "PROC_02"

	_, err := o.InjectRawMaterials("MINE_01", "Phosphorite", 100)
	require.NoError(t, err)
	assert.Equal(t, "PROC_02", o.PendingRequests()[0].AgentID)
}

func TestResultsAggregateRunMetrics(t *testing.T) {
	o, store := fertilizerChain(t)

	tr, err := o.InjectRawMaterials("MINE_01", "Phosphorite", 300)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		pending := o.PendingRequests()
		if len(pending) == 0 {
			break
		}
		req := pending[0]
		require.NoError(t, o.ProcessRequest(req.ID, decision.Defaults(req.Schema)))
	}

	res := o.Results()
	assert.InDelta(t, 300, res.Metrics.InputOre, 0.001)
	assert.Greater(t, res.Metrics.TotalCosts, 0.0, "extraction alone has a cost")
	assert.Len(t, res.MaterialFlow, len(tr.Steps))
	for i, step := range res.MaterialFlow {
		assert.Equal(t, tr.ID, step.TraceID)
		assert.Equal(t, tr.Steps[i].Operation, step.Operation)
		assert.Equal(t, tr.Steps[i].Material, step.Material)
	}
	assert.Equal(t, o.DecisionLog(), res.Decisions)

	if store.TotalRevenue > 0 {
		assert.InDelta(t, store.TotalRevenue, res.Metrics.TotalRevenue, 0.001)
		assert.Greater(t, res.Metrics.UnitsProduced, 0.0)
		assert.InDelta(t, res.Metrics.TotalRevenue-res.Metrics.TotalCosts, res.Metrics.NetProfit, 0.001)
		assert.InDelta(t, res.Metrics.UnitsSold/300, res.Metrics.ConversionRate, 0.001)
		assert.InDelta(t, res.Metrics.TotalRevenue/300, res.Metrics.RevenuePerTon, 0.001)
	}
}

func TestMissingDownstreamRouteStallsWithoutRerun(t *testing.T) {
	rng := entropy.NewSource(9)
	routing := NewRouting()
	routing.Processing["Phosphorite"] = "PROC_01"
	// No manufacturing route for Processed_Phosphorite.
	o := New(testStart, routing, rng)

	o.RegisterMining(agent.NewMining("MINE_01", "Northern Pit", 5000,
		[]string{"Phosphorite"}, 500, rng))
	proc := agent.NewProcessing("PROC_01", "Regional Processing", 4000,
		[]string{"beneficiation"}, recipe.Book{
			"phosphorite_beneficiation": {
				Name:              "phosphorite_beneficiation",
				Inputs:            map[string]float64{"Phosphorite": 1},
				Output:            "Processed_Phosphorite",
				Yield:             0.82,
				Duration:          4 * time.Hour,
				EnergyCostPerUnit: 2.5,
				RequiredLine:      "beneficiation",
			},
		}, rng)
	o.RegisterProcessing(proc)

	tr, err := o.InjectRawMaterials("MINE_01", "Phosphorite", 300)
	require.NoError(t, err)
	rawBefore := proc.Raw.Quantity("Phosphorite")

	req := o.PendingRequests()[0]
	require.NoError(t, o.ProcessRequest(req.ID, decision.Defaults(req.Schema)))

	// The batch stalls in the processed store; the decision completes
	// and the raw material is consumed exactly once.
	assert.Empty(t, o.PendingRequests())
	assert.Len(t, o.DecisionLog(), 1)
	assert.Len(t, proc.Queue.History(), 1)
	assert.InDelta(t, rawBefore-300, proc.Raw.Quantity("Phosphorite"), 0.001)
	assert.Greater(t, proc.Processed.Quantity("Processed_Phosphorite"), 0.0)

	last := tr.Steps[len(tr.Steps)-1]
	assert.Equal(t, "no_route", last.Operation)

	// A repeat submission cannot re-run the job.
	err = o.ProcessRequest(req.ID, decision.Defaults(req.Schema))
	assert.Error(t, err)
	assert.Len(t, proc.Queue.History(), 1)
}
