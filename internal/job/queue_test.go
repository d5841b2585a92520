package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/inventory"
	"github.com/talgya/chainflow/internal/recipe"
)

var testStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func beneficiation() recipe.Recipe {
	return recipe.Recipe{
		Name:              "phosphorite_beneficiation",
		Inputs:            map[string]float64{"Phosphorite": 1},
		Output:            "Processed_Phosphorite",
		Yield:             0.82,
		Duration:          4 * time.Hour,
		EnergyCostPerUnit: 2.5,
		RequiredLine:      "beneficiation",
	}
}

func smelting() recipe.Recipe {
	return recipe.Recipe{
		Name:         "iron_smelting",
		Inputs:       map[string]float64{"Iron_Ore": 1},
		Output:       "Steel",
		Yield:        0.75,
		Duration:     6 * time.Hour,
		RequiredLine: "smelting",
	}
}

func newTestQueue(t *testing.T, stock map[string]float64) (*Queue, *inventory.Ledger, *inventory.Ledger) {
	t.Helper()
	input := inventory.NewLedger(10000)
	output := inventory.NewLedger(10000)
	for m, qty := range stock {
		input.Add(m, qty)
	}
	lines := []Line{
		{Name: "beneficiation", Operational: true, Efficiency: 1.0},
		{Name: "smelting", Operational: true, Efficiency: 1.0},
	}
	q := NewQueue("PROC_01", input, output, lines, entropy.NewSource(7), 0.05)
	return q, input, output
}

func TestEnqueueReservesInputs(t *testing.T) {
	q, input, _ := newTestQueue(t, map[string]float64{"Phosphorite": 200})

	j, err := q.Enqueue(testStart, Request{
		Recipe:        beneficiation(),
		BatchSize:     150,
		QualityTarget: 0.90,
		Priority:      PriorityNormal,
	})
	require.NoError(t, err)

	assert.Equal(t, 50.0, input.Quantity("Phosphorite"), "inputs reserved at enqueue")
	assert.Equal(t, StatusQueued, j.Status)
	assert.InDelta(t, 150*0.82, j.ExpectedOutputQuantity, 1e-9)

	// 0.90 against the 0.85 reference stretches the 4h run.
	wantMult := 0.90 / recipe.ReferenceQuality
	assert.InDelta(t, float64(4*time.Hour)*wantMult, float64(j.Duration), float64(time.Second))
}

func TestEnqueueInsufficientStockLeavesLedgerUntouched(t *testing.T) {
	q, input, _ := newTestQueue(t, map[string]float64{"Phosphorite": 100})

	_, err := q.Enqueue(testStart, Request{
		Recipe:        beneficiation(),
		BatchSize:     150,
		QualityTarget: recipe.ReferenceQuality,
	})
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, 100.0, input.Quantity("Phosphorite"))
	assert.Zero(t, q.QueuedLen())
}

func TestEnqueueUnknownLine(t *testing.T) {
	q, _, _ := newTestQueue(t, map[string]float64{"Phosphorite": 100})

	r := beneficiation()
	r.RequiredLine = "calcining"
	_, err := q.Enqueue(testStart, Request{Recipe: r, BatchSize: 50, QualityTarget: recipe.ReferenceQuality})
	assert.ErrorIs(t, err, ErrEquipmentUnavailable)
}

func TestEnqueueLineDown(t *testing.T) {
	q, _, _ := newTestQueue(t, map[string]float64{"Phosphorite": 100})
	require.NoError(t, q.SetLineStatus("beneficiation", false, -1))

	_, err := q.Enqueue(testStart, Request{
		Recipe: beneficiation(), BatchSize: 50, QualityTarget: recipe.ReferenceQuality,
	})
	assert.ErrorIs(t, err, ErrEquipmentUnavailable)
}

func TestPriorityOrderingWithFIFOWithinTier(t *testing.T) {
	q, _, _ := newTestQueue(t, map[string]float64{"Phosphorite": 1000})

	enqueue := func(priority Priority) *Job {
		j, err := q.Enqueue(testStart, Request{
			Recipe: beneficiation(), BatchSize: 10,
			QualityTarget: recipe.ReferenceQuality, Priority: priority,
		})
		require.NoError(t, err)
		return j
	}

	batch1 := enqueue(PriorityBatch)
	normal1 := enqueue(PriorityNormal)
	urgent := enqueue(PriorityUrgent)
	normal2 := enqueue(PriorityNormal)

	// One line means only the head job starts each cycle.
	var started []string
	now := testStart
	for range 4 {
		q.Advance(now)
		for _, j := range []*Job{batch1, normal1, urgent, normal2} {
			if j.Status == StatusActive {
				started = append(started, j.ID)
			}
		}
		now = now.Add(5 * time.Hour)
		q.Advance(now) // completes the active job
	}
	assert.Equal(t, []string{urgent.ID, normal1.ID, normal2.ID, batch1.ID}, started)
}

func TestSkipSchedulingAroundBusyLine(t *testing.T) {
	q, _, _ := newTestQueue(t, map[string]float64{"Phosphorite": 1000, "Iron_Ore": 1000})

	first, err := q.Enqueue(testStart, Request{
		Recipe: beneficiation(), BatchSize: 10,
		QualityTarget: recipe.ReferenceQuality, Priority: PriorityUrgent,
	})
	require.NoError(t, err)
	q.Advance(testStart)
	require.Equal(t, StatusActive, first.Status)

	// Another urgent job for the busy line, then a batch job for the
	// free smelting line. The batch job must not wait behind it.
	blocked, err := q.Enqueue(testStart, Request{
		Recipe: beneficiation(), BatchSize: 10,
		QualityTarget: recipe.ReferenceQuality, Priority: PriorityUrgent,
	})
	require.NoError(t, err)
	free, err := q.Enqueue(testStart, Request{
		Recipe: smelting(), BatchSize: 10,
		QualityTarget: recipe.ReferenceQuality, Priority: PriorityBatch,
	})
	require.NoError(t, err)

	q.Advance(testStart)
	assert.Equal(t, StatusQueued, blocked.Status)
	assert.Equal(t, StatusActive, free.Status)
}

func TestCompletionCreditsOutputWithinVariance(t *testing.T) {
	q, _, output := newTestQueue(t, map[string]float64{"Phosphorite": 200})

	j, err := q.Enqueue(testStart, Request{
		Recipe: beneficiation(), BatchSize: 150, QualityTarget: 0.90,
	})
	require.NoError(t, err)

	q.Advance(testStart)
	require.Equal(t, StatusActive, j.Status)

	done := q.Advance(testStart.Add(j.Duration))
	require.Len(t, done, 1)
	assert.Equal(t, StatusCompleted, j.Status)

	expected := 150 * 0.82
	assert.InDelta(t, expected, j.ActualOutputQuantity, expected*0.05+1e-9)
	assert.Equal(t, j.ActualOutputQuantity, output.Quantity("Processed_Phosphorite"))
	assert.InDelta(t, 0.90, j.ActualQuality, 0.90*0.05+1e-9)
	assert.Equal(t, 1, q.QCPasses)
}

func TestAdvanceBeforeDurationDoesNotComplete(t *testing.T) {
	q, _, _ := newTestQueue(t, map[string]float64{"Phosphorite": 200})

	j, err := q.Enqueue(testStart, Request{
		Recipe: beneficiation(), BatchSize: 100, QualityTarget: recipe.ReferenceQuality,
	})
	require.NoError(t, err)
	q.Advance(testStart)

	done := q.Advance(testStart.Add(j.Duration - time.Minute))
	assert.Empty(t, done)
	assert.Equal(t, StatusActive, j.Status)
	assert.Equal(t, 1, q.ActiveLen())
}

func TestQCOutcomesAreCounted(t *testing.T) {
	q, _, output := newTestQueue(t, map[string]float64{"Phosphorite": 100000})

	// Standard quality at basic QC passes ~90% of the time; over many
	// batches both counters move and failed batches credit nothing.
	for range 200 {
		j, err := q.Enqueue(testStart, Request{
			Recipe: beneficiation(), BatchSize: 10,
			QualityTarget: recipe.ReferenceQuality,
			QualityStandard: "standard", QCLevel: "basic",
		})
		require.NoError(t, err)
		q.Advance(testStart)
		q.Advance(testStart.Add(j.Duration))
		if j.Status == StatusQCFailed {
			assert.Zero(t, j.ActualOutputQuantity)
		}
	}

	assert.Equal(t, 200, q.QCPasses+q.QCFailures)
	assert.Greater(t, q.QCPasses, 150)
	assert.Greater(t, q.QCFailures, 0)
	assert.Greater(t, output.Quantity("Processed_Phosphorite"), 0.0)
}
