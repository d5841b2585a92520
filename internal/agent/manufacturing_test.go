package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/chainflow/internal/decision"
	"github.com/talgya/chainflow/internal/entropy"
	"github.com/talgya/chainflow/internal/job"
	"github.com/talgya/chainflow/internal/recipe"
)

func baggingBook() recipe.Book {
	return recipe.Book{
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
}

func newTestPlant(t *testing.T) *Manufacturing {
	t.Helper()
	m := NewManufacturing("MFG_01", "Finished Goods Plant", 3000,
		[]string{"bagging"}, baggingBook(), entropy.NewSource(17))
	_, err := m.RawMaterials.Receive("Processed_Phosphorite", 500)
	require.NoError(t, err)
	return m
}

func manufactureValues(overrides map[string]any) decision.Values {
	vals := decision.Values{
		"production_priority":   "normal",
		"quality_standard":      "standard",
		"batch_size":            100.0,
		"quality_control_level": "standard",
	}
	for k, v := range overrides {
		vals[k] = v
	}
	return vals
}

func TestStorageSplitsSixtyForty(t *testing.T) {
	m := newTestPlant(t)
	assert.Equal(t, 3000*0.6, m.RawMaterials.Capacity())
	assert.Equal(t, 3000*0.4, m.FinishedGoods.Capacity())
}

func TestQualityStandardScalesDuration(t *testing.T) {
	m := newTestPlant(t)

	standard, err := m.Manufacture(testStart, "fertilizer_bagging", manufactureValues(nil))
	require.NoError(t, err)
	premium, err := m.Manufacture(testStart, "fertilizer_bagging", manufactureValues(map[string]any{
		"quality_standard": "premium",
	}))
	require.NoError(t, err)
	industrial, err := m.Manufacture(testStart, "fertilizer_bagging", manufactureValues(map[string]any{
		"quality_standard": "industrial_grade",
	}))
	require.NoError(t, err)

	assert.InDelta(t, float64(standard.Duration)*1.3, float64(premium.Duration), float64(time.Second))
	assert.InDelta(t, float64(standard.Duration)*0.8, float64(industrial.Duration), float64(time.Second))
	assert.Equal(t, "premium", premium.QualityStandard)
}

func TestRunOperationsCertifiesPassedBatches(t *testing.T) {
	m := newTestPlant(t)

	j, err := m.Manufacture(testStart, "fertilizer_bagging", manufactureValues(nil))
	require.NoError(t, err)
	m.RunOperations(testStart)

	finished := m.RunOperations(testStart.Add(j.Duration))
	require.Len(t, finished, 1)

	if j.Status == job.StatusCompleted {
		require.Len(t, m.Certifications, 1)
		cert := m.Certifications[0]
		assert.Equal(t, "Bagged_Fertilizer", cert.Product)
		assert.Equal(t, j.ID, cert.BatchID)
		assert.Equal(t, j.ActualOutputQuantity, cert.Quantity)
	} else {
		assert.Empty(t, m.Certifications)
	}
	assert.Greater(t, m.EnergySpent, 0.0)
}

func TestFertilizerSchemaIncludesNutrientBlend(t *testing.T) {
	m := newTestPlant(t)

	schema, err := m.DecisionSchema("fertilizer_bagging", 500)
	require.NoError(t, err)
	assert.Contains(t, schema, "nutrient_blend")
	assert.Contains(t, schema, "quality_standard")
	assert.NotContains(t, schema, "alloy_composition")
}

func TestIntakeRejectsUnknownMaterial(t *testing.T) {
	m := newTestPlant(t)

	_, err := m.Intake("Iron_Ore")
	assert.ErrorIs(t, err, ErrUnsupportedMaterial)

	ledger, err := m.Intake("Processed_Phosphorite")
	require.NoError(t, err)
	assert.Same(t, m.RawMaterials, ledger)
}

func TestSchemaValidatesOwnDefaultsForSubUnitDelivery(t *testing.T) {
	m := newTestPlant(t)

	schema, err := m.DecisionSchema("fertilizer_bagging", 0.4)
	require.NoError(t, err)
	_, err = decision.Validate(schema, decision.Defaults(schema))
	assert.NoError(t, err, "batch_size range must stay valid below one unit")
}
