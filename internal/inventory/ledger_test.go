package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveClipsAtCapacity(t *testing.T) {
	l := NewLedger(100)

	accepted, err := l.Receive("Phosphorite", 80)
	require.NoError(t, err)
	assert.Equal(t, 80.0, accepted)

	// Only 20 tons of headroom left; the rest is rejected.
	accepted, err = l.Receive("Phosphorite", 50)
	require.NoError(t, err)
	assert.Equal(t, 20.0, accepted)
	assert.Equal(t, 100.0, l.Total())
	assert.Equal(t, 0.0, l.Headroom())

	// A full ledger rejects the entire delivery.
	accepted, err = l.Receive("Iron_Ore", 10)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 0.0, accepted)
}

func TestReserveIsAllOrNothing(t *testing.T) {
	l := NewLedger(100)
	l.Add("Steel", 30)

	require.NoError(t, l.Reserve("Steel", 30))
	assert.Equal(t, 0.0, l.Quantity("Steel"))

	l.Add("Steel", 10)
	err := l.Reserve("Steel", 15)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 10.0, l.Quantity("Steel"), "failed reserve must not touch stock")
}

func TestAddReturnsCredited(t *testing.T) {
	l := NewLedger(50)
	assert.Equal(t, 50.0, l.Add("Ore", 60))
	assert.Equal(t, 0.0, l.Add("Ore", 5))
}

func TestUtilization(t *testing.T) {
	l := NewLedger(200)
	l.Add("A", 40)
	l.Add("B", 10)
	assert.InDelta(t, 0.25, l.Utilization(), 1e-9)
}

func TestSnapshotIsACopy(t *testing.T) {
	l := NewLedger(100)
	l.Add("Ore", 10)

	snap := l.Snapshot()
	snap["Ore"] = 999
	assert.Equal(t, 10.0, l.Quantity("Ore"))
}
