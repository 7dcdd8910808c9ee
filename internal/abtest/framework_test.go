package abtest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("user_%04d", i)
	}
	return ids
}

func TestAssignRandomly(t *testing.T) {
	ids := userIDs(1000)

	control, treatment := AssignRandomly(ids, 0.5, 42)
	assert.Equal(t, 500, len(control))
	assert.Equal(t, 500, len(treatment))

	// No user lands in both groups.
	seen := make(map[string]struct{})
	for _, id := range control {
		seen[id] = struct{}{}
	}
	for _, id := range treatment {
		_, dup := seen[id]
		assert.False(t, dup, "user %s assigned twice", id)
	}

	// Same seed reproduces the split, a different seed does not.
	c2, t2 := AssignRandomly(ids, 0.5, 42)
	assert.Equal(t, control, c2)
	assert.Equal(t, treatment, t2)

	c3, _ := AssignRandomly(ids, 0.5, 43)
	assert.NotEqual(t, control, c3)
}

func TestAssignRandomlyRatio(t *testing.T) {
	control, treatment := AssignRandomly(userIDs(100), 0.2, 1)
	assert.Equal(t, 80, len(control))
	assert.Equal(t, 20, len(treatment))
}

func TestFrameworkAnalyze(t *testing.T) {
	f := New(0.05)
	f.CreateExperiment("exp", []string{"c1", "c2", "c3"}, []string{"t1", "t2", "t3"}, "test")

	metrics := map[string]float64{
		"c1": 0.1, "c2": 0.2, "c3": 0.3,
		"t1": 0.5, "t2": 0.6, "t3": 0.7,
		"stranger": 99, // not assigned, ignored
	}

	r, err := f.Analyze("exp", metrics)
	require.NoError(t, err)
	assert.Equal(t, 3, r.ControlN)
	assert.Equal(t, 3, r.TreatmentN)
	assert.InDelta(t, 0.2, r.ControlMean, 1e-9)
	assert.InDelta(t, 0.6, r.TreatmentMean, 1e-9)
}

func TestFrameworkUnknownExperiment(t *testing.T) {
	f := New(0.05)
	_, err := f.Analyze("missing", nil)
	assert.Error(t, err)
}

func TestFrameworkReportRequiresAnalyze(t *testing.T) {
	f := New(0.05)
	f.CreateExperiment("exp", []string{"a"}, []string{"b"}, "")

	_, err := f.Report("exp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run Analyze first")

	_, err = f.Analyze("exp", map[string]float64{"a": 1, "b": 2})
	require.NoError(t, err)

	report, err := f.Report("exp")
	require.NoError(t, err)
	assert.Contains(t, report, "A/B TEST: exp")
	assert.Contains(t, report, "P-value")
}

func TestLoadAssignments(t *testing.T) {
	f := New(0.05)
	f.LoadAssignments("exp", []Assignment{
		{UserID: "a", Experiment: "exp", Variant: "control"},
		{UserID: "b", Experiment: "exp", Variant: "treatment"},
		{UserID: "c", Experiment: "other", Variant: "treatment"},
	})

	r, err := f.Analyze("exp", map[string]float64{"a": 1, "b": 2, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, 1, r.ControlN)
	assert.Equal(t, 1, r.TreatmentN, "assignments for other experiments are skipped")
}

func TestSimulate(t *testing.T) {
	// A 20% uplift on a 30% baseline over 10k users is reliably detected.
	withEffect := Simulate(10000, 0.20, 7)
	assert.True(t, withEffect.IsSignificant)
	assert.Greater(t, withEffect.TreatmentMean, withEffect.ControlMean)

	// Determinism under the same seed.
	assert.Equal(t, withEffect, Simulate(10000, 0.20, 7))
}
