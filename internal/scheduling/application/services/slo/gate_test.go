package slo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/scheduler/internal/scheduling/application/services/slo"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

func TestGate_GreenWhenNoSamples(t *testing.T) {
	gate := slo.NewGate(slo.DefaultConfig())
	c := gate.Classify(time.Now())
	assert.Equal(t, slo.LevelGreen, c.Level)
	assert.Empty(t, c.Violations)
}

// S6 from spec §8: inject latency so P95 exceeds the 8000ms threshold for
// five requests; the next classification must carry coarsening params with
// max_solve_time_seconds <= 8 and disable_ml_features true.
func TestGate_P95BreachTriggersCoarsening(t *testing.T) {
	gate := slo.NewGate(slo.DefaultConfig())
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		reqID := "req-" + string(rune('a'+i))
		start := now.Add(time.Duration(i) * time.Second)
		_, err := gate.CheckBeforeRequest(reqID, start)
		require.NoError(t, err)
		gate.RecordCompletion(reqID, start.Add(9*time.Second), true, 1, 1, "")
	}

	c := gate.Classify(now.Add(6 * time.Second))
	require.Contains(t, c.Violations, "p95_latency")
	assert.NotEqual(t, slo.LevelGreen, c.Level)
	assert.LessOrEqual(t, c.Coarsening.MaxSolveTimeSeconds, 8)
	assert.True(t, c.Coarsening.DisableMLFeatures)
}

func TestGate_RedAfterManyViolationsDisablesSoftConstraints(t *testing.T) {
	gate := slo.NewGate(slo.DefaultConfig())
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		reqID := "req"
		start := now.Add(time.Duration(i) * time.Second)
		_, _ = gate.CheckBeforeRequest(reqID, start)
		// p95 violation but under the p99 threshold, plus feasibility and
		// blocks-ratio violations: three violations with p99 in range maps
		// to RED per spec §4.7's table (">2 violations, p99 OK").
		gate.RecordCompletion(reqID, start.Add(9*time.Second), false, 0, 4, "infeasible")
	}

	c := gate.Classify(now.Add(21 * time.Second))
	assert.Equal(t, slo.LevelRed, c.Level)
	assert.True(t, c.Coarsening.DisableSoftConstraints)
}

func TestGate_RejectsOnRedAtConcurrencyCeiling(t *testing.T) {
	cfg := slo.DefaultConfig()
	cfg.MaxConcurrentOnRed = 1
	gate := slo.NewGate(cfg)
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 20; i++ {
		reqID := "warmup"
		start := now.Add(time.Duration(i) * time.Second)
		_, _ = gate.CheckBeforeRequest(reqID, start)
		gate.RecordCompletion(reqID, start.Add(9*time.Second), false, 0, 4, "infeasible")
	}

	later := now.Add(21 * time.Second)
	_, err := gate.CheckBeforeRequest("blocker", later)
	require.NoError(t, err)

	_, err = gate.CheckBeforeRequest("rejected", later.Add(time.Millisecond))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindSLOViolation))
}

func TestGate_FeasibilityDropTriggersViolation(t *testing.T) {
	gate := slo.NewGate(slo.DefaultConfig())
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		reqID := "req"
		start := now.Add(time.Duration(i) * time.Second)
		_, _ = gate.CheckBeforeRequest(reqID, start)
		feasible := i < 5 // 50% feasibility, below the 95% threshold
		gate.RecordCompletion(reqID, start.Add(time.Second), feasible, 1, 1, "")
	}

	c := gate.Classify(now.Add(11 * time.Second))
	assert.Contains(t, c.Violations, "feasibility_rate")
}
