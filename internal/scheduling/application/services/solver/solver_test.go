package solver_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/scheduler/internal/scheduling/application/services/solver"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

func mustIndex(t *testing.T, start, end time.Time) *domain.TimeIndex {
	t.Helper()
	ti, err := domain.NewTimeIndex(time.UTC, start, end, 30)
	require.NoError(t, err)
	return ti
}

func TestSolve_SimpleTwoTasksFeasible(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 5))

	essayDeadline := day.AddDate(0, 0, 4).Add(23 * time.Hour)
	quizDeadline := day.AddDate(0, 0, 2).Add(23 * time.Hour)

	essayID, quizID := uuid.New(), uuid.New()
	tasks := []domain.Task{
		{ID: essayID, EstimatedMinutes: 120, MinBlockMinutes: 60, Deadline: &essayDeadline, Weight: 2.0},
		{ID: quizID, EstimatedMinutes: 60, MinBlockMinutes: 30, Deadline: &quizDeadline, Weight: 1.5},
	}

	prefs := domain.DefaultPreferences(time.UTC)
	prefs.MaxDailyEffortMinutes = 480

	solution := solver.New().Solve(tasks, nil, prefs, ti, solver.UtilityMatrix{}, solver.Params{Weights: solver.DefaultWeights()}, day.Add(-time.Hour))

	require.True(t, solution.Feasible)
	assert.Equal(t, domain.SolverStatusOptimal, solution.Status)
	assert.InDelta(t, 180, solution.TotalScheduledMin, 1)
}

// S2 from spec §8: two tasks whose combined requirement cannot fit before
// their deadlines given the busy event — solver reports infeasible.
func TestSolve_DeadlineConflictInfeasible(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	urgentDeadline := day.Add(18 * time.Hour)
	longDeadline := day.Add(20 * time.Hour)

	tasks := []domain.Task{
		{ID: uuid.New(), EstimatedMinutes: 240, MinBlockMinutes: 120, Deadline: &urgentDeadline, Weight: 3},
		{ID: uuid.New(), EstimatedMinutes: 360, MinBlockMinutes: 60, Deadline: &longDeadline},
	}
	events := []domain.BusyEvent{
		{ID: "e1", Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour), Hard: true},
	}

	prefs := domain.DefaultPreferences(time.UTC)
	prefs.MaxDailyEffortMinutes = 420

	solution := solver.New().Solve(tasks, events, prefs, ti, solver.UtilityMatrix{}, solver.Params{Weights: solver.DefaultWeights()}, day.Add(-time.Hour))

	require.False(t, solution.Feasible)
	assert.Equal(t, domain.SolverStatusInfeasible, solution.Status)
	assert.Contains(t, solution.Diagnostics, "infeasible_reason")
}

func TestSolve_CircularPrerequisiteInfeasible(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	a, b := uuid.New(), uuid.New()
	tasks := []domain.Task{
		{ID: a, EstimatedMinutes: 60, MinBlockMinutes: 30, Prerequisites: []uuid.UUID{b}},
		{ID: b, EstimatedMinutes: 60, MinBlockMinutes: 30, Prerequisites: []uuid.UUID{a}},
	}
	prefs := domain.DefaultPreferences(time.UTC)

	solution := solver.New().Solve(tasks, nil, prefs, ti, solver.UtilityMatrix{}, solver.Params{Weights: solver.DefaultWeights()}, day.Add(-time.Hour))

	require.False(t, solution.Feasible)
	assert.Equal(t, domain.SolverStatusInfeasible, solution.Status)
	assert.Contains(t, solution.Diagnostics["infeasible_reason"], "circular_prerequisite")
}

func TestSolve_PrecedenceOrdering(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	prereq, dependent := uuid.New(), uuid.New()
	tasks := []domain.Task{
		{ID: dependent, EstimatedMinutes: 60, MinBlockMinutes: 30, Prerequisites: []uuid.UUID{prereq}},
		{ID: prereq, EstimatedMinutes: 60, MinBlockMinutes: 30},
	}
	prefs := domain.DefaultPreferences(time.UTC)
	prefs.MaxDailyEffortMinutes = 480

	solution := solver.New().Solve(tasks, nil, prefs, ti, solver.UtilityMatrix{}, solver.Params{Weights: solver.DefaultWeights()}, day.Add(-time.Hour))

	require.True(t, solution.Feasible)
	var prereqEnd, dependentStart time.Time
	for _, b := range solution.Blocks {
		if b.TaskID == prereq {
			prereqEnd = b.End
		}
		if b.TaskID == dependent {
			dependentStart = b.Start
		}
	}
	assert.True(t, !prereqEnd.After(dependentStart))
}

func TestSolve_PinnedSlotConflictInfeasible(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	slot := domain.TimeSlot{Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}
	tasks := []domain.Task{
		{ID: uuid.New(), EstimatedMinutes: 60, MinBlockMinutes: 30, PinnedSlots: []domain.TimeSlot{slot}},
		{ID: uuid.New(), EstimatedMinutes: 60, MinBlockMinutes: 30, PinnedSlots: []domain.TimeSlot{slot}},
	}
	prefs := domain.DefaultPreferences(time.UTC)

	solution := solver.New().Solve(tasks, nil, prefs, ti, solver.UtilityMatrix{}, solver.Params{Weights: solver.DefaultWeights()}, day.Add(-time.Hour))

	require.False(t, solution.Feasible)
	assert.Contains(t, solution.Diagnostics["infeasible_reason"], "pinned_slot_conflict")
}
