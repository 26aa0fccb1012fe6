package fallback_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/scheduler/internal/scheduling/application/services/fallback"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

func mustIndex(t *testing.T, start, end time.Time) *domain.TimeIndex {
	t.Helper()
	ti, err := domain.NewTimeIndex(time.UTC, start, end, 30)
	require.NoError(t, err)
	return ti
}

// S1 from spec §8: two tasks, enough room, both should schedule.
func TestSchedule_SimpleTwoTasks(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 5))

	essayDeadline := day.AddDate(0, 0, 4).Add(23*time.Hour + 59*time.Minute)
	quizDeadline := day.AddDate(0, 0, 2).Add(23*time.Hour + 59*time.Minute)

	tasks := []domain.Task{
		{ID: uuid.New(), Title: "essay", EstimatedMinutes: 120, MinBlockMinutes: 60, Deadline: &essayDeadline, Weight: 2.0},
		{ID: uuid.New(), Title: "quiz_prep", EstimatedMinutes: 60, MinBlockMinutes: 30, Deadline: &quizDeadline, Weight: 1.5},
	}

	prefs := domain.DefaultPreferences(time.UTC)
	prefs.MaxDailyEffortMinutes = 480

	solution := fallback.New().Schedule(tasks, nil, prefs, ti, day.Add(-time.Hour), nil)

	assert.True(t, solution.Feasible)
	assert.Empty(t, solution.UnscheduledTaskIDs)
	assert.InDelta(t, 180, solution.TotalScheduledMin, 30)
}

// S5 from spec §8: min_block larger than any available gap.
func TestSchedule_InsufficientContiguousTime(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	// Busy events chop the workday into 60-min gaps only.
	events := []domain.BusyEvent{
		{ID: "e1", Start: day.Add(10 * time.Hour), End: day.Add(16 * time.Hour), Hard: true},
	}
	task := domain.Task{
		ID:               uuid.New(),
		EstimatedMinutes: 180,
		MinBlockMinutes:  180,
	}

	prefs := domain.DefaultPreferences(time.UTC)
	prefs.MaxDailyEffortMinutes = 480

	solution := fallback.New().Schedule([]domain.Task{task}, events, prefs, ti, day.Add(-time.Hour), nil)

	require.False(t, solution.Feasible)
	require.Contains(t, solution.UnscheduledTaskIDs, task.ID)
	assert.Equal(t, domain.ReasonInsufficientContiguous, solution.UnscheduledReasons[task.ID])
}

func TestSchedule_BlockedPrerequisite(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	prereqID := uuid.New()
	task := domain.Task{
		ID:               uuid.New(),
		EstimatedMinutes: 60,
		MinBlockMinutes:  30,
		Prerequisites:    []uuid.UUID{prereqID},
	}

	prefs := domain.DefaultPreferences(time.UTC)
	solution := fallback.New().Schedule([]domain.Task{task}, nil, prefs, ti, day.Add(-time.Hour), nil)

	require.False(t, solution.Feasible)
	assert.Equal(t, domain.ReasonBlockedPrereq, solution.UnscheduledReasons[task.ID])
}

func TestSchedule_DeadlineAlreadyPassed(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	pastDeadline := day.Add(8 * time.Hour) // before workday start
	task := domain.Task{
		ID:               uuid.New(),
		EstimatedMinutes: 60,
		MinBlockMinutes:  30,
		Deadline:         &pastDeadline,
	}

	prefs := domain.DefaultPreferences(time.UTC)
	solution := fallback.New().Schedule([]domain.Task{task}, nil, prefs, ti, day.Add(-time.Hour), nil)

	require.False(t, solution.Feasible)
	assert.Equal(t, domain.ReasonAfterDeadline, solution.UnscheduledReasons[task.ID])
}

func TestSchedule_DeterministicPriorityOrder(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	deadline := day.Add(17 * time.Hour)
	tasks := []domain.Task{
		{ID: uuid.New(), EstimatedMinutes: 30, MinBlockMinutes: 30, Deadline: &deadline},
		{ID: uuid.New(), EstimatedMinutes: 480, MinBlockMinutes: 30, Deadline: &deadline},
	}
	prefs := domain.DefaultPreferences(time.UTC)
	prefs.MaxDailyEffortMinutes = 480

	solution1 := fallback.New().Schedule(tasks, nil, prefs, ti, day.Add(-time.Hour), nil)
	solution2 := fallback.New().Schedule(tasks, nil, prefs, ti, day.Add(-time.Hour), nil)

	require.Equal(t, len(solution1.Blocks), len(solution2.Blocks))
	for i := range solution1.Blocks {
		assert.Equal(t, solution1.Blocks[i].TaskID, solution2.Blocks[i].TaskID)
		assert.True(t, solution1.Blocks[i].Start.Equal(solution2.Blocks[i].Start))
	}
}
