package invariants_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/scheduler/internal/scheduling/application/services/invariants"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

func mustIndex(t *testing.T, start, end time.Time) *domain.TimeIndex {
	t.Helper()
	ti, err := domain.NewTimeIndex(time.UTC, start, end, 30)
	require.NoError(t, err)
	return ti
}

func TestChecker_PassesCleanSolution(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	taskID := uuid.New()
	deadline := day.Add(20 * time.Hour)
	task := domain.Task{
		ID:               taskID,
		EstimatedMinutes: 60,
		MinBlockMinutes:  30,
		Deadline:         &deadline,
	}

	solution := &domain.ScheduleSolution{
		Feasible: true,
		Blocks: []domain.ScheduleBlock{
			{TaskID: taskID, Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		},
	}
	solution.RecomputeTotals()

	prefs := domain.DefaultPreferences(time.UTC)
	now := day.Add(-time.Hour)

	report := invariants.New(false).Check(solution, []domain.Task{task}, nil, prefs, ti, now)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Violations)
	assert.Equal(t, 1, report.Metrics.TotalBlocks)
	assert.Equal(t, 60, report.Metrics.TotalScheduledMinutes)
}

func TestChecker_DetectsOverlap(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	t1, t2 := uuid.New(), uuid.New()
	solution := &domain.ScheduleSolution{
		Blocks: []domain.ScheduleBlock{
			{TaskID: t1, Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
			{TaskID: t2, Start: day.Add(9*time.Hour + 30*time.Minute), End: day.Add(11 * time.Hour)},
		},
	}
	solution.RecomputeTotals()

	tasks := []domain.Task{
		{ID: t1, EstimatedMinutes: 60, MinBlockMinutes: 30},
		{ID: t2, EstimatedMinutes: 90, MinBlockMinutes: 30},
	}
	prefs := domain.DefaultPreferences(time.UTC)

	report := invariants.New(false).Check(solution, tasks, nil, prefs, ti, day.Add(-time.Hour))
	require.False(t, report.Passed)
	found := false
	for _, v := range report.Violations {
		if v.Rule == "no_overlapping_blocks" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestChecker_DetectsHardEventOverlap(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	taskID := uuid.New()
	solution := &domain.ScheduleSolution{
		Blocks: []domain.ScheduleBlock{
			{TaskID: taskID, Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		},
	}
	solution.RecomputeTotals()

	events := []domain.BusyEvent{
		{ID: "e1", Start: day.Add(9*time.Hour + 30*time.Minute), End: day.Add(11 * time.Hour), Hard: true},
	}
	tasks := []domain.Task{{ID: taskID, EstimatedMinutes: 60, MinBlockMinutes: 30}}
	prefs := domain.DefaultPreferences(time.UTC)

	report := invariants.New(false).Check(solution, tasks, events, prefs, ti, day.Add(-time.Hour))
	require.False(t, report.Passed)
	assert.Equal(t, "no_hard_event_overlap", report.Violations[0].Rule)
}

func TestChecker_DailyEffortCapExceeded(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	taskID := uuid.New()
	solution := &domain.ScheduleSolution{
		Blocks: []domain.ScheduleBlock{
			{TaskID: taskID, Start: day.Add(9 * time.Hour), End: day.Add(14 * time.Hour)},
		},
	}
	solution.RecomputeTotals()

	tasks := []domain.Task{{ID: taskID, EstimatedMinutes: 300, MinBlockMinutes: 30}}
	prefs := domain.DefaultPreferences(time.UTC)
	prefs.MaxDailyEffortMinutes = 120

	report := invariants.New(false).Check(solution, tasks, nil, prefs, ti, day.Add(-time.Hour))
	require.False(t, report.Passed)
	assert.Equal(t, "daily_effort_cap", report.Violations[0].Rule)
}

func TestChecker_StrictModeReturnsError(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	taskID := uuid.New()
	solution := &domain.ScheduleSolution{
		Blocks: []domain.ScheduleBlock{
			{TaskID: taskID, Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 10*time.Minute)},
		},
	}
	solution.RecomputeTotals()
	tasks := []domain.Task{{ID: taskID, EstimatedMinutes: 60, MinBlockMinutes: 30}}
	prefs := domain.DefaultPreferences(time.UTC)

	_, err := invariants.New(true).CheckStrict(solution, tasks, nil, prefs, ti, day.Add(-time.Hour))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvariantViolation))
}

func TestChecker_DSTDurationAgreement_FlagsAnomalousOffsetJump(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Apia")
	if err != nil {
		t.Skip("tzdata not available in this environment")
	}

	// Samoa skipped Dec 30, 2011 entirely, jumping from UTC-11 to UTC+13 — a
	// 24h offset change, far outside the 1h DST tolerance.
	start := time.Date(2011, 12, 29, 22, 0, 0, 0, loc)
	end := time.Date(2011, 12, 31, 2, 0, 0, 0, loc)
	ti, err := domain.NewTimeIndex(loc, start, end.AddDate(0, 0, 1), 30)
	require.NoError(t, err)

	taskID := uuid.New()
	solution := &domain.ScheduleSolution{
		Blocks: []domain.ScheduleBlock{
			{TaskID: taskID, Start: start, End: end},
		},
	}
	solution.RecomputeTotals()

	tasks := []domain.Task{{ID: taskID, EstimatedMinutes: int(end.Sub(start).Minutes()), MinBlockMinutes: 30}}
	prefs := domain.DefaultPreferences(loc)

	report := invariants.New(false).Check(solution, tasks, nil, prefs, ti, start.Add(-time.Hour))
	require.False(t, report.Passed)
	found := false
	for _, v := range report.Violations {
		if v.Rule == "dst_duration_agreement" {
			found = true
		}
	}
	assert.True(t, found, "expected a dst_duration_agreement violation for the Samoa date-line skip")
	assert.Contains(t, report.CheckedInvariants, "dst_duration_agreement")
}

func TestChecker_MissingTaskReference(t *testing.T) {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	ti := mustIndex(t, day, day.AddDate(0, 0, 1))

	solution := &domain.ScheduleSolution{
		Blocks: []domain.ScheduleBlock{
			{TaskID: uuid.New(), Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)},
		},
	}
	solution.RecomputeTotals()
	prefs := domain.DefaultPreferences(time.UTC)

	report := invariants.New(false).Check(solution, nil, nil, prefs, ti, day.Add(-time.Hour))
	require.False(t, report.Passed)
	assert.Equal(t, "block_task_known", report.Violations[0].Rule)
}
