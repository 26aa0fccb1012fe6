package core_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/scheduler/internal/scheduling/application/services/core"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// stubRepository is an in-memory ports.Repository used only by these tests;
// the real adapters live under infrastructure/persistence.
type stubRepository struct {
	tasks       []domain.Task
	events      []domain.BusyEvent
	prefs       domain.Preferences
	history     []domain.CompletionEvent
	saved       *domain.ScheduleSolution
	activeBlocks []domain.ScheduleBlock
}

func (r *stubRepository) SaveSolution(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error {
	r.saved = solution
	return nil
}

func (r *stubRepository) LoadActiveBlocks(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.ScheduleBlock, error) {
	return r.activeBlocks, nil
}

func (r *stubRepository) LoadTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	return r.tasks, nil
}

func (r *stubRepository) LoadBusyEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyEvent, error) {
	return r.events, nil
}

func (r *stubRepository) LoadPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error) {
	return r.prefs, nil
}

func (r *stubRepository) LoadCompletionHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.CompletionEvent, error) {
	return r.history, nil
}

func (r *stubRepository) RecordRequestMetric(ctx context.Context, userID uuid.UUID, latencyMS int64, status domain.SolverStatus) error {
	return nil
}

// S1 from spec §8: two tasks that both fit comfortably before their
// deadlines on a single day with no busy events.
func TestSchedule_S1_SimpleTwoTasks(t *testing.T) {
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	essayDeadline := now.AddDate(0, 0, 4).Add(15 * time.Hour)
	quizDeadline := now.AddDate(0, 0, 2).Add(15 * time.Hour)

	prefs := domain.DefaultPreferences(time.UTC)
	prefs.WorkdayStartHHMM = "09:00"
	prefs.WorkdayEndHHMM = "17:00"
	prefs.MaxDailyEffortMinutes = 480

	repo := &stubRepository{
		tasks: []domain.Task{
			{ID: uuid.New(), Title: "essay", EstimatedMinutes: 120, MinBlockMinutes: 60, Deadline: &essayDeadline, Weight: 2.0, CreatedAt: now},
			{ID: uuid.New(), Title: "quiz_prep", EstimatedMinutes: 60, MinBlockMinutes: 30, Deadline: &quizDeadline, Weight: 1.5, CreatedAt: now},
		},
		prefs: prefs,
	}

	svc := core.New(core.Config{Repository: repo})
	resp, err := svc.Schedule(context.Background(), core.Request{UserID: uuid.New(), HorizonDays: 5}, now)

	require.NoError(t, err)
	assert.True(t, resp.Feasible)
	assert.Len(t, resp.Blocks, 2)
	assert.InDelta(t, 180, resp.Metrics.TotalScheduledMinutes, 30)
}

// S2 from spec §8: an urgent task and a long task neither of which can both
// fit before their deadlines given the busy event — solver goes infeasible
// and the fallback fully schedules only one of the two; the other is
// reported unscheduled.
func TestSchedule_S2_DeadlineConflictFallsBackToGreedy(t *testing.T) {
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	urgentDeadline := now.Add(10 * time.Hour)
	longDeadline := now.Add(12 * time.Hour)

	prefs := domain.DefaultPreferences(time.UTC)
	prefs.MaxDailyEffortMinutes = 420

	repo := &stubRepository{
		tasks: []domain.Task{
			{ID: uuid.New(), Title: "urgent", EstimatedMinutes: 240, MinBlockMinutes: 120, Deadline: &urgentDeadline, Weight: 3, CreatedAt: now},
			{ID: uuid.New(), Title: "long", EstimatedMinutes: 360, MinBlockMinutes: 60, Deadline: &longDeadline, CreatedAt: now},
		},
		events: []domain.BusyEvent{
			{ID: "e1", Start: now.Add(6 * time.Hour), End: now.Add(7 * time.Hour), Hard: true},
		},
		prefs: prefs,
	}

	svc := core.New(core.Config{Repository: repo})
	resp, err := svc.Schedule(context.Background(), core.Request{UserID: uuid.New(), HorizonDays: 1}, now)

	require.NoError(t, err)
	assert.Equal(t, domain.SolverStatusFallback, resp.Metrics.SolverStatus)
	assert.Equal(t, 1, resp.Metrics.UnscheduledTasks)
}

func TestSchedule_DryRunDoesNotPersist(t *testing.T) {
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	deadline := now.AddDate(0, 0, 2)
	repo := &stubRepository{
		tasks: []domain.Task{
			{ID: uuid.New(), Title: "reading", EstimatedMinutes: 60, MinBlockMinutes: 30, Deadline: &deadline, CreatedAt: now},
		},
		prefs: domain.DefaultPreferences(time.UTC),
	}

	svc := core.New(core.Config{Repository: repo})
	_, err := svc.Schedule(context.Background(), core.Request{UserID: uuid.New(), HorizonDays: 3, DryRun: true}, now)

	require.NoError(t, err)
	assert.Nil(t, repo.saved)
}

func TestSchedule_RejectsInvalidHorizon(t *testing.T) {
	svc := core.New(core.Config{})
	resp, err := svc.Schedule(context.Background(), core.Request{UserID: uuid.New(), HorizonDays: 0}, time.Now().UTC())

	require.Error(t, err)
	assert.False(t, resp.Feasible)
	assert.True(t, domain.IsKind(err, domain.KindInputValidation))
}

func TestSchedule_NoRepositoryStillProducesBuiltinSchedule(t *testing.T) {
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	deadline := now.AddDate(0, 0, 2)
	svc := core.New(core.Config{})

	resp, err := svc.Schedule(context.Background(), core.Request{UserID: uuid.New(), HorizonDays: 3}, now)
	require.NoError(t, err)
	assert.Empty(t, resp.Blocks)
	_ = deadline
}

// S3 from spec §8: three tasks over a three-day horizon with a daily
// recurring lecture and a 360-minute daily effort cap whose three-day total
// is comfortably above the combined workload — all three should schedule,
// totaling ~780 minutes.
func TestSchedule_S3_MultiDayWithDailyLectures(t *testing.T) {
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC) // Monday
	researchDeadline := now.AddDate(0, 0, 3)
	codingDeadline := now.AddDate(0, 0, 2).Add(12 * time.Hour)

	prefs := domain.DefaultPreferences(time.UTC)
	prefs.WorkdayStartHHMM = "09:00"
	prefs.WorkdayEndHHMM = "17:00"
	prefs.MaxDailyEffortMinutes = 360
	prefs.DeepWorkWindows = []domain.PreferredWindow{
		{DayOfWeek: time.Monday, StartHHMM: "14:00", EndHHMM: "16:00"},
		{DayOfWeek: time.Tuesday, StartHHMM: "14:00", EndHHMM: "16:00"},
	}

	var lectures []domain.BusyEvent
	for day := 0; day < 3; day++ {
		base := time.Date(2026, 8, 3+day, 0, 0, 0, 0, time.UTC)
		lectures = append(lectures, domain.BusyEvent{
			ID:    "lecture-" + base.Format("2006-01-02"),
			Start: base.Add(10 * time.Hour),
			End:   base.Add(11*time.Hour + 30*time.Minute),
			Hard:  true,
		})
	}

	repo := &stubRepository{
		tasks: []domain.Task{
			{ID: uuid.New(), Title: "research", EstimatedMinutes: 480, MinBlockMinutes: 90, Deadline: &researchDeadline, CreatedAt: now},
			{ID: uuid.New(), Title: "coding", EstimatedMinutes: 180, MinBlockMinutes: 60, Deadline: &codingDeadline, CreatedAt: now},
			{ID: uuid.New(), Title: "reading", EstimatedMinutes: 120, MinBlockMinutes: 30, CreatedAt: now},
		},
		events: lectures,
		prefs:  prefs,
	}

	svc := core.New(core.Config{Repository: repo})
	resp, err := svc.Schedule(context.Background(), core.Request{UserID: uuid.New(), HorizonDays: 3}, now)

	require.NoError(t, err)
	assert.True(t, resp.Feasible)
	assert.Zero(t, resp.Metrics.UnscheduledTasks)
	assert.InDelta(t, 780, resp.Metrics.TotalScheduledMinutes, 90)
}

// S4 from spec §8: re-running scheduling with one new low-priority task
// added must not disturb the blocks already assigned to the original
// tasks — moved_block_ratio stays within the no-thrash threshold.
func TestSchedule_S4_NoThrashOnAddedTask(t *testing.T) {
	now := time.Date(2026, 8, 3, 8, 0, 0, 0, time.UTC)
	essayDeadline := now.AddDate(0, 0, 4).Add(15 * time.Hour)
	quizDeadline := now.AddDate(0, 0, 2).Add(15 * time.Hour)

	prefs := domain.DefaultPreferences(time.UTC)
	prefs.WorkdayStartHHMM = "09:00"
	prefs.WorkdayEndHHMM = "17:00"
	prefs.MaxDailyEffortMinutes = 480

	essayID, quizID := uuid.New(), uuid.New()
	originalTasks := []domain.Task{
		{ID: essayID, Title: "essay", EstimatedMinutes: 120, MinBlockMinutes: 60, Deadline: &essayDeadline, Weight: 2.0, CreatedAt: now},
		{ID: quizID, Title: "quiz_prep", EstimatedMinutes: 60, MinBlockMinutes: 30, Deadline: &quizDeadline, Weight: 1.5, CreatedAt: now},
	}

	repo := &stubRepository{tasks: originalTasks, prefs: prefs}
	svc := core.New(core.Config{Repository: repo})

	first, err := svc.Schedule(context.Background(), core.Request{UserID: uuid.New(), HorizonDays: 5}, now)
	require.NoError(t, err)
	require.True(t, first.Feasible)

	// A new, low-priority task (no deadline, so it sorts last in priority
	// order) is added between runs; it must not reshuffle the existing two.
	lowPriority := domain.Task{ID: uuid.New(), Title: "organize_notes", EstimatedMinutes: 30, MinBlockMinutes: 15, Weight: 0.1, CreatedAt: now.Add(time.Minute)}
	repo.tasks = append(append([]domain.Task(nil), originalTasks...), lowPriority)

	second, err := svc.Schedule(context.Background(), core.Request{UserID: uuid.New(), HorizonDays: 5}, now)
	require.NoError(t, err)
	require.True(t, second.Feasible)

	toScheduleBlocks := func(blocks []core.Block) []domain.ScheduleBlock {
		out := make([]domain.ScheduleBlock, 0, len(blocks))
		for _, b := range blocks {
			out = append(out, domain.ScheduleBlock{TaskID: b.TaskID, Start: b.Start, End: b.End})
		}
		return out
	}

	metrics := domain.ComputeStabilityMetrics(toScheduleBlocks(second.Blocks), toScheduleBlocks(first.Blocks))
	assert.LessOrEqual(t, metrics.MovedBlockRatio, 0.2)

	startsByTask := func(blocks []core.Block, taskID uuid.UUID) []time.Time {
		var starts []time.Time
		for _, b := range blocks {
			if b.TaskID == taskID {
				starts = append(starts, b.Start)
			}
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
		return starts
	}
	for _, taskID := range []uuid.UUID{essayID, quizID} {
		assert.Equal(t, startsByTask(first.Blocks, taskID), startsByTask(second.Blocks, taskID),
			"original task %s should keep its first-run block start times", taskID)
	}
}
