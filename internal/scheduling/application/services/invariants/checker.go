// Package invariants validates a produced ScheduleSolution against the
// structural, task, calendar, preference, and meta invariants of spec §4.5,
// grounded on the teacher's Schedule.FindAvailableSlots/conflict-detection
// pattern (internal/scheduling/domain/schedule.go in the teacher repo)
// generalized from a single-day calendar check into a full-horizon checker.
package invariants

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// Violation names a single broken invariant together with enough context to
// act on it without re-deriving the failure.
type Violation struct {
	Rule    string
	TaskID  *uuid.UUID
	Message string
}

// Metrics summarizes the checked solution the way spec §4.5 requires, plus
// the busiest-day and largest-gap figures its quality-analyzer grounding
// also reports (spec §4.5's metrics list is additive, not exhaustive).
type Metrics struct {
	TotalBlocks           int
	TotalScheduledMinutes int
	AverageBlockDuration  float64
	FragmentationScore    float64
	TaskCoverageRatio     float64
	UnscheduledTaskRatio  float64
	BusiestDayMinutes     int
	MaxGapMinutes         int
}

// Report is the result of a check run.
type Report struct {
	Passed            bool
	Violations        []Violation
	Warnings          []Violation
	Metrics           Metrics
	CheckedInvariants []string
}

// Checker holds no state; it is a pure function host over (solution, tasks,
// events, preferences, time index).
type Checker struct {
	Strict bool
}

// New builds a Checker. strict=true makes CheckStrict return an error on any
// violation; Check itself always just reports (used in request-path normal
// mode, where violations are recorded but do not abort the response).
func New(strict bool) *Checker {
	return &Checker{Strict: strict}
}

// CheckStrict runs Check and, if c.Strict and any violation was found,
// returns an *domain.SchedulerError of kind InvariantViolation.
func (c *Checker) CheckStrict(
	solution *domain.ScheduleSolution,
	tasks []domain.Task,
	events []domain.BusyEvent,
	prefs domain.Preferences,
	ti *domain.TimeIndex,
	now time.Time,
) (Report, error) {
	report := c.Check(solution, tasks, events, prefs, ti, now)
	if c.Strict && !report.Passed {
		return report, domain.NewSchedulerError(domain.KindInvariantViolation, fmt.Sprintf("%d invariant violations", len(report.Violations)))
	}
	return report, nil
}

// Check validates solution against tasks/events/preferences/index and
// returns a full report. now is the reference instant for "no block in the
// past" and deadline-proximity warnings.
func (c *Checker) Check(
	solution *domain.ScheduleSolution,
	tasks []domain.Task,
	events []domain.BusyEvent,
	prefs domain.Preferences,
	ti *domain.TimeIndex,
	now time.Time,
) Report {
	taskByID := make(map[uuid.UUID]domain.Task, len(tasks))
	for _, t := range tasks {
		taskByID[t.ID] = t
	}

	var violations, warnings []Violation
	add := func(rule string, taskID *uuid.UUID, format string, args ...any) {
		violations = append(violations, Violation{Rule: rule, TaskID: taskID, Message: fmt.Sprintf(format, args...)})
	}
	warn := func(rule string, taskID *uuid.UUID, format string, args ...any) {
		warnings = append(warnings, Violation{Rule: rule, TaskID: taskID, Message: fmt.Sprintf(format, args...)})
	}

	checked := []string{}

	checked = append(checked, "no_overlapping_blocks")
	for i := 0; i < len(solution.Blocks); i++ {
		for j := i + 1; j < len(solution.Blocks); j++ {
			if solution.Blocks[i].OverlapsWith(solution.Blocks[j]) {
				add("no_overlapping_blocks", nil, "blocks for tasks %s and %s overlap", solution.Blocks[i].TaskID, solution.Blocks[j].TaskID)
			}
		}
	}

	checked = append(checked, "block_duration_and_range", "block_granularity_alignment", "block_inside_horizon")
	for _, b := range solution.Blocks {
		tid := b.TaskID
		if !b.End.After(b.Start) {
			add("block_duration_and_range", &tid, "block start %s is not before end %s", b.Start, b.End)
		}
		if ti != nil {
			if err := b.Validate(ti); err != nil {
				add("block_granularity_alignment", &tid, "%v", err)
			}
			if b.Start.Before(ti.Start()) || b.End.After(ti.End()) {
				add("block_inside_horizon", &tid, "block [%s, %s) lies outside horizon [%s, %s)", b.Start, b.End, ti.Start(), ti.End())
			}
		}
	}

	checked = append(checked, "block_task_known", "scheduled_minutes_ge_estimated", "block_meets_min_block",
		"block_ends_by_deadline", "earliest_start_respected", "max_splits_not_exceeded")
	scheduledMinutes := make(map[uuid.UUID]int)
	blockCounts := make(map[uuid.UUID]int)
	for _, b := range solution.Blocks {
		scheduledMinutes[b.TaskID] += b.DurationMinutes()
		blockCounts[b.TaskID]++

		task, ok := taskByID[b.TaskID]
		if !ok {
			tid := b.TaskID
			add("block_task_known", &tid, "block references unknown task %s", b.TaskID)
			continue
		}
		if b.DurationMinutes() < task.MinBlockMinutes {
			tid := b.TaskID
			add("block_meets_min_block", &tid, "block duration %dmin is below task min_block %dmin", b.DurationMinutes(), task.MinBlockMinutes)
		}
		if task.Deadline != nil {
			if b.End.After(*task.Deadline) {
				tid := b.TaskID
				add("block_ends_by_deadline", &tid, "block ends %s after deadline %s", b.End, *task.Deadline)
			} else if task.Deadline.Sub(b.End) < time.Hour {
				tid := b.TaskID
				warn("block_ends_by_deadline", &tid, "block ends within 1h of deadline %s", *task.Deadline)
			}
		}
		if task.EarliestStart != nil && b.Start.Before(*task.EarliestStart) {
			tid := b.TaskID
			add("earliest_start_respected", &tid, "block starts %s before earliest_start %s", b.Start, *task.EarliestStart)
		}
	}
	for taskID, total := range scheduledMinutes {
		task, ok := taskByID[taskID]
		if !ok {
			continue
		}
		tid := taskID
		if total < task.EstimatedMinutes {
			add("scheduled_minutes_ge_estimated", &tid, "scheduled %dmin is below estimated %dmin", total, task.EstimatedMinutes)
		} else if float64(total) > float64(task.EstimatedMinutes)*1.5 {
			warn("scheduled_minutes_ge_estimated", &tid, "scheduled %dmin exceeds 150%% of estimated %dmin", total, task.EstimatedMinutes)
		}
		if n := blockCounts[taskID]; n > task.MaxSplits() {
			add("max_splits_not_exceeded", &tid, "task split into %d blocks, exceeding max_splits %d", n, task.MaxSplits())
		}
	}

	checked = append(checked, "prerequisite_ordering")
	taskEnd := make(map[uuid.UUID]time.Time)
	taskStart := make(map[uuid.UUID]time.Time)
	for _, b := range solution.Blocks {
		if end, ok := taskEnd[b.TaskID]; !ok || b.End.After(end) {
			taskEnd[b.TaskID] = b.End
		}
		if start, ok := taskStart[b.TaskID]; !ok || b.Start.Before(start) {
			taskStart[b.TaskID] = b.Start
		}
	}
	for _, task := range tasks {
		start, started := taskStart[task.ID]
		if !started {
			continue
		}
		for _, prereqID := range task.Prerequisites {
			if prereqEnd, ok := taskEnd[prereqID]; ok {
				if prereqEnd.After(start) {
					tid := task.ID
					add("prerequisite_ordering", &tid, "prerequisite %s ends %s after dependent start %s", prereqID, prereqEnd, start)
				}
			}
		}
	}

	checked = append(checked, "no_hard_event_overlap")
	for _, b := range solution.Blocks {
		for _, e := range events {
			if !e.Hard {
				continue
			}
			if e.Overlaps(b.Start, b.End) {
				tid := b.TaskID
				add("no_hard_event_overlap", &tid, "block overlaps hard event %q (%s - %s)", e.Title, e.Start, e.End)
			}
		}
	}

	checked = append(checked, "late_night_early_morning_warning", "workday_bounds_warning", "daily_effort_cap")
	dailyMinutes := make(map[string]int)
	for _, b := range solution.Blocks {
		tid := b.TaskID
		if b.Start.Hour() < 6 || b.Start.Hour() >= 22 {
			warn("late_night_early_morning_warning", &tid, "block starts at %02d:%02d", b.Start.Hour(), b.Start.Minute())
		}
		dateKey := b.Start.Format("2006-01-02")
		dailyMinutes[dateKey] += b.DurationMinutes()
	}
	for date, minutes := range dailyMinutes {
		if minutes > prefs.MaxDailyEffortMinutes {
			add("daily_effort_cap", nil, "day %s scheduled %dmin exceeds max_daily_effort %dmin", date, minutes, prefs.MaxDailyEffortMinutes)
		} else if float64(minutes) >= 0.9*float64(prefs.MaxDailyEffortMinutes) {
			warn("daily_effort_cap", nil, "day %s scheduled %dmin is at or above 90%% of max_daily_effort %dmin", date, minutes, prefs.MaxDailyEffortMinutes)
		}
	}

	checked = append(checked, "dst_duration_agreement")
	if ti != nil && ti.Timezone() != time.UTC {
		for _, b := range solution.Blocks {
			utcDuration, localDuration, diff := dstDurationAgreement(b.Start, b.End, ti.Timezone())
			if diff > time.Hour {
				tid := b.TaskID
				add("dst_duration_agreement", &tid, "block duration disagrees between UTC (%s) and local wall-clock (%s) reckoning by %s, exceeding the 1h DST tolerance", utcDuration, localDuration, diff)
			}
		}
	}

	checked = append(checked, "total_scheduled_minutes_matches", "scheduled_unscheduled_disjoint", "no_block_in_past", "transition_buffer")
	computedTotal := 0
	for _, b := range solution.Blocks {
		computedTotal += b.DurationMinutes()
	}
	if computedTotal != solution.TotalScheduledMin {
		add("total_scheduled_minutes_matches", nil, "solution.TotalScheduledMin=%d does not match computed total %d", solution.TotalScheduledMin, computedTotal)
	}
	scheduledSet := make(map[uuid.UUID]bool)
	for taskID := range scheduledMinutes {
		scheduledSet[taskID] = true
	}
	for _, id := range solution.UnscheduledTaskIDs {
		if scheduledSet[id] {
			tid := id
			add("scheduled_unscheduled_disjoint", &tid, "task %s appears in both scheduled and unscheduled sets", id)
		}
	}
	for _, b := range solution.Blocks {
		if b.Start.Before(now) {
			tid := b.TaskID
			add("no_block_in_past", &tid, "block starts %s, before now %s", b.Start, now)
		}
	}
	sortedBlocks := append([]domain.ScheduleBlock(nil), solution.Blocks...)
	for i := 0; i < len(sortedBlocks); i++ {
		for j := 0; j < len(sortedBlocks); j++ {
			if i == j || sortedBlocks[i].TaskID == sortedBlocks[j].TaskID {
				continue
			}
			a, b := sortedBlocks[i], sortedBlocks[j]
			if a.End.After(b.Start) {
				continue
			}
			if !b.Start.After(a.End) {
				continue
			}
			gap := b.Start.Sub(a.End)
			if a.End.Before(b.Start) && gap < prefs.MinGapBetweenBlocks {
				warn("transition_buffer", nil, "gap of %s between blocks for %s and %s is below min_gap %s", gap, a.TaskID, b.TaskID, prefs.MinGapBetweenBlocks)
			}
		}
	}

	metrics := computeMetrics(solution, tasks)

	report := Report{
		Passed:            len(violations) == 0,
		Violations:        violations,
		Warnings:          warnings,
		Metrics:           metrics,
		CheckedInvariants: checked,
	}
	return report
}

// dstDurationAgreement implements spec §4.5's meta invariant "for non-UTC
// timezones, duration in UTC and local must agree to within one hour": it
// compares a block's true elapsed duration against the duration implied by
// treating its local wall-clock timestamps as if they carried no offset at
// all. The two agree exactly outside of a UTC-offset transition and diverge
// by the size of that transition across one, so an ordinary one-hour DST
// shift stays within tolerance while a genuine computation bug (or an
// unusual multi-hour transition) is flagged.
func dstDurationAgreement(start, end time.Time, loc *time.Location) (utcDuration, localDuration, diff time.Duration) {
	ls, le := start.In(loc), end.In(loc)
	naiveStart := time.Date(ls.Year(), ls.Month(), ls.Day(), ls.Hour(), ls.Minute(), ls.Second(), ls.Nanosecond(), time.UTC)
	naiveEnd := time.Date(le.Year(), le.Month(), le.Day(), le.Hour(), le.Minute(), le.Second(), le.Nanosecond(), time.UTC)
	utcDuration = end.Sub(start)
	localDuration = naiveEnd.Sub(naiveStart)
	diff = localDuration - utcDuration
	if diff < 0 {
		diff = -diff
	}
	return utcDuration, localDuration, diff
}

func computeMetrics(solution *domain.ScheduleSolution, tasks []domain.Task) Metrics {
	m := Metrics{
		TotalBlocks:           len(solution.Blocks),
		TotalScheduledMinutes: solution.TotalScheduledMin,
	}
	if m.TotalBlocks > 0 {
		m.AverageBlockDuration = float64(m.TotalScheduledMinutes) / float64(m.TotalBlocks)
	}

	perTaskBlocks := make(map[uuid.UUID]int)
	for _, b := range solution.Blocks {
		perTaskBlocks[b.TaskID]++
	}
	scheduledTasks := len(perTaskBlocks)
	if scheduledTasks > 0 {
		sum := 0
		for _, n := range perTaskBlocks {
			sum += n
		}
		m.FragmentationScore = float64(sum) / float64(scheduledTasks)
	}
	if len(tasks) > 0 {
		m.TaskCoverageRatio = float64(scheduledTasks) / float64(len(tasks))
		m.UnscheduledTaskRatio = float64(len(solution.UnscheduledTaskIDs)) / float64(len(tasks))
	}

	dailyMinutes := make(map[string]int)
	for _, b := range solution.Blocks {
		dailyMinutes[b.Start.Format("2006-01-02")] += b.DurationMinutes()
	}
	for _, minutes := range dailyMinutes {
		if minutes > m.BusiestDayMinutes {
			m.BusiestDayMinutes = minutes
		}
	}

	sortedBlocks := append([]domain.ScheduleBlock(nil), solution.Blocks...)
	sort.Slice(sortedBlocks, func(i, j int) bool { return sortedBlocks[i].Start.Before(sortedBlocks[j].Start) })
	for i := 1; i < len(sortedBlocks); i++ {
		gapMinutes := int(sortedBlocks[i].Start.Sub(sortedBlocks[i-1].End).Minutes())
		if gapMinutes > m.MaxGapMinutes {
			m.MaxGapMinutes = gapMinutes
		}
	}
	return m
}
