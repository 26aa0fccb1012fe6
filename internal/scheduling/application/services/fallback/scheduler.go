// Package fallback implements the deterministic earliest-fit greedy
// scheduler invoked when the constraint solver is unavailable, times out, or
// returns infeasible (spec §4.4). Grounded on the teacher's
// SchedulerEngine.scheduleTask (application/services/scheduler_engine.go),
// generalized from a single-day slot walk into a multi-day, multi-task,
// priority-ordered greedy fill with reason-coded diagnostics.
package fallback

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// window is a mutable free interval; available slots are tracked as a
// day-ordered list of these, shrunk in place as tasks consume them.
type window struct {
	start time.Time
	end   time.Time
}

func (w window) minutes() int {
	return int(w.end.Sub(w.start).Minutes())
}

// Scheduler is the stateless entry point; it holds no fields because every
// input it needs arrives per call (spec §5: "the fallback maintains
// daily_effort_used and available_slots as local state only").
type Scheduler struct{}

// New builds a Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule runs the greedy fill over tasks within ti's horizon, respecting
// hard busy events and preferences. completed identifies tasks already
// finished in prior runs (their prerequisites are vacuously satisfied).
func (s *Scheduler) Schedule(
	tasks []domain.Task,
	events []domain.BusyEvent,
	prefs domain.Preferences,
	ti *domain.TimeIndex,
	now time.Time,
	completed map[uuid.UUID]bool,
) *domain.ScheduleSolution {
	t0 := time.Now()

	granularity := int(ti.Granularity().Minutes())
	baseWindows := buildDailyWindows(ti, events, prefs)

	if completed == nil {
		completed = make(map[uuid.UUID]bool)
	} else {
		completed = cloneCompleted(completed)
	}

	ordered := prioritize(tasks, now)

	solution := &domain.ScheduleSolution{
		Status:             domain.SolverStatusFallback,
		UnscheduledReasons: make(map[uuid.UUID]domain.UnscheduledReason),
		Diagnostics:        make(map[string]any),
	}

	dailyEffortUsed := make(map[string]int)
	windows := cloneWindows(baseWindows)

	for _, task := range ordered {
		if blockedByPrereq(task, completed) {
			solution.UnscheduledTaskIDs = append(solution.UnscheduledTaskIDs, task.ID)
			solution.UnscheduledReasons[task.ID] = domain.ReasonBlockedPrereq
			continue
		}

		remaining := task.EstimatedMinutes
		splits := 0
		maxSplits := task.MaxSplits()

		for wi := 0; wi < len(windows) && remaining > 0 && splits < maxSplits; wi++ {
			w := windows[wi]
			if w.minutes() <= 0 {
				continue
			}
			if task.Deadline != nil && !w.start.Before(*task.Deadline) {
				continue
			}
			if task.EarliestStart != nil && w.start.Before(*task.EarliestStart) {
				continue
			}
			dateKey := w.start.Format("2006-01-02")
			dailyRemaining := prefs.MaxDailyEffortMinutes - dailyEffortUsed[dateKey]
			if dailyRemaining <= 0 {
				continue
			}
			if !windowMatchesPreferences(w, task) {
				continue
			}

			maxBlock := task.MaxBlockMinutes
			if maxBlock <= 0 {
				maxBlock = remaining
			}
			maxInSlot := minInt(remaining, w.minutes())
			maxInSlot = minInt(maxInSlot, maxBlock)
			maxInSlot = minInt(maxInSlot, dailyRemaining)
			maxInSlot = roundDownToGranularity(maxInSlot, granularity)

			if maxInSlot < task.MinBlockMinutes {
				continue
			}

			blockEnd := w.start.Add(time.Duration(maxInSlot) * time.Minute)
			solution.Blocks = append(solution.Blocks, domain.ScheduleBlock{
				TaskID: task.ID,
				Start:  w.start,
				End:    blockEnd,
			})

			remaining -= maxInSlot
			splits++
			dailyEffortUsed[dateKey] += maxInSlot
			windows[wi].start = blockEnd
		}

		if remaining <= 0 {
			completed[task.ID] = true
			continue
		}

		solution.UnscheduledTaskIDs = append(solution.UnscheduledTaskIDs, task.ID)
		solution.UnscheduledReasons[task.ID] = diagnose(task, baseWindows, dailyEffortUsed, prefs, splits, maxSplits, remaining)
	}

	solution.RecomputeTotals()
	solution.Feasible = len(solution.UnscheduledTaskIDs) == 0
	solution.SolveTimeMS = time.Since(t0).Milliseconds()
	return solution
}

func cloneCompleted(src map[uuid.UUID]bool) map[uuid.UUID]bool {
	dst := make(map[uuid.UUID]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneWindows(src []window) []window {
	dst := make([]window, len(src))
	copy(dst, src)
	return dst
}

func blockedByPrereq(task domain.Task, completed map[uuid.UUID]bool) bool {
	for _, p := range task.Prerequisites {
		if !completed[p] {
			return true
		}
	}
	return false
}

// prioritize orders tasks by TaskPriority(urgency desc, remaining_minutes
// desc, created_at asc, task_id asc) — a total, deterministic order with no
// hash-randomized containers, per spec §4.4.
func prioritize(tasks []domain.Task, now time.Time) []domain.Task {
	ordered := append([]domain.Task(nil), tasks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		ua, ub := urgency(a, now), urgency(b, now)
		if ua != ub {
			return ua > ub
		}
		if a.EstimatedMinutes != b.EstimatedMinutes {
			return a.EstimatedMinutes > b.EstimatedMinutes
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return ordered
}

func urgency(t domain.Task, now time.Time) float64 {
	if t.Deadline == nil {
		return 50
	}
	hoursUntil := t.Deadline.Sub(now).Hours()
	u := 100 - hoursUntil
	if u < 0 {
		u = 0
	}
	return u
}

// buildDailyWindows splits every day in the horizon into free ranges by
// subtracting hard busy events from the workday bounds, day by day, sorted
// ascending by start — the "available_slots" list of spec §4.4 step 1.
func buildDailyWindows(ti *domain.TimeIndex, events []domain.BusyEvent, prefs domain.Preferences) []window {
	var out []window
	tz := ti.Timezone()
	day := time.Date(ti.Start().Year(), ti.Start().Month(), ti.Start().Day(), 0, 0, 0, 0, tz)
	for day.Before(ti.End()) {
		free := ti.FreeSlots(day, events, prefs)
		for _, run := range domain.ContiguousBlocks(free) {
			slot, ok := ti.IndicesToWindow(run)
			if ok {
				out = append(out, window{start: slot.Start, end: slot.End})
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

// windowMatchesPreferences reports whether w overlaps at least one of the
// task's preferred windows, when any are declared; tasks without preferred
// windows accept any slot.
func windowMatchesPreferences(w window, task domain.Task) bool {
	if len(task.PreferredWindows) == 0 {
		return true
	}
	for _, pw := range task.PreferredWindows {
		if w.start.Weekday() != pw.DayOfWeek {
			continue
		}
		if overlapsHHMM(w, pw) {
			return true
		}
	}
	return false
}

func overlapsHHMM(w window, pw domain.PreferredWindow) bool {
	base := time.Date(w.start.Year(), w.start.Month(), w.start.Day(), 0, 0, 0, 0, w.start.Location())
	ws := addHHMM(base, pw.StartHHMM)
	we := addHHMM(base, pw.EndHHMM)
	return w.start.Before(we) && ws.Before(w.end)
}

func addHHMM(base time.Time, hhmm string) time.Time {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return base
	}
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	return time.Date(base.Year(), base.Month(), base.Day(), h, m, 0, 0, base.Location())
}

// diagnose assigns an UnscheduledReason per spec §4.4's checklist, in the
// priority order listed there.
func diagnose(task domain.Task, windows []window, dailyEffortUsed map[string]int, prefs domain.Preferences, splits, maxSplits, remaining int) domain.UnscheduledReason {
	if len(windows) == 0 {
		return domain.ReasonNoTime
	}

	totalAvailable := 0
	anyBeforeDeadline := false
	anyMeetsMinBlock := false
	anyDayUnderCap := false
	anyPreferenceMatch := len(task.PreferredWindows) == 0

	for _, w := range windows {
		if task.Deadline == nil || w.start.Before(*task.Deadline) {
			anyBeforeDeadline = true
			totalAvailable += w.minutes()
		}
		if w.minutes() >= task.MinBlockMinutes {
			anyMeetsMinBlock = true
		}
		dateKey := w.start.Format("2006-01-02")
		if dailyEffortUsed[dateKey] < prefs.MaxDailyEffortMinutes {
			anyDayUnderCap = true
		}
		if !anyPreferenceMatch && windowMatchesPreferences(w, task) {
			anyPreferenceMatch = true
		}
	}

	switch {
	case !anyBeforeDeadline:
		return domain.ReasonAfterDeadline
	case !anyMeetsMinBlock:
		return domain.ReasonInsufficientContiguous
	case totalAvailable < task.EstimatedMinutes:
		return domain.ReasonNoTime
	case !anyDayUnderCap:
		return domain.ReasonDailyLimitExceeded
	case !anyPreferenceMatch:
		return domain.ReasonWindowViolation
	case splits >= maxSplits && remaining > 0:
		return domain.ReasonSplitsLimitExceeded
	default:
		return domain.ReasonNoTime
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func roundDownToGranularity(minutes, granularity int) int {
	if granularity <= 0 {
		return minutes
	}
	return (minutes / granularity) * granularity
}
