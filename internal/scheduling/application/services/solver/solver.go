// Package solver hand-rolls the 0/1 decision-matrix constraint model of spec
// §4.3 as one constructive placement pass that places each task greedily
// against the hard constraints, scored by a utility-minus-penalty
// objective. There is no local-improvement pass after placement. No
// off-the-shelf CP-SAT binding exists in the example corpus, so this is
// grounded on the teacher's own greedy SchedulerEngine
// (application/services/scheduler_engine.go) generalized with a real
// decision-matrix occupancy grid, topological precedence ordering, and the
// weighted penalty table, in place of its single best-slot heuristic.
package solver

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// UtilityMatrix is util[task_id][slot_index] → utility, supplied by the
// utility-provider collaborator (or the core's built-in rule).
type UtilityMatrix map[uuid.UUID]map[int]float64

// Params configures one solve attempt.
type Params struct {
	TimeLimit              time.Duration
	Seed                   int64
	Weights                Weights
	DisableSoftConstraints bool
	ExistingBlocks         []domain.ScheduleBlock
	FrozenWindow           domain.TimeSlot
}

// Solver is stateless; every input arrives per call.
type Solver struct{}

// New builds a Solver.
func New() *Solver {
	return &Solver{}
}

// occupant tracks, per slot index, which task (if any) holds it — the
// dense decision-matrix grid of spec §9 ("a dense bit grid is acceptable up
// to ~300 tasks x 2000 slots"), represented here as a dense slice with one
// entry per slot of the time index.
type occupant struct {
	taskID uuid.UUID
	occupied bool
}

// Solve attempts to place every task into the time index, respecting hard
// constraints 1-11, and returns a ScheduleSolution with status one of
// optimal/feasible/infeasible/timeout per spec §4.3's terminal mapping.
func (s *Solver) Solve(
	tasks []domain.Task,
	events []domain.BusyEvent,
	prefs domain.Preferences,
	ti *domain.TimeIndex,
	utilities UtilityMatrix,
	params Params,
	now time.Time,
) *domain.ScheduleSolution {
	deadline := now
	if params.TimeLimit > 0 {
		deadline = time.Now().Add(params.TimeLimit)
	}

	grid := make([]occupant, ti.NumSlots())
	blocked := ti.BlockedSlots(events)
	for idx := range grid {
		if blocked[idx] {
			grid[idx].occupied = true
		}
	}
	markOutsideWorkday(grid, ti, prefs)

	solution := &domain.ScheduleSolution{
		Diagnostics: make(map[string]any),
	}

	present := make(map[uuid.UUID]domain.Task, len(tasks))
	for _, t := range tasks {
		present[t.ID] = t
	}

	order, cyclic := topologicalOrder(tasks)
	if cyclic {
		report := diagnoseInfeasibility(tasks, ti, countFree(grid), nil)
		solution.Status = domain.SolverStatusInfeasible
		solution.Diagnostics["infeasible_reason"] = report.String()
		return solution
	}

	dailyUsed := make(map[string]int)
	remaining := make(map[uuid.UUID]int, len(tasks))
	for _, t := range tasks {
		remaining[t.ID] = t.EstimatedMinutes
	}

	// Hard constraint 6: pinned slots are forced before the greedy pass, and
	// a conflict between two tasks' pinned slots makes the model infeasible.
	if _, _, conflict := findPinnedSlotConflict(tasks); conflict {
		report := diagnoseInfeasibility(tasks, ti, countFree(grid), nil)
		solution.Status = domain.SolverStatusInfeasible
		solution.Diagnostics["infeasible_reason"] = report.String()
		return solution
	}
	for _, t := range order {
		for _, pin := range t.PinnedSlots {
			indices := ti.WindowToIndices(pin.Start, pin.End, false)
			for _, idx := range indices {
				if idx < 0 || idx >= len(grid) || grid[idx].occupied {
					continue
				}
				grid[idx] = occupant{taskID: t.ID, occupied: true}
				dailyUsed[ti.DatetimeOf(idx).Format("2006-01-02")] += int(ti.Granularity().Minutes())
			}
			used := len(indices) * int(ti.Granularity().Minutes())
			remaining[t.ID] -= used
			if remaining[t.ID] < 0 {
				remaining[t.ID] = 0
			}
		}
	}

	var timedOut bool
	var failedTask *domain.Task

	for _, t := range order {
		if params.TimeLimit > 0 && time.Now().After(deadline) {
			timedOut = true
			break
		}
		if remaining[t.ID] <= 0 {
			continue
		}
		if !prerequisitesSatisfied(t, present, solution) {
			continue
		}

		ok := placeTask(t, grid, ti, prefs, utilities, params, dailyUsed, remaining, solution)
		if !ok {
			failedTask = &t
			break
		}
	}

	if timedOut {
		solution.Status = domain.SolverStatusTimeout
		solution.RecomputeTotals()
		return solution
	}

	if failedTask != nil || anyRemaining(remaining) {
		if failedTask == nil {
			for _, t := range order {
				if remaining[t.ID] > 0 {
					tc := t
					failedTask = &tc
					break
				}
			}
		}
		report := diagnoseInfeasibility(tasks, ti, countFree(grid), failedTask)
		solution.Status = domain.SolverStatusInfeasible
		solution.Diagnostics["infeasible_reason"] = report.String()
		solution.Blocks = nil
		return solution
	}

	solution.Status = domain.SolverStatusOptimal
	solution.Feasible = true
	solution.ObjectiveValue = computeObjective(solution.Blocks, present, grid, ti, utilities, params)
	solution.RecomputeTotals()
	return solution
}

func anyRemaining(remaining map[uuid.UUID]int) bool {
	for _, r := range remaining {
		if r > 0 {
			return true
		}
	}
	return false
}

func prerequisitesSatisfied(t domain.Task, present map[uuid.UUID]domain.Task, solution *domain.ScheduleSolution) bool {
	scheduled := make(map[uuid.UUID]bool)
	for _, b := range solution.Blocks {
		scheduled[b.TaskID] = true
	}
	for _, p := range t.Prerequisites {
		if _, ok := present[p]; !ok {
			continue // not in this request: treated as already completed
		}
		if !scheduled[p] {
			return false
		}
	}
	return true
}

// markOutsideWorkday enforces hard constraint 11: slots outside
// [workday_start, workday_end] on their day are forced to zero for every
// task, modeled here as permanently occupied by no one.
func markOutsideWorkday(grid []occupant, ti *domain.TimeIndex, prefs domain.Preferences) {
	tz := ti.Timezone()
	day := time.Date(ti.Start().Year(), ti.Start().Month(), ti.Start().Day(), 0, 0, 0, 0, tz)
	workdaySet := make(map[int]bool)
	for day.Before(ti.End()) {
		for _, idx := range ti.WorkdayIndices(day, prefs) {
			workdaySet[idx] = true
		}
		day = day.AddDate(0, 0, 1)
	}
	for idx := range grid {
		if !workdaySet[idx] {
			grid[idx].occupied = true
		}
	}
}

func countFree(grid []occupant) int {
	n := 0
	for _, o := range grid {
		if !o.occupied {
			n++
		}
	}
	return n
}

// placeTask greedily fills remaining[t.ID] minutes of t into the highest
// scoring contiguous runs available in grid, respecting deadline,
// earliest-start, daily-cap, and min/max block hard constraints. Returns
// false if it cannot fully place the task.
func placeTask(
	t domain.Task,
	grid []occupant,
	ti *domain.TimeIndex,
	prefs domain.Preferences,
	utilities UtilityMatrix,
	params Params,
	dailyUsed map[string]int,
	remaining map[uuid.UUID]int,
	solution *domain.ScheduleSolution,
) bool {
	g := int(ti.Granularity().Minutes())
	minSlots := ceilDiv(t.MinBlockMinutes, g)
	maxSlots := 0
	if t.MaxBlockMinutes > 0 {
		maxSlots = t.MaxBlockMinutes / g
	}

	var deadlineSlot = -1
	if t.Deadline != nil {
		if idx, ok := ti.SlotOf(*t.Deadline); ok {
			deadlineSlot = idx
		} else if t.Deadline.Before(ti.End()) {
			deadlineSlot = 0
		} else {
			deadlineSlot = ti.NumSlots()
		}
	}
	var earliestSlot = 0
	if t.EarliestStart != nil {
		if idx, ok := ti.SlotOf(*t.EarliestStart); ok {
			earliestSlot = idx
		}
	}

	for remaining[t.ID] > 0 {
		candidates := candidateSlots(grid, ti, prefs, t, deadlineSlot, earliestSlot, dailyUsed, g)
		if len(candidates) == 0 {
			return false
		}
		runs := domain.ContiguousBlocks(candidates)
		start, length, found := bestRun(runs, minSlots, maxSlots, t, grid, ti, utilities, params)
		if !found {
			return false
		}

		need := ceilDiv(remaining[t.ID], g)
		use := length
		if need < use {
			use = need
		}
		if maxSlots > 0 && use > maxSlots {
			use = maxSlots
		}
		if use < minSlots {
			return false
		}

		for i := 0; i < use; i++ {
			idx := start + i
			grid[idx] = occupant{taskID: t.ID, occupied: true}
			dailyUsed[ti.DatetimeOf(idx).Format("2006-01-02")] += g
		}
		blockMinutes := use * g
		if blockMinutes > remaining[t.ID] {
			blockMinutes = remaining[t.ID]
		}
		solution.Blocks = append(solution.Blocks, domain.ScheduleBlock{
			TaskID: t.ID,
			Start:  ti.DatetimeOf(start),
			End:    ti.DatetimeOf(start + use),
		})
		remaining[t.ID] -= blockMinutes
		if remaining[t.ID] < 0 {
			remaining[t.ID] = 0
		}
	}
	return true
}

func candidateSlots(grid []occupant, ti *domain.TimeIndex, prefs domain.Preferences, t domain.Task, deadlineSlot, earliestSlot int, dailyUsed map[string]int, g int) []int {
	var out []int
	for idx := 0; idx < len(grid); idx++ {
		if grid[idx].occupied {
			continue
		}
		if idx < earliestSlot {
			continue
		}
		if deadlineSlot >= 0 && idx >= deadlineSlot {
			continue
		}
		dateKey := ti.DatetimeOf(idx).Format("2006-01-02")
		if dailyUsed[dateKey]+g > prefs.MaxDailyEffortMinutes {
			continue
		}
		out = append(out, idx)
	}
	return out
}

// bestRun picks the highest-scoring window of at least minSlots within the
// given contiguous runs, scored by utility minus soft-constraint penalties.
func bestRun(runs [][]int, minSlots, maxSlots int, t domain.Task, grid []occupant, ti *domain.TimeIndex, utilities UtilityMatrix, params Params) (start, length int, ok bool) {
	bestScore := 0.0
	found := false
	for _, run := range runs {
		if len(run) < minSlots {
			continue
		}
		windowLen := len(run)
		if maxSlots > 0 && windowLen > maxSlots {
			windowLen = maxSlots
		}
		score := scoreWindow(run[0], windowLen, t, grid, ti, utilities, params)
		if !found || score > bestScore {
			bestScore = score
			start = run[0]
			length = windowLen
			found = true
		}
	}
	return start, length, found
}

func scoreWindow(start, length int, t domain.Task, grid []occupant, ti *domain.TimeIndex, utilities UtilityMatrix, params Params) float64 {
	score := 0.0
	for i := 0; i < length; i++ {
		idx := start + i
		if um, ok := utilities[t.ID]; ok {
			score += um[idx]
		}
		if !params.DisableSoftConstraints {
			score -= slotPenalty(t, idx, grid, ti, params.Weights)
		}
	}
	return score
}

// topologicalOrder returns tasks ordered so every prerequisite precedes its
// dependent, tie-broken by domain.StableSortTasks for a total deterministic
// order among tasks with no relative dependency.
func topologicalOrder(tasks []domain.Task) ([]domain.Task, bool) {
	stable := domain.StableSortTasks(tasks)
	rank := make(map[uuid.UUID]int, len(stable))
	present := make(map[uuid.UUID]bool, len(stable))
	for i, t := range stable {
		rank[t.ID] = i
		present[t.ID] = true
	}
	indegree := make(map[uuid.UUID]int, len(stable))
	byID := make(map[uuid.UUID]domain.Task, len(stable))
	adj := make(map[uuid.UUID][]uuid.UUID)
	for _, t := range stable {
		indegree[t.ID] = 0
		byID[t.ID] = t
	}
	for _, t := range stable {
		for _, p := range t.Prerequisites {
			if !present[p] {
				continue
			}
			adj[p] = append(adj[p], t.ID)
			indegree[t.ID]++
		}
	}

	var ready []uuid.UUID
	for _, t := range stable {
		if indegree[t.ID] == 0 {
			ready = append(ready, t.ID)
		}
	}

	var order []domain.Task
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return rank[ready[i]] < rank[ready[j]] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, byID[id])
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) < len(stable) {
		return stable, true
	}
	return order, false
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func computeObjective(blocks []domain.ScheduleBlock, taskByID map[uuid.UUID]domain.Task, grid []occupant, ti *domain.TimeIndex, utilities UtilityMatrix, params Params) float64 {
	total := 0.0
	for _, b := range blocks {
		t, known := taskByID[b.TaskID]
		if !known {
			t = domain.Task{ID: b.TaskID}
		}
		for slotStart := b.Start; slotStart.Before(b.End); slotStart = slotStart.Add(ti.Granularity()) {
			si, ok := ti.SlotOf(slotStart)
			if !ok {
				continue
			}
			if um, ok := utilities[b.TaskID]; ok {
				total += um[si]
			}
			if !params.DisableSoftConstraints {
				total -= slotPenalty(t, si, grid, ti, params.Weights)
			}
		}
	}
	return total
}
