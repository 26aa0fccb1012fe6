package solver

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// InfeasibilityReason is the tagged variant for why a model could not be
// fully satisfied, per spec §4.3's "Infeasibility diagnosis" checks.
type InfeasibilityReason string

const (
	ReasonInsufficientTotalTime InfeasibilityReason = "insufficient_total_time"
	ReasonDeadlineInfeasible    InfeasibilityReason = "deadline_infeasible"
	ReasonCircularPrerequisite  InfeasibilityReason = "circular_prerequisite"
	ReasonPinnedSlotConflict    InfeasibilityReason = "pinned_slot_conflict"
	ReasonUnknown               InfeasibilityReason = "unknown"
)

// InfeasibilityReport is the typed result of diagnoseInfeasibility on an
// INFEASIBLE solve; Solve stores its String() rendering, a plain string,
// under diagnostics.infeasible_reason. Grounded on
// original_source's solver.py _diagnose_infeasibility (SPEC_FULL.md §4
// supplemented feature).
type InfeasibilityReport struct {
	Reasons []InfeasibilityReason
	TaskID  *uuid.UUID
	Detail  string
}

func (r InfeasibilityReport) String() string {
	if r.TaskID != nil {
		return fmt.Sprintf("%v: %s (task %s)", r.Reasons, r.Detail, r.TaskID)
	}
	return fmt.Sprintf("%v: %s", r.Reasons, r.Detail)
}

// diagnoseInfeasibility runs the cheap checks spec §4.3 lists and returns
// the first that fails, in this order: circular prerequisites, pinned-slot
// conflicts, total-time-vs-free-capacity, per-task deadline feasibility.
func diagnoseInfeasibility(tasks []domain.Task, ti *domain.TimeIndex, freeSlotCount int, failedTask *domain.Task) InfeasibilityReport {
	if cyc, ok := findPrerequisiteCycle(tasks); ok {
		return InfeasibilityReport{Reasons: []InfeasibilityReason{ReasonCircularPrerequisite}, Detail: fmt.Sprintf("cycle through task %s", cyc)}
	}

	if conflictA, conflictB, ok := findPinnedSlotConflict(tasks); ok {
		return InfeasibilityReport{
			Reasons: []InfeasibilityReason{ReasonPinnedSlotConflict},
			TaskID:  &conflictA,
			Detail:  fmt.Sprintf("pinned slots overlap with task %s", conflictB),
		}
	}

	granularityMinutes := int(ti.Granularity().Minutes())
	totalRemaining := 0
	for _, t := range tasks {
		totalRemaining += t.EstimatedMinutes
	}
	if totalRemaining > freeSlotCount*granularityMinutes {
		return InfeasibilityReport{
			Reasons: []InfeasibilityReason{ReasonInsufficientTotalTime},
			Detail:  fmt.Sprintf("%dmin of work requested against %dmin of free capacity", totalRemaining, freeSlotCount*granularityMinutes),
		}
	}

	if failedTask != nil {
		if failedTask.Deadline != nil {
			deadlineSlot, ok := ti.SlotOf(*failedTask.Deadline)
			if ok {
				slotsBeforeDeadline := deadlineSlot
				if slotsBeforeDeadline*granularityMinutes < failedTask.EstimatedMinutes {
					tid := failedTask.ID
					return InfeasibilityReport{
						Reasons: []InfeasibilityReason{ReasonDeadlineInfeasible},
						TaskID:  &tid,
						Detail:  fmt.Sprintf("only %d slots (%dmin) available before deadline, needs %dmin", slotsBeforeDeadline, slotsBeforeDeadline*granularityMinutes, failedTask.EstimatedMinutes),
					}
				}
			}
		}
		tid := failedTask.ID
		return InfeasibilityReport{Reasons: []InfeasibilityReason{ReasonUnknown}, TaskID: &tid, Detail: "no feasible placement found for task under current constraints"}
	}

	return InfeasibilityReport{Reasons: []InfeasibilityReason{ReasonUnknown}, Detail: "infeasible for an undetermined reason"}
}

// findPrerequisiteCycle runs Kahn's algorithm restricted to tasks present in
// this request; a prerequisite id absent from the set is treated as already
// satisfied (vacuous), per spec §4.3 constraint 9.
func findPrerequisiteCycle(tasks []domain.Task) (uuid.UUID, bool) {
	present := make(map[uuid.UUID]domain.Task, len(tasks))
	for _, t := range tasks {
		present[t.ID] = t
	}
	indegree := make(map[uuid.UUID]int, len(tasks))
	adj := make(map[uuid.UUID][]uuid.UUID)
	for _, t := range tasks {
		indegree[t.ID] = 0
	}
	for _, t := range tasks {
		for _, p := range t.Prerequisites {
			if _, ok := present[p]; !ok {
				continue
			}
			adj[p] = append(adj[p], t.ID)
			indegree[t.ID]++
		}
	}
	var queue []uuid.UUID
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited < len(tasks) {
		for id, deg := range indegree {
			if deg > 0 {
				return id, true
			}
		}
	}
	return uuid.UUID{}, false
}

// findPinnedSlotConflict reports the first pair of tasks whose pinned slots
// overlap, if any.
func findPinnedSlotConflict(tasks []domain.Task) (uuid.UUID, uuid.UUID, bool) {
	for i := 0; i < len(tasks); i++ {
		for _, s1 := range tasks[i].PinnedSlots {
			for j := i + 1; j < len(tasks); j++ {
				for _, s2 := range tasks[j].PinnedSlots {
					if s1.Overlaps(s2) {
						return tasks[i].ID, tasks[j].ID, true
					}
				}
			}
		}
	}
	return uuid.UUID{}, uuid.UUID{}, false
}
