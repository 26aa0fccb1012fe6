package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
)

// StableSortTasks orders tasks by (deadline, with none sorting last; course
// id, with empty sorting last; task id), a total and deterministic order.
func StableSortTasks(tasks []Task) []Task {
	sorted := append([]Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		ad, bd := a.Deadline, b.Deadline
		switch {
		case ad == nil && bd != nil:
			return false
		case ad != nil && bd == nil:
			return true
		case ad != nil && bd != nil && !ad.Equal(*bd):
			return ad.Before(*bd)
		}
		switch {
		case a.Course == "" && b.Course != "":
			return false
		case a.Course != "" && b.Course == "":
			return true
		case a.Course != b.Course:
			return a.Course < b.Course
		}
		return a.ID.String() < b.ID.String()
	})
	return sorted
}

// taskFingerprint and eventFingerprint are the minimal per-item fields that
// feed RequestHash, mirroring spec §4.2.
type taskFingerprint struct {
	id       string
	minutes  int
	deadline string
}

type eventFingerprint struct {
	id    string
	start string
	end   string
}

// RequestHash produces a deterministic fingerprint of tasks, events, horizon
// and user: SHA-256 over a canonical field list, truncated to 16 hex chars.
func RequestHash(tasks []Task, events []BusyEvent, horizonDays int, userID uuid.UUID) string {
	tfs := make([]taskFingerprint, 0, len(tasks))
	for _, t := range tasks {
		dl := ""
		if t.Deadline != nil {
			dl = t.Deadline.UTC().Format(time.RFC3339Nano)
		}
		tfs = append(tfs, taskFingerprint{id: t.ID.String(), minutes: t.EstimatedMinutes, deadline: dl})
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].id < tfs[j].id })

	efs := make([]eventFingerprint, 0, len(events))
	for _, e := range events {
		efs = append(efs, eventFingerprint{
			id:    e.ID,
			start: e.Start.UTC().Format(time.RFC3339Nano),
			end:   e.End.UTC().Format(time.RFC3339Nano),
		})
	}
	sort.Slice(efs, func(i, j int) bool { return efs[i].id < efs[j].id })

	h := sha256.New()
	for _, tf := range tfs {
		fmt.Fprintf(h, "t:%s:%d:%s|", tf.id, tf.minutes, tf.deadline)
	}
	for _, ef := range efs {
		fmt.Fprintf(h, "e:%s:%s:%s|", ef.id, ef.start, ef.end)
	}
	fmt.Fprintf(h, "h:%d|u:%s", horizonDays, userID.String())

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

// NewDeterministicRNG seeds a *rand.Rand from the configured global seed,
// the one entry point the rest of the core may use for tie-breaking or
// local-search exploration in the solver/fallback.
func NewDeterministicRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// FrozenWindow returns [now, now+hours), the interval inside which existing
// blocks are protected from moves.
func FrozenWindow(now time.Time, hours float64) TimeSlot {
	return TimeSlot{Start: now, End: now.Add(time.Duration(hours * float64(time.Hour)))}
}

// InertiaPenalty computes the cost of moving an existing block to a new
// start time: base = |new.Start - existing.Start| in hours * weight, with
// multipliers for frozen (x3), manual (x2), locked (x5) — multipliers
// compound when more than one applies.
func InertiaPenalty(newStart, existingStart time.Time, inFrozenWindow, manual, locked bool, weight float64) float64 {
	diffHours := newStart.Sub(existingStart).Hours()
	if diffHours < 0 {
		diffHours = -diffHours
	}
	penalty := diffHours * weight
	if inFrozenWindow {
		penalty *= 3
	}
	if manual {
		penalty *= 2
	}
	if locked {
		penalty *= 5
	}
	return penalty
}

// StabilityMetrics compares a new block set against the existing one.
type StabilityMetrics struct {
	MovedBlockRatio    float64
	AvgMoveDistanceHrs float64
	BlocksAdded        int
	BlocksRemoved      int
	BlocksMoved        int
	StabilityScore     float64
}

// ComputeStabilityMetrics implements spec §4.2's stability_metrics: a move
// is counted when the same task appears in both schedules but its start
// time differs by more than 15 minutes.
func ComputeStabilityMetrics(newBlocks, existingBlocks []ScheduleBlock) StabilityMetrics {
	existingByTask := make(map[uuid.UUID]ScheduleBlock, len(existingBlocks))
	for _, b := range existingBlocks {
		existingByTask[b.TaskID] = b
	}
	newByTask := make(map[uuid.UUID]ScheduleBlock, len(newBlocks))
	for _, b := range newBlocks {
		newByTask[b.TaskID] = b
	}

	moved := 0
	var totalMoveHours float64
	for taskID, oldBlock := range existingByTask {
		newBlock, stillPresent := newByTask[taskID]
		if !stillPresent {
			continue
		}
		diff := newBlock.Start.Sub(oldBlock.Start)
		if diff < 0 {
			diff = -diff
		}
		if diff > 15*time.Minute {
			moved++
			totalMoveHours += diff.Hours()
		}
	}

	removed := 0
	for taskID := range existingByTask {
		if _, ok := newByTask[taskID]; !ok {
			removed++
		}
	}
	added := 0
	for taskID := range newByTask {
		if _, ok := existingByTask[taskID]; !ok {
			added++
		}
	}

	total := len(existingBlocks)
	movedRatio, removedRatio, avgMove := 0.0, 0.0, 0.0
	if total > 0 {
		movedRatio = float64(moved) / float64(total)
		removedRatio = float64(removed) / float64(total)
	}
	if moved > 0 {
		avgMove = totalMoveHours / float64(moved)
	}

	stability := 1 - movedRatio - removedRatio
	if stability < 0 {
		stability = 0
	}

	return StabilityMetrics{
		MovedBlockRatio:    movedRatio,
		AvgMoveDistanceHrs: avgMove,
		BlocksAdded:        added,
		BlocksRemoved:      removed,
		BlocksMoved:        moved,
		StabilityScore:     stability,
	}
}

// ValidateNoThrash reports whether moved_block_ratio <= threshold.
func ValidateNoThrash(newBlocks, existingBlocks []ScheduleBlock, threshold float64) (bool, string) {
	metrics := ComputeStabilityMetrics(newBlocks, existingBlocks)
	if metrics.MovedBlockRatio <= threshold {
		return true, fmt.Sprintf("moved_block_ratio %.3f <= threshold %.3f", metrics.MovedBlockRatio, threshold)
	}
	return false, fmt.Sprintf("moved_block_ratio %.3f exceeds threshold %.3f", metrics.MovedBlockRatio, threshold)
}

// EnsureDeterministic re-sorts the solution's blocks by (start, task id) and
// its unscheduled list by task id, and attaches determinism diagnostics.
func EnsureDeterministic(solution *ScheduleSolution, seed int64, inputHash string) {
	sort.SliceStable(solution.Blocks, func(i, j int) bool {
		a, b := solution.Blocks[i], solution.Blocks[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.TaskID.String() < b.TaskID.String()
	})
	sort.Slice(solution.UnscheduledTaskIDs, func(i, j int) bool {
		return solution.UnscheduledTaskIDs[i].String() < solution.UnscheduledTaskIDs[j].String()
	})

	if solution.Diagnostics == nil {
		solution.Diagnostics = make(map[string]any)
	}
	solution.Diagnostics["determinism_seed"] = seed
	solution.Diagnostics["input_hash"] = inputHash
	solution.Diagnostics["solution_hash"] = solutionHash(solution)
}

func solutionHash(solution *ScheduleSolution) string {
	h := sha256.New()
	for _, b := range solution.Blocks {
		fmt.Fprintf(h, "%s:%s:%s|", b.TaskID, b.Start.UTC().Format(time.RFC3339), b.End.UTC().Format(time.RFC3339))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
