// Package replanning implements the per-block disruption scoring, allowed
// change computation, and post-solve scope validation of spec §4.6, built on
// top of the domain.ReplanScope/ReplanConstraint value types. Grounded on
// the teacher's ConflictResolver (application/services/conflict_resolver.go),
// which drives a similar "what can change, what's protected" decision before
// calling back into the scheduler — generalized here from single-conflict
// resolution into a whole-schedule change-scope computation.
package replanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// ChangeType is the tagged variant for what a replan may do to a block.
type ChangeType string

const (
	ChangeMove       ChangeType = "move"
	ChangeReschedule ChangeType = "reschedule"
	ChangeSplit      ChangeType = "split"
	ChangeMerge      ChangeType = "merge"
	ChangeCancel     ChangeType = "cancel"
)

// MoveCandidate names an existing block eligible to move, ranked by how
// disruptive moving it would be.
type MoveCandidate struct {
	TaskID     uuid.UUID
	Disruption float64
}

// MergeOpportunity names two adjacent same-task blocks that could combine.
type MergeOpportunity struct {
	FirstTaskID  uuid.UUID
	SecondTaskID uuid.UUID
}

// Plan is the output of ComputeScope: what may change, what's protected, and
// the aggregate disruption/stability figures spec §4.6 requires.
type Plan struct {
	AllowedChanges    map[uuid.UUID][]ChangeType
	ProtectedBlocks   []domain.ScheduleBlock
	MoveCandidates    []MoveCandidate
	MergeOpportunities []MergeOpportunity
	DisruptionScore   float64
	StabilityRatio    float64
}

// FlexibleBlock marks an existing block as eligible for the 0.7 flexible
// discount and CANCEL eligibility; callers supply this alongside the block
// set since "flexible" is not itself a ScheduleBlock field.
type FlexibleBlock struct {
	Block    domain.ScheduleBlock
	Flexible bool
}

// Controller is stateless.
type Controller struct{}

// New builds a Controller.
func New() *Controller {
	return &Controller{}
}

// ComputeScope evaluates every existing block against constraint and
// produces the allowed-changes plan of spec §4.6.
func (c *Controller) ComputeScope(
	existing []FlexibleBlock,
	constraint domain.ReplanConstraint,
	events []domain.BusyEvent,
	now time.Time,
) Plan {
	plan := Plan{
		AllowedChanges: make(map[uuid.UUID][]ChangeType),
	}

	type scored struct {
		block      domain.ScheduleBlock
		disruption float64
	}
	var protectedCount int
	var scoredBlocks []scored

	for _, fb := range existing {
		b := fb.Block
		disruption := disruptionScore(b, fb.Flexible, events, now)

		if isProtected(b, constraint, now) {
			protectedCount++
			plan.ProtectedBlocks = append(plan.ProtectedBlocks, b)
			continue
		}

		var changes []ChangeType
		if constraint.MaxDisruptionScore <= 20 {
			if disruption <= 15 {
				changes = append(changes, ChangeMove)
			}
			if b.DurationMinutes() > 180 {
				changes = append(changes, ChangeSplit)
			}
		} else {
			if disruption < constraint.MaxDisruptionScore {
				changes = append(changes, ChangeMove, ChangeReschedule)
			}
			if b.DurationMinutes() > 90 {
				changes = append(changes, ChangeSplit)
			}
			if !constraint.PreserveAdjacency {
				changes = append(changes, ChangeMerge)
			}
			if fb.Flexible && disruption < 30 {
				changes = append(changes, ChangeCancel)
			}
		}

		if len(changes) > 0 {
			plan.AllowedChanges[b.TaskID] = changes
			scoredBlocks = append(scoredBlocks, scored{block: b, disruption: disruption})
		}
	}

	sortByDisruptionAsc(scoredBlocks)
	maxMoves := constraint.MaxBlocksToMove
	for i, s := range scoredBlocks {
		if maxMoves > 0 && i >= maxMoves {
			break
		}
		plan.MoveCandidates = append(plan.MoveCandidates, MoveCandidate{TaskID: s.block.TaskID, Disruption: s.disruption})
	}

	plan.MergeOpportunities = findMergeOpportunities(existing)

	total := len(existing)
	if total > 0 {
		plan.StabilityRatio = float64(protectedCount) / float64(total)
	}
	plan.DisruptionScore = aggregateDisruption(scoredBlocks)

	return plan
}

// disruptionScore implements spec §4.6's per-block formula.
func disruptionScore(b domain.ScheduleBlock, flexible bool, events []domain.BusyEvent, now time.Time) float64 {
	score := 10.0

	hoursUntilStart := b.Start.Sub(now).Hours()
	if hoursUntilStart < 24 {
		score += (24 - hoursUntilStart) * 2
	}

	durationHours := b.End.Sub(b.Start).Hours()
	if durationHours > 2 {
		score += (durationHours - 2) * 5
	}

	for _, e := range events {
		if !e.Hard {
			continue
		}
		if withinHour(b, e) {
			score += 15
		}
	}

	if flexible {
		score *= 0.7
	}

	return score
}

func withinHour(b domain.ScheduleBlock, e domain.BusyEvent) bool {
	gapBefore := b.Start.Sub(e.End)
	gapAfter := e.Start.Sub(b.End)
	within := func(d time.Duration) bool { return d >= 0 && d <= time.Hour }
	return within(gapBefore) || within(gapAfter) || e.Overlaps(b.Start, b.End)
}

// isProtected reports whether b is protected per spec §4.6: its task id is
// in the protected set, OR its start lies in a frozen period, OR it falls
// outside the earliest/latest change window.
func isProtected(b domain.ScheduleBlock, constraint domain.ReplanConstraint, now time.Time) bool {
	for _, id := range constraint.ProtectedTaskIDs {
		if id == b.TaskID {
			return true
		}
	}
	for _, id := range constraint.ProtectedBlockTaskIDs {
		if id == b.TaskID {
			return true
		}
	}
	for _, period := range constraint.FrozenPeriods {
		if !b.Start.Before(period.Start) && b.Start.Before(period.End) {
			return true
		}
	}
	if constraint.EarliestChange != nil && b.Start.Before(*constraint.EarliestChange) {
		return true
	}
	if constraint.LatestChange != nil && b.Start.After(*constraint.LatestChange) {
		return true
	}
	return false
}

func sortByDisruptionAsc(items []struct {
	block      domain.ScheduleBlock
	disruption float64
}) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].disruption < items[j-1].disruption; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func aggregateDisruption(items []struct {
	block      domain.ScheduleBlock
	disruption float64
}) float64 {
	if len(items) == 0 {
		return 0
	}
	total := 0.0
	for _, it := range items {
		total += it.disruption
	}
	return total / float64(len(items))
}

// findMergeOpportunities pairs blocks belonging to the same task that are
// separated by a positive gap of at most 15 minutes — candidates a
// subsequent re-solve could collapse into one block. Blocks that touch
// (zero gap) are not paired.
func findMergeOpportunities(existing []FlexibleBlock) []MergeOpportunity {
	var out []MergeOpportunity
	for i := 0; i < len(existing); i++ {
		for j := 0; j < len(existing); j++ {
			if i == j {
				continue
			}
			a, b := existing[i].Block, existing[j].Block
			if a.TaskID != b.TaskID {
				continue
			}
			if b.Start.After(a.End) && b.Start.Sub(a.End) <= 15*time.Minute {
				out = append(out, MergeOpportunity{FirstTaskID: a.TaskID, SecondTaskID: b.TaskID})
			}
		}
	}
	return out
}

// Validate implements spec §4.6's post-solve check: a block is
// "substantially same" if start differs ≤15min AND duration differs ≤15min
// AND task id matches. Valid iff actual stability ratio ≥ min*0.9 (10%
// tolerance) AND every protected block is substantially-same or present.
func (c *Controller) Validate(newBlocks, original []domain.ScheduleBlock, constraint domain.ReplanConstraint, protectedTaskIDs []uuid.UUID) (bool, string) {
	if len(original) == 0 {
		return true, "no existing schedule to compare against"
	}

	sameCount := 0
	newByTask := make(map[uuid.UUID][]domain.ScheduleBlock)
	for _, b := range newBlocks {
		newByTask[b.TaskID] = append(newByTask[b.TaskID], b)
	}

	for _, ob := range original {
		if isSubstantiallySame(ob, newByTask[ob.TaskID]) {
			sameCount++
		}
	}
	actualRatio := float64(sameCount) / float64(len(original))

	if actualRatio < constraint.MinStabilityRatio*0.9 {
		return false, "actual stability ratio below tolerance of configured minimum"
	}

	for _, id := range protectedTaskIDs {
		var originalBlock *domain.ScheduleBlock
		for i := range original {
			if original[i].TaskID == id {
				originalBlock = &original[i]
				break
			}
		}
		if originalBlock == nil {
			continue
		}
		if !isSubstantiallySame(*originalBlock, newByTask[id]) {
			return false, "a protected block was altered beyond tolerance"
		}
	}

	return true, "stability and protection requirements satisfied"
}

func isSubstantiallySame(original domain.ScheduleBlock, candidates []domain.ScheduleBlock) bool {
	for _, nb := range candidates {
		startDiff := nb.Start.Sub(original.Start)
		if startDiff < 0 {
			startDiff = -startDiff
		}
		durationDiff := nb.DurationMinutes() - original.DurationMinutes()
		if durationDiff < 0 {
			durationDiff = -durationDiff
		}
		if startDiff <= 15*time.Minute && durationDiff <= 15 {
			return true
		}
	}
	return false
}
