package solver

import (
	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// slotPenalty sums the per-slot contribution of every applicable soft
// constraint from spec §4.3's table for task t occupying slot idx, given the
// current (possibly partial) placement grid for neighbor-dependent terms
// (context switch, fragmentation).
func slotPenalty(t domain.Task, idx int, grid []occupant, ti *domain.TimeIndex, w Weights) float64 {
	ctx := ti.SlotContext(idx)
	penalty := 0.0

	if ctx.Hour >= 22 {
		penalty += w.LateNight
	}
	if ctx.Hour < 6 {
		penalty += w.EarlyMorning
	}
	if ctx.IsWeekend {
		penalty += w.Weekend
	}
	if inAvoidWindow(t, ctx) {
		penalty += w.AvoidWindow
	}
	penalty += contextSwitchPenalty(t, idx, grid, w)
	penalty += fragmentationPenalty(idx, grid, ti, w)

	return penalty
}

func inAvoidWindow(t domain.Task, ctx domain.SlotContext) bool {
	for _, aw := range t.AvoidWindows {
		if aw.DayOfWeek != ctx.DayOfWeek {
			continue
		}
		startH, startM := splitHHMM(aw.StartHHMM)
		endH, endM := splitHHMM(aw.EndHHMM)
		startMinutes := startH*60 + startM
		endMinutes := endH*60 + endM
		slotMinutes := ctx.Hour*60 + ctx.Minute
		if slotMinutes >= startMinutes && slotMinutes < endMinutes {
			return true
		}
	}
	return false
}

func splitHHMM(hhmm string) (int, int) {
	if len(hhmm) != 5 || hhmm[2] != ':' {
		return 0, 0
	}
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	return h, m
}

// contextSwitchPenalty charges w.ContextSwitch when the adjacent slot is
// occupied by a different task, per C[t1,t2,s] = x[t1,s] ∧ x[t2,s+1].
func contextSwitchPenalty(t domain.Task, idx int, grid []occupant, w Weights) float64 {
	penalty := 0.0
	if idx+1 < len(grid) && grid[idx+1].occupied && grid[idx+1].taskID != t.ID {
		penalty += w.ContextSwitch
	}
	if idx-1 >= 0 && grid[idx-1].occupied && grid[idx-1].taskID != t.ID {
		penalty += w.ContextSwitch
	}
	return penalty
}

// fragmentationPenalty charges w.Fragmentation when idx is, in the grid as
// it stands before idx is occupied, a single free slot between two occupied
// slots (assigned, blocked or outside the workday): G[s] = x[s-1] ∧ ¬x[s] ∧ x[s+1].
// A gap that occupying idx would leave beside it is not charged.
func fragmentationPenalty(idx int, grid []occupant, ti *domain.TimeIndex, w Weights) float64 {
	if idx-1 < 0 || idx+1 >= len(grid) {
		return 0
	}
	if grid[idx-1].occupied && !grid[idx].occupied && grid[idx+1].occupied {
		return w.Fragmentation
	}
	return 0
}
