package domain

import "github.com/google/uuid"

// SolverStatus is the tagged variant for how a solve attempt concluded.
type SolverStatus string

const (
	SolverStatusOptimal   SolverStatus = "optimal"
	SolverStatusFeasible  SolverStatus = "feasible"
	SolverStatusInfeasible SolverStatus = "infeasible"
	SolverStatusTimeout   SolverStatus = "timeout"
	SolverStatusFallback  SolverStatus = "fallback"
	SolverStatusNoSolver  SolverStatus = "no_solver"
	SolverStatusError     SolverStatus = "error"
	SolverStatusInvalid   SolverStatus = "invalid"
	SolverStatusUnknown   SolverStatus = "unknown"
)

// ScheduleSolution is the per-request output of a solve, produced by either
// the Constraint Solver or the Fallback Scheduler.
type ScheduleSolution struct {
	Feasible           bool
	Blocks             []ScheduleBlock
	ObjectiveValue     float64
	SolveTimeMS        int64
	Status             SolverStatus
	TotalScheduledMin  int
	UnscheduledTaskIDs []uuid.UUID
	UnscheduledReasons map[uuid.UUID]UnscheduledReason
	Diagnostics        map[string]any
	Explanations       map[string]string
}

// RecomputeTotals recomputes TotalScheduledMin from Blocks, per spec's
// meta invariant total_scheduled_minutes = Σ duration.
func (s *ScheduleSolution) RecomputeTotals() {
	total := 0
	for _, b := range s.Blocks {
		total += b.DurationMinutes()
	}
	s.TotalScheduledMin = total
}

// UnscheduledReason is the tagged variant explaining why a task produced no
// blocks, emitted by the Fallback Scheduler.
type UnscheduledReason string

const (
	ReasonNoTime                   UnscheduledReason = "no_time"
	ReasonAfterDeadline            UnscheduledReason = "after_deadline"
	ReasonBlockedPrereq            UnscheduledReason = "blocked_prereq"
	ReasonInsufficientContiguous   UnscheduledReason = "insufficient_contiguous_time"
	ReasonDailyLimitExceeded       UnscheduledReason = "daily_limit_exceeded"
	ReasonWindowViolation          UnscheduledReason = "window_violation"
	ReasonSplitsLimitExceeded      UnscheduledReason = "splits_limit_exceeded"
)
