// Package core implements the single schedule(request) → response entry
// point of spec §4.8, wiring the time index, solver, fallback, invariant
// checker, replanning controller, and SLO gate behind the collaborator
// ports. Grounded on the teacher's Core Service analogue,
// application/services/scheduler_engine.go plus conflict_resolver.go,
// which together drive the same load → solve → validate → persist
// sequence for a single calendar; generalized here into the documented
// eleven-step pipeline with explicit SLO admission and idempotency.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flowforge/scheduler/internal/scheduling/application/ports"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/fallback"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/invariants"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/replanning"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/slo"
	"github.com/flowforge/scheduler/internal/scheduling/application/services/solver"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// Service is the Core Service; every collaborator is injected, per spec §9's
// "no global mutable state" design note. A nil UtilityProvider/WeightProvider/
// Repository/EventPublisher/TimezoneManager/IdempotencyCache is tolerated and
// falls back to a built-in default, matching the teacher's constructor style
// of accepting nil and substituting sane defaults rather than panicking.
type Service struct {
	repo       ports.Repository
	utility    ports.UtilityProvider
	weights    ports.WeightProvider
	timezones  ports.TimezoneManager
	idempotent ports.IdempotencyCache
	events     ports.EventPublisher
	gate       *slo.Gate
	solver     *solver.Solver
	fallback   *fallback.Scheduler
	checker    *invariants.Checker
	replanner  *replanning.Controller
	logger     *slog.Logger
	seed       int64
}

// Config collects the Service's constructor dependencies; zero-value fields
// fall back to built-ins.
type Config struct {
	Repository      ports.Repository
	UtilityProvider ports.UtilityProvider
	WeightProvider  ports.WeightProvider
	TimezoneManager ports.TimezoneManager
	Idempotency     ports.IdempotencyCache
	EventPublisher  ports.EventPublisher
	SLOGate         *slo.Gate
	Logger          *slog.Logger
	DeterminismSeed int64
}

// New builds a Service from cfg.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := cfg.SLOGate
	if gate == nil {
		gate = slo.NewGate(slo.DefaultConfig())
	}
	return &Service{
		repo:       cfg.Repository,
		utility:    cfg.UtilityProvider,
		weights:    cfg.WeightProvider,
		timezones:  cfg.TimezoneManager,
		idempotent: cfg.Idempotency,
		events:     cfg.EventPublisher,
		gate:       gate,
		solver:     solver.New(),
		fallback:   fallback.New(),
		checker:    invariants.New(false),
		replanner:  replanning.New(),
		logger:     logger,
		seed:       cfg.DeterminismSeed,
	}
}

// Request is the scheduler input of spec §6.
type Request struct {
	UserID        uuid.UUID
	HorizonDays   int
	DryRun        bool
	LockExisting  bool
	JobID         string
	ReplanScope   domain.ReplanScope
	ReplanOverrides *domain.ReplanOverrides
}

// Block is one scheduled interval in the wire response shape of spec §6.
type Block struct {
	TaskID                uuid.UUID
	Title                 string
	Start                 time.Time
	End                   time.Time
	Provider              string
	UtilityScore          float64
	CompletionProbability float64
	DurationMinutes       int
}

// Metrics mirrors spec §6's response metrics object.
type Metrics struct {
	Feasible              bool
	SolverStatus          domain.SolverStatus
	SolveTimeMS           int64
	ObjectiveValue        float64
	TotalBlocks           int
	TotalScheduledMinutes int
	UnscheduledTasks      int
	WeightsUsed           domain.PenaltyMultipliers
	SLOLevel              slo.Level
	InvariantViolations   int
	Error                 string
}

// Explanations holds the templated strings of spec §6 — never free-form NLG.
type Explanations struct {
	Summary      string
	Unscheduled  string
	Reason       string
	Optimization string
}

// Response is the scheduler output of spec §6.
type Response struct {
	JobID        string
	Feasible     bool
	Blocks       []Block
	Metrics      Metrics
	Explanations Explanations
	Diagnostics  map[string]any
}

// Schedule runs the eleven-step pipeline of spec §4.8.
func (s *Service) Schedule(ctx context.Context, req Request, now time.Time) (Response, error) {
	requestID := uuid.NewString()

	// Step 1: SLO pre-check.
	precheck, err := s.gate.CheckBeforeRequest(requestID, now)
	if err != nil {
		s.logger.Warn("slo pre-check rejected request", "user_id", req.UserID, "error", err)
		s.gate.RecordCompletion(requestID, now, false, 0, 0, err.Error())
		return Response{
			JobID:        req.JobID,
			Feasible:     false,
			Metrics:      Metrics{SolverStatus: domain.SolverStatusError, Error: err.Error()},
			Explanations: Explanations{Summary: "request rejected: system is under sustained load"},
		}, err
	}

	if req.HorizonDays <= 0 {
		verr := domain.NewSchedulerError(domain.KindInputValidation, "horizon_days must be > 0")
		s.gate.RecordCompletion(requestID, now, false, 0, 0, verr.Error())
		return Response{Feasible: false, Metrics: Metrics{SolverStatus: domain.SolverStatusError, Error: verr.Error()}}, verr
	}

	tz := time.UTC
	if s.timezones != nil {
		if resolved, tzErr := s.timezones.ResolveTimezone(ctx, req.UserID); tzErr == nil && resolved != nil {
			tz = resolved
		}
	}

	requestHash := ""
	var tasks []domain.Task
	var events []domain.BusyEvent
	var prefs domain.Preferences
	var history []domain.CompletionEvent

	// Step 3: parallel load.
	g, gctx := errgroup.WithContext(ctx)
	horizonStart := now
	horizonEnd := now.AddDate(0, 0, req.HorizonDays)
	if s.repo != nil {
		g.Go(func() error {
			loaded, loadErr := s.repo.LoadTasks(gctx, req.UserID)
			tasks = loaded
			return loadErr
		})
		g.Go(func() error {
			loaded, loadErr := s.repo.LoadBusyEvents(gctx, req.UserID, horizonStart, horizonEnd)
			events = loaded
			return loadErr
		})
		g.Go(func() error {
			loaded, loadErr := s.repo.LoadPreferences(gctx, req.UserID)
			prefs = loaded
			return loadErr
		})
		g.Go(func() error {
			loaded, loadErr := s.repo.LoadCompletionHistory(gctx, req.UserID, now.AddDate(0, 0, -60))
			history = loaded
			return loadErr
		})
	} else {
		prefs = domain.DefaultPreferences(tz)
	}

	if err := g.Wait(); err != nil {
		repErr := domain.WrapSchedulerError(domain.KindRepositoryError, "failed to load scheduling inputs", err)
		s.gate.RecordCompletion(requestID, now, false, 0, len(tasks), repErr.Error())
		return Response{
			JobID:        req.JobID,
			Feasible:     false,
			Metrics:      Metrics{SolverStatus: domain.SolverStatusError, Error: repErr.Error()},
			Explanations: Explanations{Summary: "unable to load scheduling inputs"},
		}, repErr
	}

	requestHash = domain.RequestHash(tasks, events, req.HorizonDays, req.UserID)

	// Step 2: idempotency.
	if !req.DryRun && s.idempotent != nil {
		if cached, hit, cacheErr := s.idempotent.Get(ctx, requestHash); cacheErr == nil && hit && cached != nil {
			s.gate.RecordCompletion(requestID, now, cached.Feasible, len(cached.Blocks), len(tasks), "")
			return toResponse(req.JobID, cached, prefs, tasks), nil
		}
	}

	coarsening := precheck.Coarsening
	effectiveHorizonDays := req.HorizonDays
	if coarsening.MaxHorizonDays > 0 && coarsening.MaxHorizonDays < effectiveHorizonDays {
		effectiveHorizonDays = coarsening.MaxHorizonDays
	}
	granularity := prefs.GranularityMinutes
	if granularity == 0 {
		granularity = 30
	}
	if coarsening.ForceGranularityMinutes > 0 {
		granularity = coarsening.ForceGranularityMinutes
		if granularity != 15 && granularity != 30 {
			granularity = 30
		}
	}

	// Step 4: build the time index over the (possibly coarsened) horizon.
	ti, tiErr := domain.NewTimeIndex(tz, now, now.AddDate(0, 0, effectiveHorizonDays), granularity)
	if tiErr != nil {
		verr := domain.WrapSchedulerError(domain.KindInputValidation, "failed to build time index", tiErr)
		s.gate.RecordCompletion(requestID, now, false, 0, len(tasks), verr.Error())
		return Response{Feasible: false, Metrics: Metrics{SolverStatus: domain.SolverStatusError, Error: verr.Error()}}, verr
	}

	// Step 5: utilities.
	utilityMatrix := make(solver.UtilityMatrix)
	if s.utility != nil && !coarsening.UseSimpleUtilities {
		for _, t := range tasks {
			for idx := 0; idx < ti.NumSlots(); idx++ {
				slot := domain.TimeSlot{Start: ti.DatetimeOf(idx), End: ti.DatetimeOf(idx + 1)}
				score, uerr := s.utility.ScoreUtility(ctx, t, slot, ti.SlotContext(idx))
				if uerr != nil {
					continue
				}
				if utilityMatrix[t.ID] == nil {
					utilityMatrix[t.ID] = make(map[int]float64)
				}
				utilityMatrix[t.ID][idx] = score
			}
		}
	} else {
		utilityMatrix = builtinUtilityMatrix(tasks, ti, now)
	}

	// Step 6: weights.
	weights := solver.DefaultWeights()
	multipliers := prefs.PenaltyMultipliers
	if s.weights != nil {
		if suggested, werr := s.weights.PenaltyWeights(ctx, req.UserID); werr == nil {
			multipliers = suggested
		}
	}
	weights = applyMultipliers(weights, multipliers)

	// Step 7: solve, falling back when the solver can't produce a feasible result.
	solveParams := solver.Params{
		Weights:                weights,
		DisableSoftConstraints: coarsening.DisableSoftConstraints,
	}
	if coarsening.MaxSolveTimeSeconds > 0 {
		solveParams.TimeLimit = time.Duration(coarsening.MaxSolveTimeSeconds) * time.Second
	}
	solution := s.solver.Solve(tasks, events, prefs, ti, utilityMatrix, solveParams, now)

	usedFallback := false
	switch solution.Status {
	case domain.SolverStatusInfeasible, domain.SolverStatusTimeout, domain.SolverStatusError:
		completed := make(map[uuid.UUID]bool)
		for _, h := range history {
			completed[h.TaskID] = true
		}
		solution = s.fallback.Schedule(tasks, events, prefs, ti, now, completed)
		usedFallback = true
	}

	// Step 8: invariant check (non-strict).
	report := s.checker.Check(solution, tasks, events, prefs, ti, now)
	if solution.Diagnostics == nil {
		solution.Diagnostics = make(map[string]any)
	}
	solution.Diagnostics["invariant_violations"] = len(report.Violations)
	if !report.Passed {
		s.logger.Warn("schedule produced invariant violations", "user_id", req.UserID, "violations", len(report.Violations))
	}

	// Step 9: replanning validation when scope is not COMPLETE.
	if req.ReplanScope != "" && req.ReplanScope != domain.ScopeComplete && s.repo != nil {
		constraint := domain.ResolveReplanConstraint(req.ReplanScope, req.ReplanOverrides)
		existing, loadErr := s.repo.LoadActiveBlocks(ctx, req.UserID, horizonStart, horizonEnd)
		if loadErr == nil && len(existing) > 0 {
			ok, reason := s.replanner.Validate(solution.Blocks, existing, constraint, constraint.ProtectedTaskIDs)
			solution.Diagnostics["replan_valid"] = ok
			solution.Diagnostics["replan_reason"] = reason
			if !ok {
				s.logger.Warn("replan failed stability validation, reverting to existing schedule", "user_id", req.UserID, "reason", reason)
				solution.Blocks = existing
				solution.RecomputeTotals()
			}
		}
	}

	domain.EnsureDeterministic(solution, s.seed, requestHash)

	// Step 10: persist.
	if !req.DryRun && s.repo != nil {
		if perr := s.repo.SaveSolution(ctx, req.UserID, solution); perr != nil {
			s.logger.Error("failed to persist schedule, returning in-memory result", "user_id", req.UserID, "error", perr)
			solution.Diagnostics["persist_error"] = perr.Error()
		}
	}

	if !req.DryRun && s.idempotent != nil && solution.Feasible {
		_ = s.idempotent.Set(ctx, requestHash, solution, 5*time.Minute)
	}

	if s.events != nil {
		_ = s.events.PublishScheduleRun(ctx, req.UserID, solution)
	}

	// Step 11: SLO completion.
	errMsg := ""
	if usedFallback {
		errMsg = ""
	}
	s.gate.RecordCompletion(requestID, time.Now(), solution.Feasible, len(solution.Blocks), len(tasks), errMsg)

	resp := toResponse(req.JobID, solution, prefs, tasks)
	resp.Metrics.SLOLevel = precheck.Level
	resp.Metrics.InvariantViolations = len(report.Violations)
	return resp, nil
}

func toResponse(jobID string, solution *domain.ScheduleSolution, prefs domain.Preferences, tasks []domain.Task) Response {
	taskByID := make(map[uuid.UUID]domain.Task, len(tasks))
	for _, t := range tasks {
		taskByID[t.ID] = t
	}

	blocks := make([]Block, 0, len(solution.Blocks))
	for _, b := range solution.Blocks {
		title := ""
		if t, ok := taskByID[b.TaskID]; ok {
			title = t.Title
		}
		blocks = append(blocks, Block{
			TaskID:                b.TaskID,
			Title:                 title,
			Start:                 b.Start,
			End:                   b.End,
			Provider:              "pulse",
			UtilityScore:          b.UtilityScore,
			CompletionProbability: b.CompletionProbability,
			DurationMinutes:       b.DurationMinutes(),
		})
	}

	return Response{
		JobID:    jobID,
		Feasible: solution.Feasible,
		Blocks:   blocks,
		Metrics: Metrics{
			Feasible:              solution.Feasible,
			SolverStatus:          solution.Status,
			SolveTimeMS:           solution.SolveTimeMS,
			ObjectiveValue:        solution.ObjectiveValue,
			TotalBlocks:           len(solution.Blocks),
			TotalScheduledMinutes: solution.TotalScheduledMin,
			UnscheduledTasks:      len(solution.UnscheduledTaskIDs),
			WeightsUsed:           prefs.PenaltyMultipliers,
		},
		Explanations: buildExplanations(solution, tasks),
		Diagnostics:  solution.Diagnostics,
	}
}

func applyMultipliers(base solver.Weights, m domain.PenaltyMultipliers) solver.Weights {
	if m.LateNight > 0 {
		base.LateNight = m.LateNight
	}
	if m.EarlyMorning > 0 {
		base.EarlyMorning = m.EarlyMorning
	}
	if m.ContextSwitch > 0 {
		base.ContextSwitch = m.ContextSwitch
	}
	return base
}

// builtinUtilityMatrix implements spec §4.8 step 5's fallback rule: base
// 1.0, + min(2.0, 24/hours_to_deadline) if a deadline is set, +0.5 during
// 9-17 inclusive, +0.2 at hour 8 or during 18-20 inclusive — matching the
// original utility_calculator.py's `9 <= hour <= 17` and
// `hour == 8 or 18 <= hour <= 20` bounds exactly.
func builtinUtilityMatrix(tasks []domain.Task, ti *domain.TimeIndex, now time.Time) solver.UtilityMatrix {
	matrix := make(solver.UtilityMatrix, len(tasks))
	for _, t := range tasks {
		perSlot := make(map[int]float64, ti.NumSlots())
		for idx := 0; idx < ti.NumSlots(); idx++ {
			ctx := ti.SlotContext(idx)
			score := 1.0
			if t.Deadline != nil {
				hoursToDeadline := t.Deadline.Sub(now).Hours()
				if hoursToDeadline > 0 {
					bonus := 24 / hoursToDeadline
					if bonus > 2.0 {
						bonus = 2.0
					}
					score += bonus
				}
			}
			if ctx.Hour >= 9 && ctx.Hour <= 17 {
				score += 0.5
			}
			if ctx.Hour == 8 || (ctx.Hour >= 18 && ctx.Hour <= 20) {
				score += 0.2
			}
			perSlot[idx] = score
		}
		matrix[t.ID] = perSlot
	}
	return matrix
}

// buildExplanations implements the templated, never-free-form-NLG
// explanation strings of spec §6, grounded on the original's
// schedule_explainer.py template set.
func buildExplanations(solution *domain.ScheduleSolution, tasks []domain.Task) Explanations {
	exp := Explanations{
		Summary: fmt.Sprintf("scheduled %d block(s) totaling %d minutes across %d task(s)", len(solution.Blocks), solution.TotalScheduledMin, len(tasks)),
	}
	if len(solution.UnscheduledTaskIDs) > 0 {
		exp.Unscheduled = fmt.Sprintf("%d task(s) could not be fully scheduled", len(solution.UnscheduledTaskIDs))
		reasonCounts := make(map[domain.UnscheduledReason]int)
		for _, id := range solution.UnscheduledTaskIDs {
			reasonCounts[solution.UnscheduledReasons[id]]++
		}
		topReason, topCount := domain.UnscheduledReason(""), 0
		for reason, count := range reasonCounts {
			if count > topCount {
				topReason, topCount = reason, count
			}
		}
		if topReason != "" {
			exp.Reason = fmt.Sprintf("most common reason: %s (%d task(s))", topReason, topCount)
		}
	}
	band := "low"
	switch {
	case solution.ObjectiveValue > 50:
		band = "high"
	case solution.ObjectiveValue > 10:
		band = "medium"
	}
	exp.Optimization = fmt.Sprintf("objective value %.1f (%s)", solution.ObjectiveValue, band)
	return exp
}
