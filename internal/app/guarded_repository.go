package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/application/ports"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/breaker"
)

// guardedRepository wraps a ports.Repository so a stalled or failing
// backing store trips its own circuit instead of stalling every request
// behind it, per the Guard doc comment's split of concerns with the SLO
// Gate: the gate decides admission, this breaker isolates one misbehaving
// collaborator.
type guardedRepository struct {
	inner ports.Repository
	guard *breaker.Guard
}

// newGuardedRepository wraps inner's calls through guard under the
// "repository" circuit name.
func newGuardedRepository(inner ports.Repository, guard *breaker.Guard) ports.Repository {
	return &guardedRepository{inner: inner, guard: guard}
}

func (r *guardedRepository) SaveSolution(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error {
	_, err := breaker.Call(r.guard, "repository", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.SaveSolution(ctx, userID, solution)
	})(ctx)
	return err
}

func (r *guardedRepository) LoadActiveBlocks(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.ScheduleBlock, error) {
	return breaker.Call(r.guard, "repository", func(ctx context.Context) ([]domain.ScheduleBlock, error) {
		return r.inner.LoadActiveBlocks(ctx, userID, from, to)
	})(ctx)
}

func (r *guardedRepository) LoadTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	return breaker.Call(r.guard, "repository", func(ctx context.Context) ([]domain.Task, error) {
		return r.inner.LoadTasks(ctx, userID)
	})(ctx)
}

func (r *guardedRepository) LoadBusyEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyEvent, error) {
	return breaker.Call(r.guard, "repository", func(ctx context.Context) ([]domain.BusyEvent, error) {
		return r.inner.LoadBusyEvents(ctx, userID, from, to)
	})(ctx)
}

func (r *guardedRepository) LoadPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error) {
	return breaker.Call(r.guard, "repository", func(ctx context.Context) (domain.Preferences, error) {
		return r.inner.LoadPreferences(ctx, userID)
	})(ctx)
}

func (r *guardedRepository) LoadCompletionHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.CompletionEvent, error) {
	return breaker.Call(r.guard, "repository", func(ctx context.Context) ([]domain.CompletionEvent, error) {
		return r.inner.LoadCompletionHistory(ctx, userID, since)
	})(ctx)
}

func (r *guardedRepository) RecordRequestMetric(ctx context.Context, userID uuid.UUID, latencyMS int64, status domain.SolverStatus) error {
	_, err := breaker.Call(r.guard, "repository", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.RecordRequestMetric(ctx, userID, latencyMS, status)
	})(ctx)
	return err
}

// guardedUtilityProvider wraps a ports.UtilityProvider (typically a
// plugin-hosted ML scorer) under its own "utility_provider" circuit, so a
// wedged plugin subprocess degrades to the core's built-in heuristic
// instead of hanging every request.
type guardedUtilityProvider struct {
	inner ports.UtilityProvider
	guard *breaker.Guard
}

func newGuardedUtilityProvider(inner ports.UtilityProvider, guard *breaker.Guard) ports.UtilityProvider {
	return &guardedUtilityProvider{inner: inner, guard: guard}
}

func (p *guardedUtilityProvider) ScoreUtility(ctx context.Context, task domain.Task, slot domain.TimeSlot, ctxInfo domain.SlotContext) (float64, error) {
	return breaker.Call(p.guard, "utility_provider", func(ctx context.Context) (float64, error) {
		return p.inner.ScoreUtility(ctx, task, slot, ctxInfo)
	})(ctx)
}

// guardedWeightProvider wraps a ports.WeightProvider under its own
// "weight_provider" circuit, for the same reason.
type guardedWeightProvider struct {
	inner ports.WeightProvider
	guard *breaker.Guard
}

func newGuardedWeightProvider(inner ports.WeightProvider, guard *breaker.Guard) ports.WeightProvider {
	return &guardedWeightProvider{inner: inner, guard: guard}
}

func (p *guardedWeightProvider) PenaltyWeights(ctx context.Context, userID uuid.UUID) (domain.PenaltyMultipliers, error) {
	return breaker.Call(p.guard, "weight_provider", func(ctx context.Context) (domain.PenaltyMultipliers, error) {
		return p.inner.PenaltyWeights(ctx, userID)
	})(ctx)
}
