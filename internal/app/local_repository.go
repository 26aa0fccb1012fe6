package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// localRepository composes the SQLite solution/metric store with the
// in-memory task/calendar/preference store, satisfying ports.Repository
// in local mode without requiring a second database for the collaborator
// data spec §6 treats as externally owned.
type localRepository struct {
	sqlite interface {
		SaveSolution(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error
		LoadActiveBlocks(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.ScheduleBlock, error)
		RecordRequestMetric(ctx context.Context, userID uuid.UUID, latencyMS int64, status domain.SolverStatus) error
	}
	memory interface {
		LoadTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error)
		LoadBusyEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyEvent, error)
		LoadPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error)
		LoadCompletionHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.CompletionEvent, error)
	}
}

func (r localRepository) SaveSolution(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error {
	return r.sqlite.SaveSolution(ctx, userID, solution)
}

func (r localRepository) LoadActiveBlocks(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.ScheduleBlock, error) {
	return r.sqlite.LoadActiveBlocks(ctx, userID, from, to)
}

func (r localRepository) LoadTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	return r.memory.LoadTasks(ctx, userID)
}

func (r localRepository) LoadBusyEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyEvent, error) {
	return r.memory.LoadBusyEvents(ctx, userID, from, to)
}

func (r localRepository) LoadPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error) {
	return r.memory.LoadPreferences(ctx, userID)
}

func (r localRepository) LoadCompletionHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.CompletionEvent, error) {
	return r.memory.LoadCompletionHistory(ctx, userID, since)
}

func (r localRepository) RecordRequestMetric(ctx context.Context, userID uuid.UUID, latencyMS int64, status domain.SolverStatus) error {
	return r.sqlite.RecordRequestMetric(ctx, userID, latencyMS, status)
}
