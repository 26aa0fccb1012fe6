// Package ports declares the collaborator contracts spec §6 requires the
// core service to call through: persistence, ML-backed scoring, and
// timezone resolution. Each is implemented by an infrastructure adapter.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// Repository defines persistence for schedules, tasks, and completion
// history. Implementations live under infrastructure/persistence (SQLite,
// Postgres, and an in-memory variant for tests and local-mode default).
type Repository interface {
	SaveSolution(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error
	LoadActiveBlocks(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.ScheduleBlock, error)
	LoadTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error)
	LoadBusyEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyEvent, error)
	LoadPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error)
	LoadCompletionHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.CompletionEvent, error)
	RecordRequestMetric(ctx context.Context, userID uuid.UUID, latencyMS int64, status domain.SolverStatus) error
}

// UtilityProvider scores a candidate (task, slot) pairing. The default
// implementation is a deterministic heuristic; a pluggable ML-backed
// implementation is hosted out-of-process via hashicorp/go-plugin.
type UtilityProvider interface {
	ScoreUtility(ctx context.Context, task domain.Task, slot domain.TimeSlot, ctxInfo domain.SlotContext) (float64, error)
}

// WeightProvider supplies per-user penalty-term weights for the objective
// function (spec §4.3's soft constraint table), letting a learned model
// override the static defaults for a given user.
type WeightProvider interface {
	PenaltyWeights(ctx context.Context, userID uuid.UUID) (domain.PenaltyMultipliers, error)
}

// TimezoneManager resolves a user's effective IANA timezone, abstracting
// over a user-profile lookup versus a request-supplied override.
type TimezoneManager interface {
	ResolveTimezone(ctx context.Context, userID uuid.UUID) (*time.Location, error)
}

// IdempotencyCache deduplicates concurrent or retried schedule requests by
// request hash (domain.RequestHash), backed by Redis with an in-memory LRU
// fallback.
type IdempotencyCache interface {
	Get(ctx context.Context, requestHash string) (*domain.ScheduleSolution, bool, error)
	Set(ctx context.Context, requestHash string, solution *domain.ScheduleSolution, ttl time.Duration) error
}

// EventPublisher emits a "scheduler.run" metric event after each request,
// backed by RabbitMQ with a no-op fallback when unconfigured.
type EventPublisher interface {
	PublishScheduleRun(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error
}
