// Package persistence implements ports.Repository against SQLite, Postgres,
// and an in-memory store, following the teacher's split between
// sqlite_schedule_repo.go and postgres_schedule_repo.go — one file per
// backend, both satisfying the same port.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/calendar"
)

// MemoryRepository is the in-memory ports.Repository used in local-mode
// demos and by default in tests. It is safe for concurrent use.
type MemoryRepository struct {
	mu          sync.RWMutex
	solutions   map[uuid.UUID]*domain.ScheduleSolution
	tasks       map[uuid.UUID][]domain.Task
	events      map[uuid.UUID][]domain.BusyEvent
	preferences map[uuid.UUID]domain.Preferences
	history     map[uuid.UUID][]domain.CompletionEvent
	recurring   map[uuid.UUID][]calendar.RecurringEvent
	metrics     []recordedMetric
}

type recordedMetric struct {
	UserID    uuid.UUID
	LatencyMS int64
	Status    domain.SolverStatus
	At        time.Time
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		solutions:   make(map[uuid.UUID]*domain.ScheduleSolution),
		tasks:       make(map[uuid.UUID][]domain.Task),
		events:      make(map[uuid.UUID][]domain.BusyEvent),
		preferences: make(map[uuid.UUID]domain.Preferences),
		history:     make(map[uuid.UUID][]domain.CompletionEvent),
		recurring:   make(map[uuid.UUID][]calendar.RecurringEvent),
	}
}

// SeedTasks installs tasks for userID, replacing any previously seeded set.
// Used by local-mode fixtures and tests to populate the store without a
// database.
func (r *MemoryRepository) SeedTasks(userID uuid.UUID, tasks []domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[userID] = tasks
}

// SeedBusyEvents installs busy events for userID.
func (r *MemoryRepository) SeedBusyEvents(userID uuid.UUID, events []domain.BusyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[userID] = events
}

// SeedRecurringBusyEvents installs RRULE-bearing busy event templates
// (recurring lectures, recurring no-study windows) for userID. They are
// expanded into concrete per-occurrence events, on top of any events
// seeded via SeedBusyEvents, each time LoadBusyEvents is called.
func (r *MemoryRepository) SeedRecurringBusyEvents(userID uuid.UUID, recs []calendar.RecurringEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recurring[userID] = recs
}

// SeedPreferences installs preferences for userID.
func (r *MemoryRepository) SeedPreferences(userID uuid.UUID, prefs domain.Preferences) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferences[userID] = prefs
}

// SeedCompletionHistory installs completion history for userID.
func (r *MemoryRepository) SeedCompletionHistory(userID uuid.UUID, history []domain.CompletionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[userID] = history
}

func (r *MemoryRepository) SaveSolution(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.solutions[userID] = solution
	return nil
}

func (r *MemoryRepository) LoadActiveBlocks(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.ScheduleBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	solution, ok := r.solutions[userID]
	if !ok {
		return nil, nil
	}
	var out []domain.ScheduleBlock
	for _, b := range solution.Blocks {
		if b.Start.Before(to) && from.Before(b.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *MemoryRepository) LoadTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Task(nil), r.tasks[userID]...), nil
}

func (r *MemoryRepository) LoadBusyEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.BusyEvent
	for _, e := range r.events[userID] {
		if e.Overlaps(from, to) {
			out = append(out, e)
		}
	}
	out = append(out, calendar.ExpandAll(r.recurring[userID], from, to)...)
	return out, nil
}

func (r *MemoryRepository) LoadPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefs, ok := r.preferences[userID]
	if !ok {
		return domain.DefaultPreferences(time.UTC), nil
	}
	return prefs, nil
}

func (r *MemoryRepository) LoadCompletionHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.CompletionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.CompletionEvent
	for _, h := range r.history[userID] {
		if h.ScheduledSlot.After(since) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *MemoryRepository) RecordRequestMetric(ctx context.Context, userID uuid.UUID, latencyMS int64, status domain.SolverStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, recordedMetric{UserID: userID, LatencyMS: latencyMS, Status: status, At: time.Now()})
	return nil
}

// Ping satisfies the cheap reachability probe the health monitor accepts;
// an in-memory store is always reachable.
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}
