package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// PostgresSchema mirrors SQLiteSchema, in Postgres DDL.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS schedule_solutions (
	user_id UUID PRIMARY KEY,
	feasible BOOLEAN NOT NULL,
	status TEXT NOT NULL,
	objective_value DOUBLE PRECISION NOT NULL,
	solve_time_ms BIGINT NOT NULL,
	total_scheduled_minutes INTEGER NOT NULL,
	blocks_json JSONB NOT NULL,
	unscheduled_json JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS request_metrics (
	id BIGSERIAL PRIMARY KEY,
	user_id UUID NOT NULL,
	latency_ms BIGINT NOT NULL,
	status TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
`

// PostgresRepository implements ports.Repository against PostgreSQL via a
// connection pool, for production multi-tenant deployments.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// NewPostgresRepository wraps an already-open, already-migrated pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Close() { r.pool.Close() }

func (r *PostgresRepository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

func (r *PostgresRepository) SaveSolution(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error {
	blockRows := make([]sqliteBlockRow, 0, len(solution.Blocks))
	for _, b := range solution.Blocks {
		blockRows = append(blockRows, sqliteBlockRow{
			TaskID:                b.TaskID,
			Start:                 b.Start,
			End:                   b.End,
			UtilityScore:          b.UtilityScore,
			CompletionProbability: b.CompletionProbability,
			PenaltiesApplied:      b.PenaltiesApplied,
		})
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_solutions (user_id, feasible, status, objective_value, solve_time_ms, total_scheduled_minutes, blocks_json, unscheduled_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			feasible = excluded.feasible,
			status = excluded.status,
			objective_value = excluded.objective_value,
			solve_time_ms = excluded.solve_time_ms,
			total_scheduled_minutes = excluded.total_scheduled_minutes,
			blocks_json = excluded.blocks_json,
			unscheduled_json = excluded.unscheduled_json,
			updated_at = excluded.updated_at
	`,
		userID, solution.Feasible, string(solution.Status), solution.ObjectiveValue,
		solution.SolveTimeMS, solution.TotalScheduledMin, blockRows, solution.UnscheduledTaskIDs,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save solution: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LoadActiveBlocks(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.ScheduleBlock, error) {
	var rows []sqliteBlockRow
	err := r.pool.QueryRow(ctx, `SELECT blocks_json FROM schedule_solutions WHERE user_id = $1`, userID).Scan(&rows)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load active blocks: %w", err)
	}
	out := make([]domain.ScheduleBlock, 0, len(rows))
	for _, row := range rows {
		if row.Start.Before(to) && from.Before(row.End) {
			out = append(out, domain.ScheduleBlock{
				TaskID:                row.TaskID,
				Start:                 row.Start,
				End:                   row.End,
				UtilityScore:          row.UtilityScore,
				CompletionProbability: row.CompletionProbability,
				PenaltiesApplied:      row.PenaltiesApplied,
			})
		}
	}
	return out, nil
}

// LoadTasks, LoadBusyEvents, and LoadPreferences mirror SQLiteRepository's
// stance: this module owns solution and metric storage only, and leaves
// task/calendar/preference ownership to the collaborating systems spec §6
// describes. A production deployment wires those through their own
// services; PostgresRepository returns empty defaults so it still
// satisfies ports.Repository standalone.
func (r *PostgresRepository) LoadTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	return nil, nil
}

func (r *PostgresRepository) LoadBusyEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyEvent, error) {
	return nil, nil
}

func (r *PostgresRepository) LoadPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error) {
	return domain.DefaultPreferences(time.UTC), nil
}

func (r *PostgresRepository) LoadCompletionHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.CompletionEvent, error) {
	return nil, nil
}

func (r *PostgresRepository) RecordRequestMetric(ctx context.Context, userID uuid.UUID, latencyMS int64, status domain.SolverStatus) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO request_metrics (user_id, latency_ms, status, recorded_at) VALUES ($1, $2, $3, $4)
	`, userID, latencyMS, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("record request metric: %w", err)
	}
	return nil
}
