package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// SQLiteSchema is executed once at startup to create the tables this
// repository reads and writes. Unlike the teacher's sqlc-generated
// queries, the SQL here is hand-written directly against database/sql,
// since the module cannot invoke a code generator.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS schedule_solutions (
	user_id TEXT PRIMARY KEY,
	feasible INTEGER NOT NULL,
	status TEXT NOT NULL,
	objective_value REAL NOT NULL,
	solve_time_ms INTEGER NOT NULL,
	total_scheduled_minutes INTEGER NOT NULL,
	blocks_json TEXT NOT NULL,
	unscheduled_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS request_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	status TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);
`

// sqliteBlockRow mirrors domain.ScheduleBlock for JSON round-tripping; the
// schedule blob is small enough per user that one JSON column beats a join
// across a separate blocks table.
type sqliteBlockRow struct {
	TaskID                uuid.UUID          `json:"task_id"`
	Start                 time.Time          `json:"start"`
	End                   time.Time          `json:"end"`
	UtilityScore          float64            `json:"utility_score"`
	CompletionProbability float64            `json:"completion_probability"`
	PenaltiesApplied      map[string]float64 `json:"penalties_applied"`
}

// SQLiteRepository implements ports.Repository against a local SQLite
// database, for single-binary local-mode deployments.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) the SQLite database at path and
// ensures the schema exists.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	dbConn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := dbConn.Exec(SQLiteSchema); err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &SQLiteRepository{db: dbConn}, nil
}

// NewSQLiteRepository wraps an already-open, already-migrated *sql.DB.
func NewSQLiteRepository(dbConn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: dbConn}
}

func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *SQLiteRepository) SaveSolution(ctx context.Context, userID uuid.UUID, solution *domain.ScheduleSolution) error {
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
	blocksJSON, err := json.Marshal(blockRows)
	if err != nil {
		return fmt.Errorf("marshal blocks: %w", err)
	}
	unscheduledJSON, err := json.Marshal(solution.UnscheduledTaskIDs)
	if err != nil {
		return fmt.Errorf("marshal unscheduled: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedule_solutions (user_id, feasible, status, objective_value, solve_time_ms, total_scheduled_minutes, blocks_json, unscheduled_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			feasible = excluded.feasible,
			status = excluded.status,
			objective_value = excluded.objective_value,
			solve_time_ms = excluded.solve_time_ms,
			total_scheduled_minutes = excluded.total_scheduled_minutes,
			blocks_json = excluded.blocks_json,
			unscheduled_json = excluded.unscheduled_json,
			updated_at = excluded.updated_at
	`,
		userID.String(), boolToInt(solution.Feasible), string(solution.Status), solution.ObjectiveValue,
		solution.SolveTimeMS, solution.TotalScheduledMin, string(blocksJSON), string(unscheduledJSON),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save solution: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadActiveBlocks(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.ScheduleBlock, error) {
	row := r.db.QueryRowContext(ctx, `SELECT blocks_json FROM schedule_solutions WHERE user_id = ?`, userID.String())
	var blocksJSON string
	if err := row.Scan(&blocksJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load active blocks: %w", err)
	}
	var rows []sqliteBlockRow
	if err := json.Unmarshal([]byte(blocksJSON), &rows); err != nil {
		return nil, fmt.Errorf("unmarshal blocks: %w", err)
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

// LoadTasks, LoadBusyEvents, and LoadPreferences have no SQLite-backed
// source of truth in this module (tasks and preferences are owned by
// collaborating systems per spec §6); local-mode deployments seed them via
// MemoryRepository instead. SQLiteRepository returns empty defaults so it
// can still stand in as ports.Repository on its own.
func (r *SQLiteRepository) LoadTasks(ctx context.Context, userID uuid.UUID) ([]domain.Task, error) {
	return nil, nil
}

func (r *SQLiteRepository) LoadBusyEvents(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.BusyEvent, error) {
	return nil, nil
}

func (r *SQLiteRepository) LoadPreferences(ctx context.Context, userID uuid.UUID) (domain.Preferences, error) {
	return domain.DefaultPreferences(time.UTC), nil
}

func (r *SQLiteRepository) LoadCompletionHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.CompletionEvent, error) {
	return nil, nil
}

func (r *SQLiteRepository) RecordRequestMetric(ctx context.Context, userID uuid.UUID, latencyMS int64, status domain.SolverStatus) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO request_metrics (user_id, latency_ms, status, recorded_at) VALUES (?, ?, ?, ?)
	`, userID.String(), latencyMS, string(status), time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record request metric: %w", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
