package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scriptd/scriptd/internal/database"
)

// Store persists execution history. Live executions are served from the
// manager's in-memory state; the store is the durable record.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new execution record.
func (s *Store) Create(ctx context.Context, exec *Execution) error {
	query := `
		INSERT INTO executions (
			id, owner_id, language, script, params,
			status, started_at, completed_at, duration_ms, logs
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		exec.ID,
		exec.OwnerID,
		exec.Language,
		exec.Script,
		marshalParams(exec.Params),
		exec.Status,
		exec.StartedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(exec.CompletedAt),
		exec.DurationMs,
		marshalLogs(exec.Logs),
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}

	return nil
}

// Update writes the mutable fields of an execution record.
func (s *Store) Update(ctx context.Context, exec *Execution) error {
	query := `
		UPDATE executions
		SET status = ?, completed_at = ?, duration_ms = ?, logs = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		exec.Status,
		nullableTime(exec.CompletedAt),
		exec.DurationMs,
		marshalLogs(exec.Logs),
		exec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return newNotFoundError(exec.ID)
	}

	return nil
}

// Get retrieves an execution by id.
func (s *Store) Get(ctx context.Context, id string) (*Execution, error) {
	query := `
		SELECT id, owner_id, language, script, params,
		       status, started_at, completed_at, duration_ms, logs
		FROM executions
		WHERE id = ?
	`

	exec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newNotFoundError(id)
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}

	return exec, nil
}

// ListByOwner retrieves an owner's executions, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, status Status, limit, offset int) ([]*Execution, error) {
	query := `
		SELECT id, owner_id, language, script, params,
		       status, started_at, completed_at, duration_ms, logs
		FROM executions
		WHERE owner_id = ?
	`
	args := []any{ownerID}

	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY started_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		execs = append(execs, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}

	return execs, nil
}

// DeleteOlderThan removes terminal executions older than the given duration.
func (s *Store) DeleteOlderThan(ctx context.Context, duration time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-duration).Format(time.RFC3339Nano)

	query := `
		DELETE FROM executions
		WHERE started_at < ?
		  AND status IN ('completed', 'error', 'stopped')
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old executions: %w", err)
	}

	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*Execution, error) {
	var exec Execution
	var params, logs, startedAt string
	var completedAt sql.NullString

	if err := row.Scan(
		&exec.ID,
		&exec.OwnerID,
		&exec.Language,
		&exec.Script,
		&params,
		&exec.Status,
		&startedAt,
		&completedAt,
		&exec.DurationMs,
		&logs,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	exec.StartedAt = t

	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		exec.CompletedAt = &t
	}

	if err := json.Unmarshal([]byte(params), &exec.Params); err != nil {
		exec.Params = nil
	}
	if err := json.Unmarshal([]byte(logs), &exec.Logs); err != nil {
		exec.Logs = nil
	}

	return &exec, nil
}

func marshalParams(params map[string]string) string {
	if len(params) == 0 {
		return "{}"
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func marshalLogs(logs []LogEntry) string {
	if len(logs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(logs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
