package hosted

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scriptd/scriptd/internal/database"
)

// Store persists hosted script definitions.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new hosted script. Returns a unique-constraint error when
// the endpoint slug is already taken.
func (s *Store) Create(ctx context.Context, script *Script) error {
	query := `
		INSERT INTO hosted_scripts (
			id, owner_id, name, language, script, endpoint_slug,
			params, env, is_active, execution_count, last_executed_at,
			schedule_enabled, schedule_expression,
			rate_limit_enabled, rate_limit_rpm,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		script.ID,
		script.OwnerID,
		script.Name,
		script.Language,
		script.Script,
		script.EndpointSlug,
		marshalStringMap(script.Params),
		marshalStringMap(script.Env),
		boolToInt(script.IsActive),
		script.ExecutionCount,
		nullableTime(script.LastExecutedAt),
		boolToInt(script.Schedule.Enabled),
		script.Schedule.Expression,
		boolToInt(script.RateLimit.Enabled),
		script.RateLimit.RequestsPerMinute,
		script.CreatedAt.UTC().Format(time.RFC3339Nano),
		script.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return database.ClassifyError(err)
	}

	return nil
}

// Get retrieves a hosted script by id, scoped to its owner.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*Script, error) {
	script, err := s.queryOne(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if script.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return script, nil
}

// GetBySlug retrieves a hosted script by its endpoint slug. Slug lookups are
// not owner-scoped: the endpoint is the capability.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*Script, error) {
	return s.queryOne(ctx, "WHERE endpoint_slug = ?", slug)
}

// ListByOwner retrieves an owner's hosted scripts, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*Script, error) {
	query := selectColumns + ` WHERE owner_id = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying hosted scripts: %w", err)
	}
	defer rows.Close()

	var scripts []*Script
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning hosted script: %w", err)
		}
		scripts = append(scripts, script)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hosted scripts: %w", err)
	}

	return scripts, nil
}

// ListActiveScheduled retrieves every active script with scheduling enabled,
// across all owners. Used to arm timers at startup.
func (s *Store) ListActiveScheduled(ctx context.Context) ([]*Script, error) {
	query := selectColumns + ` WHERE is_active = 1 AND schedule_enabled = 1`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying scheduled scripts: %w", err)
	}
	defer rows.Close()

	var scripts []*Script
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning hosted script: %w", err)
		}
		scripts = append(scripts, script)
	}

	return scripts, rows.Err()
}

// Update writes the mutable fields of a hosted script. The endpoint slug is
// immutable and deliberately absent from the statement.
func (s *Store) Update(ctx context.Context, script *Script) error {
	query := `
		UPDATE hosted_scripts
		SET name = ?, language = ?, script = ?, params = ?, env = ?,
		    is_active = ?, schedule_enabled = ?, schedule_expression = ?,
		    rate_limit_enabled = ?, rate_limit_rpm = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		script.Name,
		script.Language,
		script.Script,
		marshalStringMap(script.Params),
		marshalStringMap(script.Env),
		boolToInt(script.IsActive),
		boolToInt(script.Schedule.Enabled),
		script.Schedule.Expression,
		boolToInt(script.RateLimit.Enabled),
		script.RateLimit.RequestsPerMinute,
		time.Now().UTC().Format(time.RFC3339Nano),
		script.ID,
	)
	if err != nil {
		return fmt.Errorf("updating hosted script: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// RecordInvocation bumps the execution counter and last-executed timestamp.
// Called on every invocation regardless of outcome.
func (s *Store) RecordInvocation(ctx context.Context, id string) error {
	query := `
		UPDATE hosted_scripts
		SET execution_count = execution_count + 1, last_executed_at = ?
		WHERE id = ?
	`

	_, err := s.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("recording invocation: %w", err)
	}

	return nil
}

// Delete removes a hosted script.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM hosted_scripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting hosted script: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

const selectColumns = `
	SELECT id, owner_id, name, language, script, endpoint_slug,
	       params, env, is_active, execution_count, last_executed_at,
	       schedule_enabled, schedule_expression,
	       rate_limit_enabled, rate_limit_rpm,
	       created_at, updated_at
	FROM hosted_scripts
`

func (s *Store) queryOne(ctx context.Context, where string, arg any) (*Script, error) {
	script, err := scanScript(s.db.QueryRowContext(ctx, selectColumns+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying hosted script: %w", err)
	}
	return script, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (*Script, error) {
	var script Script
	var params, env, createdAt, updatedAt string
	var lastExecutedAt sql.NullString
	var isActive, scheduleEnabled, rateLimitEnabled int

	if err := row.Scan(
		&script.ID,
		&script.OwnerID,
		&script.Name,
		&script.Language,
		&script.Script,
		&script.EndpointSlug,
		&params,
		&env,
		&isActive,
		&script.ExecutionCount,
		&lastExecutedAt,
		&scheduleEnabled,
		&script.Schedule.Expression,
		&rateLimitEnabled,
		&script.RateLimit.RequestsPerMinute,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	script.IsActive = isActive != 0
	script.Schedule.Enabled = scheduleEnabled != 0
	script.RateLimit.Enabled = rateLimitEnabled != 0

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	script.CreatedAt = t

	t, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	script.UpdatedAt = t

	if lastExecutedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastExecutedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_executed_at: %w", err)
		}
		script.LastExecutedAt = &t
	}

	if err := json.Unmarshal([]byte(params), &script.Params); err != nil {
		script.Params = nil
	}
	if err := json.Unmarshal([]byte(env), &script.Env); err != nil {
		script.Env = nil
	}

	return &script, nil
}

func marshalStringMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
