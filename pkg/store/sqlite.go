// Package store persists sessions and turns in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/undergrace/mbc/pkg/mbc"
)

// SQLite implements mbc.Store on a local SQLite database.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at path and initializes the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS mbc_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			model TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			context TEXT,
			config TEXT,
			total_turns INTEGER NOT NULL DEFAULT 0,
			total_input_tokens INTEGER NOT NULL DEFAULT 0,
			total_output_tokens INTEGER NOT NULL DEFAULT 0,
			estimated_cost_usd REAL NOT NULL DEFAULT 0,
			result TEXT,
			error TEXT,
			started_at INTEGER,
			completed_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON mbc_sessions(status);
		CREATE INDEX IF NOT EXISTS idx_sessions_created ON mbc_sessions(created_at);

		CREATE TABLE IF NOT EXISTS mbc_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_uuid TEXT NOT NULL REFERENCES mbc_sessions(uuid) ON DELETE CASCADE,
			turn_number INTEGER NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			tool_results TEXT,
			input_tokens INTEGER,
			output_tokens INTEGER,
			stop_reason TEXT,
			duration_ms INTEGER,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON mbc_turns(session_uuid, turn_number);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateSession inserts a new session row.
func (s *SQLite) CreateSession(ctx context.Context, rec *mbc.SessionRecord) error {
	contextJSON, err := marshalNullable(rec.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	configJSON, err := marshalNullable(rec.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	now := time.Now().Unix()
	createdAt := rec.CreatedAt.Unix()
	if rec.CreatedAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mbc_sessions (
			uuid, name, status, model, system_prompt, context, config,
			total_turns, total_input_tokens, total_output_tokens,
			estimated_cost_usd, result, error, started_at, completed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, '', ?, NULL, ?, ?)`,
		rec.UUID, rec.Name, string(rec.Status), rec.Model, rec.SystemPrompt,
		contextJSON, configJSON,
		rec.TotalTurns, rec.TotalInputTokens, rec.TotalOutputTokens,
		rec.EstimatedCostUSD, unixOrNil(rec.StartedAt), createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", rec.UUID, err)
	}
	return nil
}

// UpdateSession rewrites the mutable columns of a session row.
func (s *SQLite) UpdateSession(ctx context.Context, rec *mbc.SessionRecord) error {
	resultJSON, err := marshalNullable(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE mbc_sessions SET
			status = ?,
			total_turns = ?,
			total_input_tokens = ?,
			total_output_tokens = ?,
			estimated_cost_usd = ?,
			result = ?,
			error = ?,
			started_at = ?,
			completed_at = ?,
			updated_at = ?
		WHERE uuid = ?`,
		string(rec.Status),
		rec.TotalTurns, rec.TotalInputTokens, rec.TotalOutputTokens,
		rec.EstimatedCostUSD, resultJSON, rec.Error,
		unixOrNil(rec.StartedAt), unixOrNil(rec.CompletedAt),
		time.Now().Unix(), rec.UUID,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", rec.UUID, err)
	}
	return nil
}

// CreateTurn appends one turn row.
func (s *SQLite) CreateTurn(ctx context.Context, rec *mbc.TurnRecord) error {
	contentJSON, err := json.Marshal(rec.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}
	toolCallsJSON, err := marshalNullableSlice(rec.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	toolResultsJSON, err := marshalNullableSlice(rec.ToolResults)
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}

	createdAt := rec.CreatedAt.Unix()
	if rec.CreatedAt.IsZero() {
		createdAt = time.Now().Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mbc_turns (
			session_uuid, turn_number, type, content, tool_calls, tool_results,
			input_tokens, output_tokens, stop_reason, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionUUID, rec.TurnNumber, string(rec.Type), string(contentJSON),
		toolCallsJSON, toolResultsJSON,
		nullIfZero(rec.InputTokens), nullIfZero(rec.OutputTokens),
		nullIfEmpty(string(rec.StopReason)),
		rec.DurationMs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert turn %d for session %s: %w", rec.TurnNumber, rec.SessionUUID, err)
	}
	return nil
}

// CountRunning returns the number of sessions currently in the running
// state.
func (s *SQLite) CountRunning(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mbc_sessions WHERE status = ?",
		string(mbc.StatusRunning),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count running sessions: %w", err)
	}
	return count, nil
}

// GetSession fetches a single session by uuid.
func (s *SQLite) GetSession(ctx context.Context, uuid string) (*mbc.SessionRecord, error) {
	records, err := s.GetSessions(ctx, []string{uuid})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sql.ErrNoRows
	}
	return &records[0], nil
}

// GetSessions fetches the sessions with the given uuids. Missing uuids are
// silently absent from the result.
func (s *SQLite) GetSessions(ctx context.Context, uuids []string) ([]mbc.SessionRecord, error) {
	if len(uuids) == 0 {
		return []mbc.SessionRecord{}, nil
	}

	placeholders := strings.Repeat("?,", len(uuids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(uuids))
	for i, id := range uuids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT uuid, name, status, model, system_prompt, context, config,
			total_turns, total_input_tokens, total_output_tokens,
			estimated_cost_usd, result, error, started_at, completed_at, created_at
		FROM mbc_sessions WHERE uuid IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

	var records []mbc.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListTurns returns a session's turns in order.
func (s *SQLite) ListTurns(ctx context.Context, sessionUUID string) ([]mbc.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_uuid, turn_number, type, content, tool_calls, tool_results,
			input_tokens, output_tokens, stop_reason, duration_ms, created_at
		FROM mbc_turns WHERE session_uuid = ? ORDER BY turn_number`, sessionUUID)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}
	defer rows.Close()

	var records []mbc.TurnRecord
	for rows.Next() {
		var rec mbc.TurnRecord
		var turnType string
		var contentJSON string
		var toolCallsJSON, toolResultsJSON, stopReason sql.NullString
		var inputTokens, outputTokens sql.NullInt64
		var createdAt int64

		if err := rows.Scan(
			&rec.SessionUUID, &rec.TurnNumber, &turnType, &contentJSON,
			&toolCallsJSON, &toolResultsJSON,
			&inputTokens, &outputTokens, &stopReason,
			&rec.DurationMs, &createdAt,
		); err != nil {
			return nil, err
		}

		rec.Type = mbc.TurnType(turnType)
		rec.InputTokens = int(inputTokens.Int64)
		rec.OutputTokens = int(outputTokens.Int64)
		rec.StopReason = mbc.StopReason(stopReason.String)
		rec.CreatedAt = time.Unix(createdAt, 0)

		if err := json.Unmarshal([]byte(contentJSON), &rec.Content); err != nil {
			return nil, fmt.Errorf("decode turn content: %w", err)
		}
		if toolCallsJSON.Valid {
			if err := json.Unmarshal([]byte(toolCallsJSON.String), &rec.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		if toolResultsJSON.Valid {
			if err := json.Unmarshal([]byte(toolResultsJSON.String), &rec.ToolResults); err != nil {
				return nil, fmt.Errorf("decode tool results: %w", err)
			}
		}

		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkZombies flags running sessions that have been silent longer than
// maxAge as failed. Returns the number of sessions updated.
func (s *SQLite) MarkZombies(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	res, err := s.db.ExecContext(ctx, `
		UPDATE mbc_sessions SET
			status = ?,
			error = 'session abandoned: no activity before shutdown',
			completed_at = ?,
			updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		string(mbc.StatusFailed), time.Now().Unix(), time.Now().Unix(),
		string(mbc.StatusRunning), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("mark zombie sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.logger.Warn().Int64("count", affected).Msg("Marked zombie sessions as failed")
	}
	return int(affected), nil
}

// Prune deletes finished sessions older than maxAge, cascading to turns.
// Returns the number of sessions deleted.
func (s *SQLite) Prune(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM mbc_sessions
		WHERE status IN (?, ?, ?) AND created_at < ?`,
		string(mbc.StatusCompleted), string(mbc.StatusFailed), string(mbc.StatusMaxTurns),
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.logger.Info().Int64("count", affected).Msg("Pruned old sessions")
	}
	return int(affected), nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanSession(rows *sql.Rows) (mbc.SessionRecord, error) {
	var rec mbc.SessionRecord
	var status string
	var contextJSON, configJSON, resultJSON, errText sql.NullString
	var startedAt, completedAt sql.NullInt64
	var createdAt int64

	if err := rows.Scan(
		&rec.UUID, &rec.Name, &status, &rec.Model, &rec.SystemPrompt,
		&contextJSON, &configJSON,
		&rec.TotalTurns, &rec.TotalInputTokens, &rec.TotalOutputTokens,
		&rec.EstimatedCostUSD, &resultJSON, &errText,
		&startedAt, &completedAt, &createdAt,
	); err != nil {
		return rec, err
	}

	rec.Status = mbc.SessionStatus(status)
	rec.Error = errText.String
	rec.CreatedAt = time.Unix(createdAt, 0)

	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		rec.CompletedAt = &t
	}

	if contextJSON.Valid {
		if err := json.Unmarshal([]byte(contextJSON.String), &rec.Context); err != nil {
			return rec, fmt.Errorf("decode context: %w", err)
		}
	}
	if configJSON.Valid {
		if err := json.Unmarshal([]byte(configJSON.String), &rec.Config); err != nil {
			return rec, fmt.Errorf("decode config: %w", err)
		}
	}
	if resultJSON.Valid {
		if err := json.Unmarshal([]byte(resultJSON.String), &rec.Result); err != nil {
			return rec, fmt.Errorf("decode result: %w", err)
		}
	}

	return rec, nil
}

func nullIfZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func marshalNullable(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func marshalNullableSlice[T any](items []T) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}
