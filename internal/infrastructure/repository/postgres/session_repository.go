package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

const (
	schemaLockKey = int64(2025031701)
	untitledChat  = "Untitled Chat"
)

const sessionSchemaDDL = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	session_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_turns (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL,
	session_id TEXT NOT NULL REFERENCES chat_sessions(session_id) ON DELETE CASCADE,
	user_message TEXT NOT NULL,
	assistant_message TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_turns_session_created ON chat_turns(session_id, created_at, seq);
`

// SessionRepository stores sessions as a header row plus append-only turn rows.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	return r.withSchemaLock(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sessionSchemaDDL); err != nil {
			return fmt.Errorf("execute schema ddl: %w", err)
		}
		return nil
	})
}

// Purge drops every session and recreates the empty schema.
func (r *SessionRepository) Purge(ctx context.Context) error {
	return r.withSchemaLock(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS chat_turns, chat_sessions`); err != nil {
			return fmt.Errorf("drop session tables: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sessionSchemaDDL); err != nil {
			return fmt.Errorf("recreate session tables: %w", err)
		}
		return nil
	})
}

func (r *SessionRepository) withSchemaLock(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize DDL across concurrent api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// AppendTurn creates the session on first use, titled with the first user message.
func (r *SessionRepository) AppendTurn(ctx context.Context, sessionID string, turn domain.ChatTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_sessions (session_id, title, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (session_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
`, sessionID, turn.User, turn.Timestamp); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_turns (id, session_id, user_message, assistant_message, created_at)
VALUES ($1, $2, $3, $4, $5)
`, uuid.NewString(), sessionID, turn.User, turn.Assistant, turn.Timestamp); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ChatTurn, error) {
	if limit <= 0 {
		return []domain.ChatTurn{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT user_message, assistant_message, created_at
FROM chat_turns
WHERE session_id = $1
ORDER BY created_at DESC, seq DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	defer rows.Close()

	out, err := scanTurns(rows, limit)
	if err != nil {
		return nil, err
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *SessionRepository) Turns(ctx context.Context, sessionID string) ([]domain.ChatTurn, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT user_message, assistant_message, created_at
FROM chat_turns
WHERE session_id = $1
ORDER BY created_at ASC, seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows, 0)
}

func (r *SessionRepository) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT s.session_id, COALESCE(NULLIF(s.title, ''), $1), MAX(t.created_at)
FROM chat_sessions s
LEFT JOIN chat_turns t ON t.session_id = s.session_id
GROUP BY s.session_id, s.title
ORDER BY MAX(t.created_at) DESC NULLS LAST
`, untitledChat)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SessionSummary, 0)
	for rows.Next() {
		var summary domain.SessionSummary
		var lastUpdated sql.NullTime
		if err := rows.Scan(&summary.SessionID, &summary.Title, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if lastUpdated.Valid {
			ts := lastUpdated.Time.UTC()
			summary.LastUpdated = &ts
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", fmt.Errorf("session %s", sessionID))
	}
	return nil
}

func scanTurns(rows *sql.Rows, capacity int) ([]domain.ChatTurn, error) {
	out := make([]domain.ChatTurn, 0, capacity)
	for rows.Next() {
		var turn domain.ChatTurn
		if err := rows.Scan(&turn.User, &turn.Assistant, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Timestamp = turn.Timestamp.UTC()
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}
