package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool operations Queries needs, including
// transaction support for locked appends.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Queries is the pgx-backed implementation of the session queries used by
// Store.
type Queries struct {
	db DB
}

// NewQueries creates a Queries instance backed by db.
func NewQueries(db DB) *Queries {
	return &Queries{db: db}
}

const createSessionSQL = `
INSERT INTO sessions (id) VALUES ($1)
RETURNING id, created_at, updated_at
`

// CreateSession inserts a new session row.
func (q *Queries) CreateSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx, createSessionSQL, id).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

const getSessionSQL = `
SELECT id, created_at, updated_at FROM sessions WHERE id = $1
`

// GetSession fetches a session by ID. Returns ErrNotFound for missing rows.
func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var s Session
	err := q.db.QueryRow(ctx, getSessionSQL, id).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

const getMessagesSQL = `
SELECT id, session_id, role, content, sequence_number, created_at
FROM (
    SELECT id, session_id, role, content, sequence_number, created_at
    FROM session_messages
    WHERE session_id = $1
    ORDER BY sequence_number DESC
    LIMIT $2
) recent
ORDER BY sequence_number ASC
`

// GetMessages returns the most recent limit messages for a session in
// ascending sequence order.
func (q *Queries) GetMessages(ctx context.Context, sessionID uuid.UUID, limit int32) ([]Message, error) {
	rows, err := q.db.Query(ctx, getMessagesSQL, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

const lockSessionSQL = `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`

const maxSequenceSQL = `
SELECT COALESCE(MAX(sequence_number), 0) FROM session_messages WHERE session_id = $1
`

const insertMessageSQL = `
INSERT INTO session_messages (id, session_id, role, content, sequence_number)
VALUES ($1, $2, $3, $4, $5)
`

const touchSessionSQL = `UPDATE sessions SET updated_at = now() WHERE id = $1`

// AppendTurn appends a user/assistant turn pair to a session in a single
// transaction. The session row is locked with SELECT ... FOR UPDATE so
// concurrent appends to the same session serialize instead of racing on
// sequence numbers.
func (q *Queries) AppendTurn(ctx context.Context, sessionID uuid.UUID, userText, assistantText string) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, lockSessionSQL, sessionID).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx, maxSequenceSQL, sessionID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("get max sequence: %w", err)
	}

	turns := []struct {
		role    string
		content string
	}{
		{RoleUser, userText},
		{RoleAssistant, assistantText},
	}
	for i, turn := range turns {
		_, err := tx.Exec(ctx, insertMessageSQL,
			uuid.New(), sessionID, turn.role, turn.content, maxSeq+i+1)
		if err != nil {
			return fmt.Errorf("insert %s message: %w", turn.role, err)
		}
	}

	if _, err := tx.Exec(ctx, touchSessionSQL, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append transaction: %w", err)
	}
	committed = true
	return nil
}
