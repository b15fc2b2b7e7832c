// Package session persists conversation history to PostgreSQL.
//
// Each session is an ordered sequence of user/assistant turn pairs keyed by a
// caller-supplied session ID. Appends take a row lock on the session so a
// single writer mutates any given session at a time.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents a conversation session.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a single conversation message.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string // "user" | "assistant"
	Content        string
	SequenceNumber int
	CreatedAt      time.Time
}
