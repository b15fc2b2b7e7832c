package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process session store used when no database is
// available. Sessions do not survive restarts; it exists so conversational
// replies keep working while the gateway runs in degraded mode.
type MemoryStore struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]Session
	messages     map[uuid.UUID][]Message
	historyLimit int
}

// NewMemoryStore creates an in-memory store returning at most historyLimit
// recent messages from History. Non-positive limits fall back to the same
// default as the durable store.
func NewMemoryStore(historyLimit int32) *MemoryStore {
	limit := int(historyLimit)
	if limit <= 0 {
		limit = int(defaultHistoryLimit)
	}
	return &MemoryStore{
		sessions:     make(map[uuid.UUID]Session),
		messages:     make(map[uuid.UUID][]Message),
		historyLimit: limit,
	}
}

// Create starts a new session.
func (s *MemoryStore) Create(_ context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := Session{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns a session by ID, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// History returns the most recent messages in chronological order.
func (s *MemoryStore) History(_ context.Context, sessionID uuid.UUID) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}

	msgs := s.messages[sessionID]
	if len(msgs) > s.historyLimit {
		msgs = msgs[len(msgs)-s.historyLimit:]
	}

	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendTurn records a user message and the assistant's reply.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID uuid.UUID, userText, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	now := time.Now()
	seq := len(s.messages[sessionID])
	s.messages[sessionID] = append(s.messages[sessionID],
		Message{
			ID:             uuid.New(),
			SessionID:      sessionID,
			Role:           RoleUser,
			Content:        userText,
			SequenceNumber: seq + 1,
			CreatedAt:      now,
		},
		Message{
			ID:             uuid.New(),
			SessionID:      sessionID,
			Role:           RoleAssistant,
			Content:        assistantText,
			SequenceNumber: seq + 2,
			CreatedAt:      now,
		},
	)

	sess.UpdatedAt = now
	s.sessions[sessionID] = sess
	return nil
}
