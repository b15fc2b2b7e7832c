package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Querier defines the database operations Store depends on. Queries is the
// production implementation; tests substitute a mock.
type Querier interface {
	CreateSession(ctx context.Context, id uuid.UUID) (Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	GetMessages(ctx context.Context, sessionID uuid.UUID, limit int32) ([]Message, error)
	AppendTurn(ctx context.Context, sessionID uuid.UUID, userText, assistantText string) error
}

// defaultHistoryLimit is used when Store is constructed with a non-positive
// history limit.
const defaultHistoryLimit int32 = 100

// Store manages session persistence.
// Safe for concurrent use by multiple goroutines.
type Store struct {
	queries      Querier
	historyLimit int32
	logger       *slog.Logger
}

// New creates a Store. historyLimit caps how many messages History loads per
// session (0 or negative = default). logger may be nil.
func New(querier Querier, historyLimit int32, logger *slog.Logger) *Store {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:      querier,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Create starts a new conversation session with a fresh ID.
func (s *Store) Create(ctx context.Context) (Session, error) {
	sess, err := s.queries.CreateSession(ctx, uuid.New())
	if err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Debug("created session", "session_id", sess.ID)
	return sess, nil
}

// Get fetches a session by ID. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	return s.queries.GetSession(ctx, id)
}

// History returns the most recent messages of a session in chronological
// order, bounded by the store's history limit.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	msgs, err := s.queries.GetMessages(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return msgs, nil
}

// AppendTurn records a completed user/assistant exchange.
func (s *Store) AppendTurn(ctx context.Context, sessionID uuid.UUID, userText, assistantText string) error {
	if err := s.queries.AppendTurn(ctx, sessionID, userText, assistantText); err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}
