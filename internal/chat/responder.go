// Package chat implements the conversational responder: a persona-prompted
// model call conditioned on durable per-session conversation history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/sagekit/sage/internal/config"
	"github.com/sagekit/sage/internal/session"
)

// personaPrompt is the fixed system instruction for the conversational
// responder.
const personaPrompt = "You are a helpful AI assistant. Your goal is to provide informative and engaging responses to user queries."

// Temperature is the fixed sampling temperature for conversational replies.
const Temperature float32 = 0.7

// fallbackResponse is returned when the model produces an empty completion.
const fallbackResponse = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// Model generates a completion from a system instruction and a message
// transcript.
type Model interface {
	Generate(ctx context.Context, system string, messages []*ai.Message) (string, error)
}

// SessionStore is the persistence capability Responder depends on.
// *session.Store satisfies it.
type SessionStore interface {
	Create(ctx context.Context) (session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (session.Session, error)
	History(ctx context.Context, sessionID uuid.UUID) ([]session.Message, error)
	AppendTurn(ctx context.Context, sessionID uuid.UUID, userText, assistantText string) error
}

// Config contains the required parameters for a Responder.
type Config struct {
	Model    Model
	Sessions SessionStore
	Logger   *slog.Logger

	// Credential returns the hosted-API credential. An empty return value
	// fails each call with config.ErrMissingAPIKey. nil defaults to
	// config.APIKey; local providers that need no credential should supply
	// a function returning a non-empty placeholder.
	Credential func() string

	// RetryConfig tunes transient-error retries (zero value uses defaults).
	RetryConfig RetryConfig
}

// validate checks that required parameters are present.
func (cfg Config) validate() error {
	if cfg.Model == nil {
		return errors.New("model is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	return nil
}

// Responder generates conversational replies. Each reply is conditioned on
// the persona prompt, the session's accumulated history, and the new input,
// then both sides of the exchange are appended to the session.
//
// Responder is stateless and safe for concurrent use; per-session write
// ordering is enforced by the session store's row lock.
type Responder struct {
	model       Model
	sessions    SessionStore
	credential  func() string
	retryConfig RetryConfig
	logger      *slog.Logger
}

// New creates a Responder.
func New(cfg Config) (*Responder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	credential := cfg.Credential
	if credential == nil {
		credential = config.APIKey
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Responder{
		model:       cfg.Model,
		sessions:    cfg.Sessions,
		credential:  credential,
		retryConfig: retryConfig,
		logger:      logger,
	}, nil
}

// Reply is the result of a conversational exchange.
type Reply struct {
	Text      string
	SessionID uuid.UUID
}

// Respond generates a reply to input within the given session. A nil
// sessionID starts a new session; the session ID actually used is returned
// so callers can continue the conversation.
func (r *Responder) Respond(ctx context.Context, sessionID uuid.UUID, input string) (Reply, error) {
	if r.credential() == "" {
		return Reply{}, fmt.Errorf("%w: hosted-API credential not set", config.ErrMissingAPIKey)
	}

	var history []session.Message
	if sessionID == uuid.Nil {
		sess, err := r.sessions.Create(ctx)
		if err != nil {
			return Reply{}, fmt.Errorf("creating session: %w", err)
		}
		sessionID = sess.ID
	} else {
		if _, err := r.sessions.Get(ctx, sessionID); err != nil {
			return Reply{}, fmt.Errorf("fetching session: %w", err)
		}
		h, err := r.sessions.History(ctx, sessionID)
		if err != nil {
			return Reply{}, fmt.Errorf("loading history: %w", err)
		}
		history = h
	}

	messages := buildMessages(history, input)

	text, err := r.generateWithRetry(ctx, messages)
	if err != nil {
		return Reply{}, err
	}

	if strings.TrimSpace(text) == "" {
		r.logger.Warn("model returned empty response", "session_id", sessionID)
		text = fallbackResponse
	}

	// Best-effort: a failed append loses one turn of history but not the
	// reply itself.
	if err := r.sessions.AppendTurn(ctx, sessionID, input, text); err != nil {
		r.logger.Warn("appending turn to session", "error", err, "session_id", sessionID)
	}

	return Reply{Text: text, SessionID: sessionID}, nil
}

// buildMessages converts stored history into a model transcript and appends
// the new user input.
func buildMessages(history []session.Message, input string) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	return append(messages, ai.NewUserMessage(ai.NewTextPart(input)))
}
