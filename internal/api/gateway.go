package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sagekit/sage/internal/chat"
	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/rag"
	"github.com/sagekit/sage/internal/session"
)

// maxRequestBody caps JSON request bodies at 1 MiB.
const maxRequestBody = 1 << 20

// Fixed user-facing strings. Handler failures are downgraded to one of
// these; diagnostic detail goes only to the log stream.
const (
	msgKBUnavailable = "Sorry, the knowledge base is not available at the moment. Please try again later."
	msgGenericError  = "An error occurred while processing your request. Please try again."
	msgSearchError   = "An error occurred while searching the knowledge base. Please try again."
)

// Answerer is the retrieval-pipeline capability the gateway depends on.
// *rag.Pipeline satisfies it, including a nil pipeline in degraded mode.
type Answerer interface {
	Answer(ctx context.Context, query string) (rag.Answer, error)
	Search(ctx context.Context, query string) ([]knowledge.Document, error)
}

// Chatter is the conversational capability the gateway depends on.
// *chat.Responder satisfies it.
type Chatter interface {
	Respond(ctx context.Context, sessionID uuid.UUID, input string) (chat.Reply, error)
}

// gatewayHandler holds dependencies for the three gateway endpoints.
type gatewayHandler struct {
	pipeline  Answerer
	responder Chatter
	logger    *slog.Logger
}

// messageRequest is the JSON request body for all POST endpoints.
type messageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"` // /answer only, optional
}

// messageResponse is the JSON response body.
type messageResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// decodeMessage parses and validates the request body. On failure it writes
// a client error and returns false.
func (h *gatewayHandler) decodeMessage(w http.ResponseWriter, r *http.Request) (messageRequest, bool) {
	var req messageRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON", h.logger)
		return messageRequest{}, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "field 'message' is required", h.logger)
		return messageRequest{}, false
	}
	return req, true
}

// kbAnswer handles POST /kbanswer: forward the query to the retrieval
// pipeline and return its generated answer.
func (h *gatewayHandler) kbAnswer(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}

	answer, err := h.pipeline.Answer(r.Context(), req.Message)
	if err != nil {
		h.logger.Error("answering from knowledge base", "error", err)
		writeJSON(w, http.StatusOK, messageResponse{Message: kbFailureMessage(err, msgGenericError)}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: answer.Text}, h.logger)
}

// search handles POST /search: return the retrieved source snippets as
// numbered "Source N" blocks.
func (h *gatewayHandler) search(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}

	docs, err := h.pipeline.Search(r.Context(), req.Message)
	if err != nil {
		h.logger.Error("searching knowledge base", "error", err)
		writeJSON(w, http.StatusOK, messageResponse{Message: kbFailureMessage(err, msgSearchError)}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: rag.FormatSources(docs)}, h.logger)
}

// answer handles POST /answer: generate a conversational reply. An optional
// session_id continues a previous conversation; the response always carries
// the session ID in use.
func (h *gatewayHandler) answer(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}

	sessionID := uuid.Nil
	if req.SessionID != "" {
		var err error
		sessionID, err = uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session", "field 'session_id' must be a UUID", h.logger)
			return
		}
	}

	reply, err := h.responder.Respond(r.Context(), sessionID, req.Message)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown_session", "session not found", h.logger)
			return
		}
		// Configuration and upstream failures alike are downgraded to the
		// generic message; only the log distinguishes them.
		h.logger.Error("generating conversational reply", "error", err)
		writeJSON(w, http.StatusOK, messageResponse{Message: msgGenericError}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message:   reply.Text,
		SessionID: reply.SessionID.String(),
	}, h.logger)
}

// kbFailureMessage maps a knowledge-endpoint error to its fixed user-facing
// string: dependency-unavailable gets the unavailability message, everything
// else the endpoint's generic failure message.
func kbFailureMessage(err error, generic string) string {
	if errors.Is(err, rag.ErrUnavailable) {
		return msgKBUnavailable
	}
	return generic
}
