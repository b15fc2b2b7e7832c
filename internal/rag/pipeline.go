// Package rag implements the retrieval pipeline behind the knowledge
// endpoints: embed the query, fetch the most similar documents, and prompt
// the model with the retrieved context.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sagekit/sage/internal/knowledge"
)

// ErrUnavailable indicates the retrieval pipeline was never constructed,
// typically because the knowledge store failed to initialize at startup.
// The gateway downgrades it to a fixed user-facing message.
var ErrUnavailable = errors.New("knowledge base unavailable")

// kbSystemPrompt instructs the model to answer strictly from the retrieved
// context.
const kbSystemPrompt = `You are a helpful assistant answering questions from a knowledge base.
Use only the provided context to answer. If the context does not contain
the answer, say you don't know.`

// Searcher is the knowledge-store capability the pipeline depends on.
// *knowledge.Store satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Model generates text from a system instruction and a user prompt.
type Model interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Answer is the result of a retrieval-augmented generation run.
type Answer struct {
	Text    string
	Sources []knowledge.Document
}

// Pipeline glues the knowledge store to the generator.
//
// A nil *Pipeline is valid and reports ErrUnavailable from every method,
// modeling the degraded mode where the store failed to initialize but the
// process keeps serving.
type Pipeline struct {
	store  Searcher
	model  Model
	topK   int
	logger *slog.Logger
}

// New creates a Pipeline. topK bounds how many documents are retrieved per
// query (non-positive = 4). logger may be nil.
func New(store Searcher, model Model, topK int, logger *slog.Logger) *Pipeline {
	if topK <= 0 {
		topK = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:  store,
		model:  model,
		topK:   topK,
		logger: logger,
	}
}

// Answer runs the full retrieval-augmented generation: retrieve the top-K
// documents for query and generate an answer grounded in them.
func (p *Pipeline) Answer(ctx context.Context, query string) (Answer, error) {
	if p == nil {
		return Answer{}, ErrUnavailable
	}

	docs, err := p.retrieve(ctx, query)
	if err != nil {
		return Answer{}, err
	}

	prompt := buildAnswerPrompt(query, docs)
	text, err := p.model.Generate(ctx, kbSystemPrompt, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	p.logger.Debug("answered knowledge query",
		"sources", len(docs),
		"answer_length", len(text),
	)
	return Answer{Text: text, Sources: docs}, nil
}

// Search retrieves the top-K documents for query without generation.
func (p *Pipeline) Search(ctx context.Context, query string) ([]knowledge.Document, error) {
	if p == nil {
		return nil, ErrUnavailable
	}
	return p.retrieve(ctx, query)
}

// retrieve fetches the top-K similar documents in similarity order.
func (p *Pipeline) retrieve(ctx context.Context, query string) ([]knowledge.Document, error) {
	results, err := p.store.Search(ctx, query, knowledge.WithTopK(p.topK))
	if err != nil {
		return nil, fmt.Errorf("retrieving documents: %w", err)
	}

	docs := make([]knowledge.Document, len(results))
	for i, r := range results {
		docs[i] = r.Document
	}
	return docs, nil
}

// buildAnswerPrompt assembles the generation prompt from the retrieved
// context and the user's question.
func buildAnswerPrompt(query string, docs []knowledge.Document) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for _, doc := range docs {
		b.WriteString(doc.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// FormatSources renders documents as numbered source blocks:
//
//	Source 1
//	<content>
//	Source 2
//	<content>
//
// Numbering starts at 1 and follows input order; trailing whitespace is
// trimmed. N documents produce exactly N blocks.
func FormatSources(docs []knowledge.Document) string {
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "Source %d\n", i+1)
		b.WriteString(doc.Content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
