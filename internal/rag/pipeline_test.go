package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/log"
)

// mockSearcher implements Searcher for testing.
type mockSearcher struct {
	results []knowledge.Result
	err     error

	lastQuery string
	lastOpts  int
}

func (m *mockSearcher) Search(_ context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error) {
	m.lastQuery = query
	m.lastOpts = len(opts)
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// mockModel implements Model for testing.
type mockModel struct {
	text string
	err  error

	lastSystem string
	lastPrompt string
}

func (m *mockModel) Generate(_ context.Context, system, prompt string) (string, error) {
	m.lastSystem = system
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func resultsFor(contents ...string) []knowledge.Result {
	results := make([]knowledge.Result, len(contents))
	for i, c := range contents {
		results[i] = knowledge.Result{
			Document: knowledge.Document{ID: c, Content: c},
		}
	}
	return results
}

func TestPipeline_Answer(t *testing.T) {
	store := &mockSearcher{results: resultsFor("refund policy text", "shipping text")}
	model := &mockModel{text: "Refunds are processed within 14 days."}
	p := New(store, model, 4, log.NewNop())

	answer, err := p.Answer(context.Background(), "What is the refund policy?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if answer.Text != "Refunds are processed within 14 days." {
		t.Errorf("answer text = %q", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Errorf("got %d sources, want 2", len(answer.Sources))
	}
	if store.lastQuery != "What is the refund policy?" {
		t.Errorf("search query = %q", store.lastQuery)
	}
	if !strings.Contains(model.lastPrompt, "refund policy text") {
		t.Errorf("prompt missing retrieved context: %q", model.lastPrompt)
	}
	if !strings.Contains(model.lastPrompt, "Question: What is the refund policy?") {
		t.Errorf("prompt missing question: %q", model.lastPrompt)
	}
}

func TestPipeline_Answer_SearchError(t *testing.T) {
	wantErr := errors.New("vector store down")
	p := New(&mockSearcher{err: wantErr}, &mockModel{}, 4, log.NewNop())

	_, err := p.Answer(context.Background(), "query")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Answer error = %v, want wrapped %v", err, wantErr)
	}
}

func TestPipeline_Answer_GenerateError(t *testing.T) {
	wantErr := errors.New("model over quota")
	p := New(&mockSearcher{}, &mockModel{err: wantErr}, 4, log.NewNop())

	_, err := p.Answer(context.Background(), "query")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Answer error = %v, want wrapped %v", err, wantErr)
	}
}

func TestPipeline_Search(t *testing.T) {
	store := &mockSearcher{results: resultsFor("a", "b", "c")}
	p := New(store, &mockModel{}, 3, log.NewNop())

	docs, err := p.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want 3", len(docs))
	}
	if docs[0].Content != "a" || docs[2].Content != "c" {
		t.Errorf("docs out of order: %v", docs)
	}
}

func TestPipeline_NilReportsUnavailable(t *testing.T) {
	var p *Pipeline

	if _, err := p.Answer(context.Background(), "q"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("nil Answer error = %v, want ErrUnavailable", err)
	}
	if _, err := p.Search(context.Background(), "q"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("nil Search error = %v, want ErrUnavailable", err)
	}
}

func TestFormatSources(t *testing.T) {
	tests := []struct {
		name string
		docs []knowledge.Document
		want string
	}{
		{
			name: "empty",
			docs: nil,
			want: "",
		},
		{
			name: "single source",
			docs: []knowledge.Document{{Content: "only one"}},
			want: "Source 1\nonly one",
		},
		{
			name: "numbered in input order",
			docs: []knowledge.Document{
				{Content: "first snippet"},
				{Content: "second snippet"},
				{Content: "third snippet"},
			},
			want: "Source 1\nfirst snippet\nSource 2\nsecond snippet\nSource 3\nthird snippet",
		},
		{
			name: "trailing whitespace trimmed",
			docs: []knowledge.Document{{Content: "padded content\n\n"}},
			want: "Source 1\npadded content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSources(tt.docs); got != tt.want {
				t.Errorf("FormatSources() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatSources_BlockCountMatchesInput(t *testing.T) {
	docs := make([]knowledge.Document, 7)
	for i := range docs {
		docs[i] = knowledge.Document{Content: "snippet"}
	}

	out := FormatSources(docs)
	if got := strings.Count(out, "Source "); got != 7 {
		t.Errorf("got %d source labels, want 7", got)
	}
	if strings.HasPrefix(out, "\n") || strings.HasSuffix(out, "\n") {
		t.Errorf("output has leading/trailing blank lines: %q", out)
	}
}
