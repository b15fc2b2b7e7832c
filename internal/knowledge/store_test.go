package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/sagekit/sage/internal/log"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	delay         time.Duration // simulated processing delay
	embedErr      error         // error to return
	returnEmpty   bool          // return empty embeddings
	embeddings    []float32     // custom embeddings to return
	callCount     int
	lastInputText string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++

	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInputText = req.Input[0].Content[0].Text
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.embedErr != nil {
		return nil, m.embedErr
	}

	if m.returnEmpty {
		return &ai.EmbedResponse{
			Embeddings: []*ai.Embedding{{Embedding: []float32{}}},
		}, nil
	}

	embeddings := m.embeddings
	if embeddings == nil {
		embeddings = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: embeddings}},
	}, nil
}

// mockQuerier implements Querier for testing.
type mockQuerier struct {
	upsertErr  error
	searchErr  error
	searchRows []SearchDocumentsRow
	countErr   error
	count      int64

	lastUpsert UpsertDocumentParams
	lastSearch SearchDocumentsParams
	deletedIDs []string
}

func (m *mockQuerier) UpsertDocument(_ context.Context, arg UpsertDocumentParams) error {
	m.lastUpsert = arg
	return m.upsertErr
}

func (m *mockQuerier) SearchDocuments(_ context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	m.lastSearch = arg
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchRows, nil
}

func (m *mockQuerier) CountDocuments(_ context.Context, _ []byte) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count, nil
}

func (m *mockQuerier) DeleteDocument(_ context.Context, id string) error {
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func TestStore_Add(t *testing.T) {
	q := &mockQuerier{}
	e := &mockEmbedder{}
	store := New(q, e, log.NewNop())

	doc := Document{
		ID:       "doc-1",
		Content:  "Go is a statically typed, compiled language.",
		Metadata: map[string]string{"source_type": SourceTypeFile},
	}
	if err := store.Add(context.Background(), doc); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if e.callCount != 1 {
		t.Errorf("embedder called %d times, want 1", e.callCount)
	}
	if e.lastInputText != doc.Content {
		t.Errorf("embedder input = %q, want document content", e.lastInputText)
	}
	if q.lastUpsert.ID != "doc-1" {
		t.Errorf("upsert ID = %q", q.lastUpsert.ID)
	}

	var metadata map[string]string
	if err := json.Unmarshal(q.lastUpsert.Metadata, &metadata); err != nil {
		t.Fatalf("unmarshal upserted metadata: %v", err)
	}
	if metadata["source_type"] != SourceTypeFile {
		t.Errorf("metadata = %v", metadata)
	}
}

func TestStore_Add_EmbedError(t *testing.T) {
	wantErr := errors.New("embed boom")
	store := New(&mockQuerier{}, &mockEmbedder{embedErr: wantErr}, log.NewNop())

	err := store.Add(context.Background(), Document{ID: "doc-1", Content: "x"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Add error = %v, want wrapped %v", err, wantErr)
	}
}

func TestStore_Add_EmptyEmbedding(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{returnEmpty: true}, log.NewNop())

	if err := store.Add(context.Background(), Document{ID: "doc-1", Content: "x"}); err == nil {
		t.Fatal("Add with empty embedding: expected error")
	}
}

func TestStore_Search(t *testing.T) {
	q := &mockQuerier{
		searchRows: []SearchDocumentsRow{
			{ID: "a", Content: "first", Metadata: []byte(`{"source_type":"file"}`), Similarity: 0.91},
			{ID: "b", Content: "second", Similarity: 0.72},
		},
	}
	store := New(q, &mockEmbedder{}, log.NewNop())

	results, err := store.Search(context.Background(), "query text",
		WithTopK(2), WithFilter("source_type", SourceTypeFile))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Document.ID != "a" || results[1].Document.ID != "b" {
		t.Errorf("result order wrong: %v", results)
	}
	if results[0].Similarity != 0.91 {
		t.Errorf("similarity = %v", results[0].Similarity)
	}
	if results[0].Document.Metadata["source_type"] != "file" {
		t.Errorf("metadata not decoded: %v", results[0].Document.Metadata)
	}

	if q.lastSearch.ResultLimit != 2 {
		t.Errorf("result limit = %d, want 2", q.lastSearch.ResultLimit)
	}
	var filter map[string]string
	if err := json.Unmarshal(q.lastSearch.FilterMetadata, &filter); err != nil {
		t.Fatalf("unmarshal filter: %v", err)
	}
	if filter["source_type"] != SourceTypeFile {
		t.Errorf("filter = %v", filter)
	}
}

func TestStore_Search_NoFilter(t *testing.T) {
	q := &mockQuerier{}
	store := New(q, &mockEmbedder{}, log.NewNop())

	if _, err := store.Search(context.Background(), "query"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if q.lastSearch.FilterMetadata != nil {
		t.Errorf("expected nil filter, got %s", q.lastSearch.FilterMetadata)
	}
	if q.lastSearch.ResultLimit != 5 {
		t.Errorf("default top-k = %d, want 5", q.lastSearch.ResultLimit)
	}
}

func TestStore_Search_EmbedTimeout(t *testing.T) {
	e := &mockEmbedder{delay: 200 * time.Millisecond}
	store := New(&mockQuerier{}, e, log.NewNop())

	_, err := store.Search(context.Background(), "query",
		WithTimeout(10*time.Millisecond))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestStore_Search_QueryError(t *testing.T) {
	wantErr := errors.New("db down")
	store := New(&mockQuerier{searchErr: wantErr}, &mockEmbedder{}, log.NewNop())

	_, err := store.Search(context.Background(), "query")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Search error = %v, want wrapped %v", err, wantErr)
	}
}

func TestStore_Count(t *testing.T) {
	store := New(&mockQuerier{count: 42}, &mockEmbedder{}, log.NewNop())

	count, err := store.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 42 {
		t.Errorf("Count = %d, want 42", count)
	}
}

func TestStore_Delete(t *testing.T) {
	q := &mockQuerier{}
	store := New(q, &mockEmbedder{}, log.NewNop())

	if err := store.Delete(context.Background(), "doc-9"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(q.deletedIDs) != 1 || q.deletedIDs[0] != "doc-9" {
		t.Errorf("deleted IDs = %v", q.deletedIDs)
	}
}
