package knowledge_test

import (
	"context"
	"encoding/json"
	"testing"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"

	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/testutil"
)

// unitVector builds a 768-dim embedding with a single non-zero axis so
// cosine distances between test documents are predictable.
func unitVector(axis int) *pgvector.Vector {
	values := make([]float32, knowledge.VectorDimension)
	values[axis] = 1
	v := pgvector.NewVector(values)
	return &v
}

func TestQueries_Postgres(t *testing.T) {
	testutil.SkipIfNoDocker(t)

	pool := testutil.StartPostgres(t)
	queries := knowledge.NewQueries(pool)
	ctx := context.Background()

	mustJSON := func(m map[string]string) []byte {
		b, err := json.Marshal(m)
		require.NoError(t, err)
		return b
	}

	docs := []struct {
		id   string
		axis int
		meta map[string]string
	}{
		{"doc-a", 0, map[string]string{"type": "file", "source": "a.md"}},
		{"doc-b", 1, map[string]string{"type": "file", "source": "b.md"}},
		{"doc-c", 2, map[string]string{"type": "note"}},
	}
	for _, d := range docs {
		err := queries.UpsertDocument(ctx, knowledge.UpsertDocumentParams{
			ID:        d.id,
			Content:   "content of " + d.id,
			Embedding: unitVector(d.axis),
			Metadata:  mustJSON(d.meta),
		})
		require.NoError(t, err)
	}

	t.Run("search ranks by similarity", func(t *testing.T) {
		rows, err := queries.SearchDocuments(ctx, knowledge.SearchDocumentsParams{
			QueryEmbedding: unitVector(0),
			ResultLimit:    3,
		})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, "doc-a", rows[0].ID)
		require.InDelta(t, 1.0, rows[0].Similarity, 1e-6)
		require.Greater(t, rows[0].Similarity, rows[1].Similarity)
	})

	t.Run("metadata filter", func(t *testing.T) {
		rows, err := queries.SearchDocuments(ctx, knowledge.SearchDocumentsParams{
			QueryEmbedding: unitVector(0),
			FilterMetadata: mustJSON(map[string]string{"type": "note"}),
			ResultLimit:    10,
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "doc-c", rows[0].ID)
	})

	t.Run("upsert replaces content", func(t *testing.T) {
		err := queries.UpsertDocument(ctx, knowledge.UpsertDocumentParams{
			ID:        "doc-a",
			Content:   "updated content",
			Embedding: unitVector(0),
			Metadata:  mustJSON(map[string]string{"type": "file"}),
		})
		require.NoError(t, err)

		rows, err := queries.SearchDocuments(ctx, knowledge.SearchDocumentsParams{
			QueryEmbedding: unitVector(0),
			ResultLimit:    1,
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "updated content", rows[0].Content)
	})

	t.Run("count and delete", func(t *testing.T) {
		count, err := queries.CountDocuments(ctx, nil)
		require.NoError(t, err)
		require.EqualValues(t, 3, count)

		require.NoError(t, queries.DeleteDocument(ctx, "doc-c"))

		count, err = queries.CountDocuments(ctx, nil)
		require.NoError(t, err)
		require.EqualValues(t, 2, count)
	})
}
