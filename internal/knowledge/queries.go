package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgx operations Queries needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpsertDocumentParams are the arguments for Queries.UpsertDocument.
type UpsertDocumentParams struct {
	ID        string
	Content   string
	Embedding *pgvector.Vector
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
}

// SearchDocumentsParams are the arguments for Queries.SearchDocuments.
type SearchDocumentsParams struct {
	QueryEmbedding *pgvector.Vector
	FilterMetadata []byte // JSONB containment filter; nil disables filtering
	ResultLimit    int
}

// SearchDocumentsRow is a single vector search result row.
type SearchDocumentsRow struct {
	ID         string
	Content    string
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
	Similarity float64
}

// Queries is the pgx-backed implementation of the document queries used by
// Store. Construct with NewQueries.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries instance backed by db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertDocumentSQL = `
INSERT INTO documents (id, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))
ON CONFLICT (id) DO UPDATE
SET content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata
`

// UpsertDocument inserts or updates a document.
func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	var createdAt any
	if arg.CreatedAt.Valid {
		createdAt = arg.CreatedAt
	}
	_, err := q.db.Exec(ctx, upsertDocumentSQL,
		arg.ID, arg.Content, arg.Embedding, arg.Metadata, createdAt)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

const searchDocumentsSQL = `
SELECT id, content, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM documents
WHERE $2::jsonb IS NULL OR metadata @> $2::jsonb
ORDER BY embedding <=> $1
LIMIT $3
`

// SearchDocuments performs a cosine similarity search, optionally restricted
// by a JSONB metadata containment filter.
func (q *Queries) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	var filter any
	if len(arg.FilterMetadata) > 0 {
		filter = arg.FilterMetadata
	}
	rows, err := q.db.Query(ctx, searchDocumentsSQL,
		arg.QueryEmbedding, filter, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var results []SearchDocumentsRow
	for rows.Next() {
		var r SearchDocumentsRow
		if err := rows.Scan(&r.ID, &r.Content, &r.Metadata, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

const countDocumentsSQL = `
SELECT count(*) FROM documents
WHERE $1::jsonb IS NULL OR metadata @> $1::jsonb
`

// CountDocuments counts documents matching the filter. A nil filter counts
// all documents.
func (q *Queries) CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error) {
	var filter any
	if len(filterMetadata) > 0 {
		filter = filterMetadata
	}
	var count int64
	if err := q.db.QueryRow(ctx, countDocumentsSQL, filter).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

const deleteDocumentSQL = `DELETE FROM documents WHERE id = $1`

// DeleteDocument deletes a document by ID. Deleting a missing document is
// not an error.
func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	if _, err := q.db.Exec(ctx, deleteDocumentSQL, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
