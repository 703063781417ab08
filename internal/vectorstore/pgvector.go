package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore keeps records in the vector_records table (see migrations).
type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(
			`INSERT INTO vector_records (id, document_id, filename, page_number, chunk_index, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
			   filename = EXCLUDED.filename, page_number = EXCLUDED.page_number,
			   content = EXCLUDED.content, embedding = EXCLUDED.embedding, created_at = EXCLUDED.created_at`,
			r.ID, r.Metadata.DocumentID, r.Metadata.Filename, r.Metadata.Page, r.Metadata.ChunkIndex,
			r.Metadata.Text, pgvector.NewVector(r.Values), r.Metadata.CreatedAt,
		)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert vector records: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PgVectorStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	var docFilter *string
	if filter != nil && filter.DocumentID != "" {
		docFilter = &filter.DocumentID
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, document_id, filename, page_number, chunk_index, content, created_at,
		        1 - (embedding <=> $1) AS score
		 FROM vector_records
		 WHERE $2::text IS NULL OR document_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(vector), docFilter, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		md := &m.Metadata
		if err := rows.Scan(&m.ID, &md.DocumentID, &md.Filename, &md.Page, &md.ChunkIndex, &md.Text, &md.CreatedAt, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *PgVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM vector_records WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("delete vector records: %w", err)
	}
	return nil
}

func (s *PgVectorStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
