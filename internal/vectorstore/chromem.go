package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

var errNoEmbedder = errors.New("chromem index requires precomputed embeddings")

// ChromemIndex is an in-process index used for local development and tests.
// Pass an empty path for a purely in-memory database.
type ChromemIndex struct {
	mu  sync.RWMutex
	col *chromem.Collection
}

func NewChromemIndex(path, collection string) (*ChromemIndex, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(collection, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbedder
	})
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", collection, err)
	}
	return &ChromemIndex{col: col}, nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Metadata.Text,
			Embedding: r.Values,
			Metadata: map[string]string{
				"document_id": r.Metadata.DocumentID,
				"filename":    r.Metadata.Filename,
				"page_number": strconv.Itoa(r.Metadata.Page),
				"chunk_index": strconv.Itoa(r.Metadata.ChunkIndex),
				"created_at":  r.Metadata.CreatedAt.UTC().Format(time.RFC3339),
			},
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (c *ChromemIndex) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// chromem requires nResults <= document count.
	count := c.col.Count()
	if count == 0 || topK <= 0 {
		return []Match{}, nil
	}
	if topK > count {
		topK = count
	}

	var where map[string]string
	if filter != nil && filter.DocumentID != "" {
		where = map[string]string{"document_id": filter.DocumentID}
	}

	results, err := c.col.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		created, _ := time.Parse(time.RFC3339, r.Metadata["created_at"])
		page, _ := strconv.Atoi(r.Metadata["page_number"])
		idx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		matches[i] = Match{
			ID:    r.ID,
			Score: float64(r.Similarity),
			Metadata: Metadata{
				DocumentID: r.Metadata["document_id"],
				Filename:   r.Metadata["filename"],
				Page:       page,
				ChunkIndex: idx,
				Text:       r.Content,
				CreatedAt:  created,
			},
		}
	}
	return matches, nil
}

func (c *ChromemIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.col.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

func (c *ChromemIndex) Ping(context.Context) error { return nil }

func (c *ChromemIndex) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col.Count()
}
