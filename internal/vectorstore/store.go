package vectorstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nikhilbhutani/pdfchat/internal/config"
)

// MaxUpsertBatch is the largest record slice callers may pass to Upsert.
// Index implementations do not re-batch.
const MaxUpsertBatch = 100

type Metadata struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Page       int       `json:"page_number"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Filter narrows a query. A nil *Filter searches the whole index.
type Filter struct {
	DocumentID string
}

type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Match, error)
	// DeleteByDocument removes every record of a document. Zero matches is not an error.
	DeleteByDocument(ctx context.Context, documentID string) error
	Ping(ctx context.Context) error
}

// RecordID is deterministic so re-processing overwrites instead of duplicating.
func RecordID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, chunkIndex)
}

// WithTimeouts bounds each call: upsert gets the long budget, query and
// delete the short one.
func WithTimeouts(idx Index, t config.TimeoutConfig) Index {
	return &timeoutIndex{next: idx, t: t}
}

type timeoutIndex struct {
	next Index
	t    config.TimeoutConfig
}

func bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (ti *timeoutIndex) Upsert(ctx context.Context, records []Record) error {
	ctx, cancel := bounded(ctx, ti.t.Upsert)
	defer cancel()
	return ti.next.Upsert(ctx, records)
}

func (ti *timeoutIndex) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Match, error) {
	ctx, cancel := bounded(ctx, ti.t.Short)
	defer cancel()
	return ti.next.Query(ctx, vector, topK, filter)
}

func (ti *timeoutIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	ctx, cancel := bounded(ctx, ti.t.Short)
	defer cancel()
	return ti.next.DeleteByDocument(ctx, documentID)
}

func (ti *timeoutIndex) Ping(ctx context.Context) error {
	ctx, cancel := bounded(ctx, ti.t.Short)
	defer cancel()
	return ti.next.Ping(ctx)
}

// Close releases the wrapped backend's connection, if it holds one.
func (ti *timeoutIndex) Close() error {
	if c, ok := ti.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
