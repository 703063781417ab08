package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/document"
	"github.com/nikhilbhutani/pdfchat/internal/embedding"
	"github.com/nikhilbhutani/pdfchat/internal/metrics"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/storage"
	"github.com/nikhilbhutani/pdfchat/internal/vectorstore"
	"github.com/nikhilbhutani/pdfchat/pkg/chunker"
)

// Ingestor runs the extract -> chunk -> embed -> index pipeline for one
// document at a time per document id.
type Ingestor struct {
	repo      document.Repository
	storage   storage.Storage
	bucket    string
	extractor document.Extractor
	embedder  embedding.Embedder
	index     vectorstore.Index
	chunkOpts chunker.Options
	batchSize int

	group singleflight.Group
	now   func() time.Time
}

type IngestorDeps struct {
	Repo      document.Repository
	Storage   storage.Storage
	Extractor document.Extractor
	Embedder  embedding.Embedder
	Index     vectorstore.Index
}

func NewIngestor(deps IngestorDeps, cfg *config.Config) *Ingestor {
	batch := cfg.Ingest.BatchSize
	if batch <= 0 || batch > vectorstore.MaxUpsertBatch {
		batch = vectorstore.MaxUpsertBatch
	}
	return &Ingestor{
		repo:      deps.Repo,
		storage:   deps.Storage,
		bucket:    cfg.Storage.Bucket,
		extractor: deps.Extractor,
		embedder:  deps.Embedder,
		index:     deps.Index,
		chunkOpts: chunker.OptionsForSize(cfg.Chat.ChunkSize),
		batchSize: batch,
		now:       time.Now,
	}
}

// Process ingests the document. Failures that belong to the document
// (unreadable file, no text) are recorded on it and Process returns nil; the
// returned error is reserved for infrastructure problems and for
// document.ErrAlreadyProcessing.
func (i *Ingestor) Process(ctx context.Context, id uuid.UUID) error {
	_, err, shared := i.group.Do(id.String(), func() (any, error) {
		return nil, i.process(ctx, id)
	})
	if shared && err == nil {
		slog.Debug("joined in-flight processing run", "document_id", id)
	}
	return err
}

func (i *Ingestor) process(ctx context.Context, id uuid.UUID) error {
	won, err := i.repo.BeginProcessing(ctx, id)
	if err != nil {
		return fmt.Errorf("begin processing: %w", err)
	}
	if !won {
		return document.ErrAlreadyProcessing
	}

	doc, err := i.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	start := i.now()
	slog.Info("processing document", "document_id", id, "filename", doc.OriginalFilename)

	// A previous run may have left records, possibly more than this run writes.
	if err := i.index.DeleteByDocument(ctx, id.String()); err != nil {
		return i.fail(ctx, doc, "Failed to clear previous document vectors", err)
	}

	data, err := i.readFile(ctx, doc)
	if err != nil {
		return i.fail(ctx, doc, "Failed to read document file", err)
	}

	extracted, err := i.extractor.Extract(ctx, data)
	if err != nil {
		return i.fail(ctx, doc, "Failed to extract text from PDF", err)
	}
	if extracted.LowFidelity {
		slog.Warn("low fidelity text extraction; answers may miss content",
			"document_id", id, "extractor", i.extractor.Name())
	}
	i.saveMetadata(ctx, doc, extracted.PageCount(), extracted.Metadata)

	chunks := chunker.Split(extracted.Pages, i.chunkOpts)
	if len(chunks) == 0 {
		return i.fail(ctx, doc, "No text content found in PDF", nil)
	}

	processed := 0
	batch := make([]vectorstore.Record, 0, i.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := i.index.Upsert(ctx, batch); err != nil {
			slog.Warn("failed to upsert vector batch", "document_id", id, "size", len(batch), "error", err)
			metrics.ChunksSkipped.WithLabelValues("upsert").Add(float64(len(batch)))
		} else {
			processed += len(batch)
		}
		batch = batch[:0]
	}

	for _, c := range chunks {
		if ctx.Err() != nil {
			return i.fail(ctx, doc, "Processing was interrupted", ctx.Err())
		}

		vec, err := i.embedder.Embed(ctx, c.Text)
		if err != nil {
			slog.Warn("skipping chunk: embedding failed", "document_id", id, "chunk_index", c.Index, "page", c.Page, "error", err)
			metrics.ChunksSkipped.WithLabelValues("embedding").Inc()
			continue
		}

		batch = append(batch, vectorstore.Record{
			ID:     vectorstore.RecordID(id.String(), c.Index),
			Values: vec,
			Metadata: vectorstore.Metadata{
				DocumentID: id.String(),
				Filename:   doc.OriginalFilename,
				Page:       c.Page,
				ChunkIndex: c.Index,
				Text:       c.Text,
				CreatedAt:  i.now().UTC(),
			},
		})
		if len(batch) >= i.batchSize {
			flush()
		}
	}
	flush()

	if err := i.repo.Complete(context.WithoutCancel(ctx), id, len(chunks), processed); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	metrics.DocumentsProcessed.WithLabelValues(models.DocStatusProcessed).Inc()
	slog.Info("document processed",
		"document_id", id,
		"total_chunks", len(chunks),
		"processed_chunks", processed,
		"duration_ms", i.now().Sub(start).Milliseconds(),
	)
	return nil
}

func (i *Ingestor) readFile(ctx context.Context, doc *models.Document) ([]byte, error) {
	rc, err := i.storage.Download(ctx, i.bucket, doc.FilePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// fail records the failure on the document. It only returns an error when
// the status itself cannot be written.
func (i *Ingestor) fail(ctx context.Context, doc *models.Document, message string, cause error) error {
	slog.Error("document processing failed", "document_id", doc.ID, "reason", message, "error", cause)
	metrics.DocumentsProcessed.WithLabelValues(models.DocStatusFailed).Inc()

	if cause != nil && !errors.Is(cause, context.Canceled) {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	if err := i.repo.Fail(context.WithoutCancel(ctx), doc.ID, message, 0); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (i *Ingestor) saveMetadata(ctx context.Context, doc *models.Document, pages int, info map[string]string) {
	md := map[string]any{"pages": pages, "extractor": i.extractor.Name()}
	for k, v := range info {
		md[k] = v
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return
	}
	if err := i.repo.SetMetadata(ctx, doc.ID, raw); err != nil {
		slog.Warn("failed to save document metadata", "document_id", doc.ID, "error", err)
	}
}

// InlineTrigger runs processing in-process after a delay, for deployments
// without a queue worker.
type InlineTrigger struct {
	ingestor *Ingestor
	delay    time.Duration
	wg       sync.WaitGroup
}

func NewInlineTrigger(ingestor *Ingestor, delay time.Duration) *InlineTrigger {
	return &InlineTrigger{ingestor: ingestor, delay: delay}
}

func (t *InlineTrigger) TriggerProcessing(_ context.Context, id uuid.UUID) error {
	t.wg.Add(1)
	time.AfterFunc(t.delay, func() {
		defer t.wg.Done()
		err := t.ingestor.Process(context.Background(), id)
		if err != nil && !errors.Is(err, document.ErrAlreadyProcessing) {
			slog.Error("inline document processing failed", "document_id", id, "error", err)
		}
	})
	return nil
}

// Wait blocks until every triggered run has finished.
func (t *InlineTrigger) Wait() {
	t.wg.Wait()
}
