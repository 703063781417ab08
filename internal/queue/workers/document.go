package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/pdfchat/internal/document"
	"github.com/nikhilbhutani/pdfchat/internal/queue"
)

type DocumentProcessor interface {
	Process(ctx context.Context, documentID uuid.UUID) error
}

type DocumentWorker struct {
	processor DocumentProcessor
}

func NewDocumentWorker(p DocumentProcessor) *DocumentWorker {
	return &DocumentWorker{processor: p}
}

func (w *DocumentWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	docID, err := queue.ParseDocumentProcessPayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	err = w.processor.Process(ctx, docID)
	if errors.Is(err, document.ErrAlreadyProcessing) {
		slog.Info("document already processing or processed, skipping", "document_id", docID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("process document %s: %w", docID, err)
	}
	return nil
}
