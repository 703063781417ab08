package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/pdfchat/internal/conversation"
)

// ArchiveWorker archives conversations idle for longer than idleTimeout.
type ArchiveWorker struct {
	store       conversation.Store
	idleTimeout time.Duration
	now         func() time.Time
}

func NewArchiveWorker(store conversation.Store, idleTimeout time.Duration) *ArchiveWorker {
	return &ArchiveWorker{store: store, idleTimeout: idleTimeout, now: time.Now}
}

func (w *ArchiveWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	cutoff := w.now().Add(-w.idleTimeout)
	n, err := w.store.ArchiveIdle(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive conversations: %w", err)
	}
	if n > 0 {
		slog.Info("archived idle conversations", "count", n, "cutoff", cutoff)
	}
	return nil
}
