package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/conversation"
	"github.com/nikhilbhutani/pdfchat/internal/document"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/queue"
)

type processorFunc func(ctx context.Context, id uuid.UUID) error

func (f processorFunc) Process(ctx context.Context, id uuid.UUID) error { return f(ctx, id) }

func TestDocumentWorker(t *testing.T) {
	id := uuid.New()
	task, err := queue.NewDocumentProcessTask(id)
	require.NoError(t, err)

	var got uuid.UUID
	w := NewDocumentWorker(processorFunc(func(_ context.Context, docID uuid.UUID) error {
		got = docID
		return nil
	}))
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, id, got)
}

func TestDocumentWorker_AlreadyProcessingIsNotRetried(t *testing.T) {
	task, err := queue.NewDocumentProcessTask(uuid.New())
	require.NoError(t, err)

	w := NewDocumentWorker(processorFunc(func(context.Context, uuid.UUID) error {
		return document.ErrAlreadyProcessing
	}))
	assert.NoError(t, w.ProcessTask(context.Background(), task))
}

func TestDocumentWorker_InfrastructureErrorRetries(t *testing.T) {
	task, err := queue.NewDocumentProcessTask(uuid.New())
	require.NoError(t, err)

	w := NewDocumentWorker(processorFunc(func(context.Context, uuid.UUID) error {
		return errors.New("db down")
	}))
	err = w.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestDocumentWorker_BadPayloadSkipsRetry(t *testing.T) {
	w := NewDocumentWorker(processorFunc(func(context.Context, uuid.UUID) error { return nil }))
	err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeDocumentProcess, []byte(`{"document_id":"nope"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestArchiveWorker(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-48 * time.Hour)
	store := conversation.NewMemoryStoreWithClock(func() time.Time { return clock })
	ctx := context.Background()

	old, err := store.GetOrCreate(ctx, "old", conversation.ClientInfo{})
	require.NoError(t, err)
	clock = now
	recent, err := store.GetOrCreate(ctx, "recent", conversation.ClientInfo{})
	require.NoError(t, err)

	w := NewArchiveWorker(store, 24*time.Hour)
	w.now = func() time.Time { return now }
	require.NoError(t, w.ProcessTask(ctx, asynq.NewTask(queue.TypeConversationArchive, nil)))

	got, _ := store.Get(ctx, old.ID)
	assert.Equal(t, models.ConversationArchived, got.Status)
	got, _ = store.Get(ctx, recent.ID)
	assert.Equal(t, models.ConversationActive, got.Status)
}
