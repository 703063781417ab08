package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/pdfchat/internal/config"
)

func redisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	Close() error
}

// Client enqueues document processing runs. It satisfies document.Trigger.
type Client struct {
	client    enqueuer
	inspector taskInspector
	delay     time.Duration
}

func NewClient(cfg config.RedisConfig, delay time.Duration) *Client {
	return &Client{
		client:    asynq.NewClient(redisOpt(cfg)),
		inspector: asynq.NewInspector(redisOpt(cfg)),
		delay:     delay,
	}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

func documentTaskID(documentID uuid.UUID) string {
	return "document:" + documentID.String()
}

// finished reports whether a task in this state no longer runs and only
// holds its id until retention expires.
func finished(state asynq.TaskState) bool {
	return state == asynq.TaskStateArchived || state == asynq.TaskStateCompleted
}

// TriggerProcessing schedules processing after the configured delay. A run
// already queued for the same document is left as is; an archived or
// completed task with the same id is removed so the document can run again.
func (c *Client) TriggerProcessing(ctx context.Context, documentID uuid.UUID) error {
	task, err := NewDocumentProcessTask(documentID)
	if err != nil {
		return err
	}
	taskID := documentTaskID(documentID)

	info, err := c.enqueue(ctx, task, taskID)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		existing, ierr := c.inspector.GetTaskInfo(QueueDefault, taskID)
		if ierr != nil {
			return fmt.Errorf("inspect task %s: %w", taskID, ierr)
		}
		if !finished(existing.State) {
			slog.Info("document processing already queued", "document_id", documentID, "state", existing.State.String())
			return nil
		}
		if err := c.inspector.DeleteTask(QueueDefault, taskID); err != nil {
			return fmt.Errorf("delete finished task %s: %w", taskID, err)
		}
		info, err = c.enqueue(ctx, task, taskID)
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeDocumentProcess, err)
	}
	slog.Info("document processing scheduled", "document_id", documentID, "task_id", info.ID, "process_at", info.NextProcessAt)
	return nil
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, taskID string) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.Queue(QueueDefault),
		asynq.ProcessIn(c.delay),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	)
}
