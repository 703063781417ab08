package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker keeps one task per id, like asynq's unique task ids.
type fakeBroker struct {
	tasks    map[string]asynq.TaskState
	enqueued int
	deleted  []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{tasks: map[string]asynq.TaskState{}}
}

func (b *fakeBroker) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	var id string
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id = o.Value().(string)
		}
	}
	if _, ok := b.tasks[id]; ok {
		return nil, asynq.ErrTaskIDConflict
	}
	b.tasks[id] = asynq.TaskStateScheduled
	b.enqueued++
	return &asynq.TaskInfo{ID: id, Type: task.Type(), State: asynq.TaskStateScheduled}, nil
}

func (b *fakeBroker) GetTaskInfo(_, id string) (*asynq.TaskInfo, error) {
	state, ok := b.tasks[id]
	if !ok {
		return nil, asynq.ErrTaskNotFound
	}
	return &asynq.TaskInfo{ID: id, State: state}, nil
}

func (b *fakeBroker) DeleteTask(_, id string) error {
	delete(b.tasks, id)
	b.deleted = append(b.deleted, id)
	return nil
}

func (b *fakeBroker) Close() error { return nil }

func newTestClient(b *fakeBroker) *Client {
	return &Client{client: b, inspector: b, delay: time.Second}
}

func TestTriggerProcessing_PendingRunIsKept(t *testing.T) {
	b := newFakeBroker()
	c := newTestClient(b)
	id := uuid.New()

	require.NoError(t, c.TriggerProcessing(context.Background(), id))
	require.NoError(t, c.TriggerProcessing(context.Background(), id))

	assert.Equal(t, 1, b.enqueued)
	assert.Empty(t, b.deleted)
}

func TestTriggerProcessing_ReplacesFinishedTask(t *testing.T) {
	for _, state := range []asynq.TaskState{asynq.TaskStateArchived, asynq.TaskStateCompleted} {
		t.Run(state.String(), func(t *testing.T) {
			b := newFakeBroker()
			c := newTestClient(b)
			id := uuid.New()

			require.NoError(t, c.TriggerProcessing(context.Background(), id))
			b.tasks[documentTaskID(id)] = state

			require.NoError(t, c.TriggerProcessing(context.Background(), id))
			assert.Equal(t, 2, b.enqueued)
			assert.Equal(t, []string{documentTaskID(id)}, b.deleted)
			assert.Equal(t, asynq.TaskStateScheduled, b.tasks[documentTaskID(id)])
		})
	}
}

func TestTriggerProcessing_InspectFailure(t *testing.T) {
	b := newFakeBroker()
	c := newTestClient(b)
	id := uuid.New()
	b.tasks[documentTaskID(id)] = asynq.TaskStateArchived
	c.inspector = failingInspector{b}

	err := c.TriggerProcessing(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inspect task")
}

type failingInspector struct{ *fakeBroker }

func (failingInspector) GetTaskInfo(string, string) (*asynq.TaskInfo, error) {
	return nil, errors.New("redis unavailable")
}
