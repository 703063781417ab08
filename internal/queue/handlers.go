package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/pdfchat/internal/config"
)

type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	mux := asynq.NewServeMux()
	mux.Use(logTasks)
	return &HandlersRegistry{mux: mux}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func logTasks(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		if err != nil {
			slog.Error("task failed", "type", t.Type(), "duration_ms", time.Since(start).Milliseconds(), "error", err)
			return err
		}
		slog.Info("task done", "type", t.Type(), "duration_ms", time.Since(start).Milliseconds())
		return nil
	})
}

// NewServer builds the worker server over the same Redis the API enqueues to.
func NewServer(cfg *config.Config, concurrency int) *asynq.Server {
	return asynq.NewServer(redisOpt(cfg.Redis), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
}

// NewScheduler enqueues the conversation archival task on spec (cron syntax
// or "@every 1h" style).
func NewScheduler(cfg *config.Config) (*asynq.Scheduler, error) {
	s := asynq.NewScheduler(redisOpt(cfg.Redis), &asynq.SchedulerOpts{})
	if _, err := s.Register(cfg.Conversation.ArchiveSchedule, asynq.NewTask(TypeConversationArchive, nil), asynq.MaxRetry(0)); err != nil {
		return nil, fmt.Errorf("register archive schedule %q: %w", cfg.Conversation.ArchiveSchedule, err)
	}
	return s, nil
}
