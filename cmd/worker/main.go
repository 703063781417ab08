package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/pdfchat/internal/app"
	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/queue"
	"github.com/nikhilbhutani/pdfchat/internal/queue/workers"
)

const concurrency = 4

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg)
	cancel()
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if a.DB == nil || a.Redis == nil {
		slog.Error("worker requires DATABASE_URL and a reachable redis")
		os.Exit(1)
	}

	srv := queue.NewServer(cfg, concurrency)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeDocumentProcess, workers.NewDocumentWorker(a.Ingestor))
	registry.Register(queue.TypeConversationArchive, workers.NewArchiveWorker(a.Conversations, cfg.Conversation.IdleTimeout))

	scheduler, err := queue.NewScheduler(cfg)
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	slog.Info("starting worker", "concurrency", concurrency, "archive_schedule", cfg.Conversation.ArchiveSchedule)
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	srv.Shutdown()
	slog.Info("worker stopped")
}
