// Package app is the composition root shared by the API server and the
// worker. It builds every dependency once from the loaded config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/pdfchat/internal/cache"
	"github.com/nikhilbhutani/pdfchat/internal/chat"
	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/conversation"
	"github.com/nikhilbhutani/pdfchat/internal/database"
	"github.com/nikhilbhutani/pdfchat/internal/document"
	"github.com/nikhilbhutani/pdfchat/internal/embedding"
	"github.com/nikhilbhutani/pdfchat/internal/llm"
	"github.com/nikhilbhutani/pdfchat/internal/queue"
	"github.com/nikhilbhutani/pdfchat/internal/rag"
	"github.com/nikhilbhutani/pdfchat/internal/ratelimit"
	"github.com/nikhilbhutani/pdfchat/internal/settings"
	"github.com/nikhilbhutani/pdfchat/internal/storage"
	"github.com/nikhilbhutani/pdfchat/internal/vectorstore"
)

type App struct {
	Config *config.Config

	// DB and Redis are nil when not configured or unreachable.
	DB    *pgxpool.Pool
	Redis *redis.Client

	Index         vectorstore.Index
	Storage       storage.Storage
	Documents     *document.Service
	Conversations conversation.Store
	Settings      settings.Repository
	Cache         *cache.Cache
	Ingestor      *rag.Ingestor
	Chat          *chat.Service

	inline  *rag.InlineTrigger
	closers []io.Closer
	cancel  context.CancelFunc
}

// New connects to the configured backends. Without DATABASE_URL the
// repositories are kept in memory; without Redis the rate limiter is local
// to the process and the stats cache is disabled.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	bg, cancel := context.WithCancel(context.Background())
	a := &App{Config: cfg, cancel: cancel}

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.build(ctx, bg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.Database.URL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory repositories")
	} else {
		db, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.DB = db
		if err := database.RunMigrations(ctx, db, database.MigrationsFS(cfg.Database.MigrationsPath)); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, using in-process rate limiter", "addr", cfg.Redis.Addr, "error", err)
		rdb.Close()
	} else {
		a.Redis = rdb
	}
	return nil
}

func (a *App) build(ctx context.Context, bg context.Context) error {
	cfg := a.Config

	index, err := vectorstore.New(ctx, cfg.VectorStore, cfg.Timeouts, a.DB)
	if err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	a.Index = index
	if c, ok := index.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	a.Storage = store

	extractor, err := document.NewExtractor(cfg.Ingest.Extractor)
	if err != nil {
		return err
	}

	var docRepo document.Repository
	if a.DB != nil {
		docRepo = document.NewPgRepository(a.DB)
		a.Conversations = conversation.NewPgStore(a.DB)
		a.Settings = settings.NewPgRepository(a.DB)
	} else {
		docRepo = document.NewMemoryRepository()
		a.Conversations = conversation.NewMemoryStore()
		a.Settings = settings.NewMemoryRepository()
	}

	gw := llm.NewGateway(cfg.LLM)
	embedder := embedding.NewService(gw, cfg.LLM, cfg.Timeouts)

	a.Ingestor = rag.NewIngestor(rag.IngestorDeps{
		Repo:      docRepo,
		Storage:   store,
		Extractor: extractor,
		Embedder:  embedder,
		Index:     index,
	}, cfg)

	a.Documents = document.NewService(docRepo, store, index, a.trigger(), cfg.Storage)

	limits := ratelimit.Options{Limit: cfg.Chat.RateLimit, Window: cfg.Chat.RateWindow}
	var limiter ratelimit.Limiter
	if a.Redis != nil {
		limiter = ratelimit.NewRedisLimiter(a.Redis, limits)
		a.Cache = cache.NewCache(a.Redis, "pdfchat:")
	} else {
		mem := ratelimit.NewMemoryLimiter(limits)
		go mem.Cleanup(bg, time.Minute)
		limiter = mem
	}

	a.Chat = chat.NewService(
		a.Conversations,
		limiter,
		rag.NewRetriever(embedder, index, cfg.Chat),
		rag.NewGenerator(gw, cfg.LLM, cfg.Timeouts),
		cfg.Chat.HistoryLimit,
	)
	return nil
}

// trigger picks the queue when a worker can see the same state, otherwise
// processes in-process.
func (a *App) trigger() document.Trigger {
	cfg := a.Config
	if cfg.Ingest.Mode == "queue" {
		switch {
		case a.Redis == nil:
			slog.Warn("INGEST_MODE=queue needs redis, processing documents inline")
		case a.DB == nil:
			slog.Warn("INGEST_MODE=queue needs a database shared with the worker, processing documents inline")
		default:
			client := queue.NewClient(cfg.Redis, cfg.Ingest.Delay)
			a.closers = append(a.closers, client)
			return client
		}
	}
	a.inline = rag.NewInlineTrigger(a.Ingestor, cfg.Ingest.Delay)
	return a.inline
}

// Close waits for inline processing runs and releases connections.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.inline != nil {
		a.inline.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
