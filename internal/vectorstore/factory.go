package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
)

// New builds the configured backend wrapped with per-call timeouts. db may be
// nil unless the backend is pgvector.
func New(ctx context.Context, cfg config.VectorStoreConfig, timeouts config.TimeoutConfig, db *pgxpool.Pool) (Index, error) {
	var (
		idx Index
		err error
	)

	switch cfg.Backend {
	case "pinecone":
		if cfg.PineconeAPIKey == "" {
			return nil, apperr.Config("vector index", "Pinecone API key not configured")
		}
		idx = NewPineconeIndex(cfg.PineconeHost, cfg.PineconeAPIKey, nil)
	case "pgvector":
		if db == nil {
			return nil, apperr.Config("vector index", "pgvector backend requires a database connection")
		}
		idx = NewPgVectorStore(db)
	case "qdrant":
		idx, err = NewQdrantIndex(ctx, cfg.QdrantHost, cfg.QdrantPort, cfg.Collection, cfg.Dimension)
	case "chromem":
		idx, err = NewChromemIndex("", cfg.Collection)
		slog.Warn("using in-process chromem vector index; vectors are not persisted")
	default:
		return nil, apperr.Config("vector index", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
	if err != nil {
		return nil, err
	}

	slog.Info("vector index ready", "backend", cfg.Backend, "collection", cfg.Collection)
	return WithTimeouts(idx, timeouts), nil
}
