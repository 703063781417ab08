package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "chromem")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Chat.ChunkSize)
	assert.Equal(t, 0.7, cfg.Chat.SimilarityThreshold)
	assert.Equal(t, 5, cfg.Chat.TopK)
	assert.Equal(t, 5, cfg.Chat.HistoryLimit)
	assert.Equal(t, 60, cfg.Chat.RateLimit)
	assert.Equal(t, time.Hour, cfg.Chat.RateWindow)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.Equal(t, "text-embedding-ada-002", cfg.LLM.EmbeddingModel)
	assert.Equal(t, int64(10<<20), cfg.Storage.MaxFileSize)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Short)
	assert.Equal(t, 120*time.Second, cfg.Timeouts.Completion)
	assert.False(t, cfg.Server.TrustProxy)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_TrustProxy(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "chromem")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Server.TrustProxy)

	t.Setenv("TRUST_PROXY", "sometimes")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUST_PROXY")
}

func TestLoad_DurationFormats(t *testing.T) {
	t.Setenv("RATE_LIMIT_WINDOW", "120")
	t.Setenv("TIMEOUT_SHORT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Chat.RateWindow)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Short)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	assert.Contains(t, err.Error(), "CHUNK_SIZE")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "pinecone without credentials",
			mutate:  func(c *Config) { c.VectorStore.Backend = "pinecone" },
			wantErr: "PINECONE_API_KEY",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Chat.SimilarityThreshold = 1.5 },
			wantErr: "SIMILARITY_THRESHOLD",
		},
		{
			name:    "batch too large",
			mutate:  func(c *Config) { c.Ingest.BatchSize = 500 },
			wantErr: "UPSERT_BATCH_SIZE",
		},
		{
			name:    "unknown extractor",
			mutate:  func(c *Config) { c.Ingest.Extractor = "ocr" },
			wantErr: "PDF_EXTRACTOR",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.LLM.Temperature = 2.5 },
			wantErr: "LLM_TEMPERATURE",
		},
		{
			name:    "pgvector needs database",
			mutate:  func(c *Config) { c.VectorStore.Backend = "pgvector" },
			wantErr: "DATABASE_URL",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("VECTOR_BACKEND", "chromem")
			cfg, err := Load()
			require.NoError(t, err)

			tc.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindConfig))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
