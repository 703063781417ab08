package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Auth         AuthConfig
	LLM          LLMConfig
	VectorStore  VectorStoreConfig
	Storage      StorageConfig
	Chat         ChatConfig
	Ingest       IngestConfig
	Timeouts     TimeoutConfig
	Conversation ConversationConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxy     bool
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	AdminJWTSecret string
}

type LLMConfig struct {
	OpenAIKey         string
	OpenAIBaseURL     string
	AnthropicKey      string
	OllamaURL         string
	DefaultProvider   string
	DefaultModel      string
	FallbackProvider  string
	FallbackModel     string
	EmbeddingProvider string
	EmbeddingModel    string
	MaxTokens         int
	Temperature       float64
}

type VectorStoreConfig struct {
	Backend        string // pinecone, pgvector, qdrant, chromem
	PineconeAPIKey string
	PineconeHost   string
	QdrantHost     string
	QdrantPort     int
	Collection     string
	Dimension      int
}

type StorageConfig struct {
	Backend     string // local or supabase
	LocalDir    string
	SupabaseURL string
	SupabaseKey string
	Bucket      string
	MaxFileSize int64
}

type ChatConfig struct {
	ChunkSize           int
	SimilarityThreshold float64
	TopK                int
	HistoryLimit        int
	RateLimit           int
	RateWindow          time.Duration
}

type IngestConfig struct {
	Mode      string // queue or inline
	Delay     time.Duration
	Extractor string // library, pdftotext, regex
	BatchSize int
}

// TimeoutConfig bounds every outbound call. Short covers index query/delete
// and metadata lookups; the rest are the long-running upstream calls.
type TimeoutConfig struct {
	Short      time.Duration
	Embed      time.Duration
	EmbedBatch time.Duration
	Upsert     time.Duration
	Completion time.Duration
}

type ConversationConfig struct {
	IdleTimeout     time.Duration
	ArchiveSchedule string
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not read .env file", "error", err)
	}

	var errs []string
	ints := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	floats := func(key string, fallback float64) float64 {
		v, err := getEnvFloat(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	bools := func(key string, fallback bool) bool {
		v, err := getEnvBool(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	durations := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           ints("SERVER_PORT", 8080),
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			TrustProxy:     bools("TRUST_PROXY", false),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       ints("DB_MAX_CONNS", 20),
			MinConns:       ints("DB_MIN_CONNS", 2),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       ints("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:      getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:         getEnv("OLLAMA_URL", ""),
			DefaultProvider:   getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:      getEnv("LLM_DEFAULT_MODEL", "gpt-3.5-turbo"),
			FallbackProvider:  getEnv("LLM_FALLBACK_PROVIDER", ""),
			FallbackModel:     getEnv("LLM_FALLBACK_MODEL", "claude-3-haiku-20240307"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "openai"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-ada-002"),
			MaxTokens:         ints("LLM_MAX_TOKENS", 500),
			Temperature:       floats("LLM_TEMPERATURE", 0.7),
		},
		VectorStore: VectorStoreConfig{
			Backend:        getEnv("VECTOR_BACKEND", "pinecone"),
			PineconeAPIKey: getEnv("PINECONE_API_KEY", ""),
			PineconeHost:   getEnv("PINECONE_HOST", ""),
			QdrantHost:     getEnv("QDRANT_HOST", "localhost"),
			QdrantPort:     ints("QDRANT_PORT", 6334),
			Collection:     getEnv("VECTOR_COLLECTION", "pdf_chunks"),
			Dimension:      ints("VECTOR_DIMENSION", 1536),
		},
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			LocalDir:    getEnv("STORAGE_LOCAL_DIR", "uploads"),
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "documents"),
			MaxFileSize: int64(ints("MAX_FILE_SIZE", 10<<20)),
		},
		Chat: ChatConfig{
			ChunkSize:           ints("CHUNK_SIZE", 1000),
			SimilarityThreshold: floats("SIMILARITY_THRESHOLD", 0.7),
			TopK:                ints("RETRIEVAL_TOP_K", 5),
			HistoryLimit:        ints("HISTORY_LIMIT", 5),
			RateLimit:           ints("RATE_LIMIT_MESSAGES", 60),
			RateWindow:          durations("RATE_LIMIT_WINDOW", time.Hour),
		},
		Ingest: IngestConfig{
			Mode:      getEnv("INGEST_MODE", "queue"),
			Delay:     durations("INGEST_DELAY", 10*time.Second),
			Extractor: getEnv("PDF_EXTRACTOR", "library"),
			BatchSize: ints("UPSERT_BATCH_SIZE", 100),
		},
		Timeouts: TimeoutConfig{
			Short:      durations("TIMEOUT_SHORT", 30*time.Second),
			Embed:      durations("TIMEOUT_EMBED", 60*time.Second),
			EmbedBatch: durations("TIMEOUT_EMBED_BATCH", 120*time.Second),
			Upsert:     durations("TIMEOUT_UPSERT", 60*time.Second),
			Completion: durations("TIMEOUT_COMPLETION", 120*time.Second),
		},
		Conversation: ConversationConfig{
			IdleTimeout:     durations("CONVERSATION_IDLE_TIMEOUT", 24*time.Hour),
			ArchiveSchedule: getEnv("CONVERSATION_ARCHIVE_SCHEDULE", "@hourly"),
		},
	}

	if len(errs) > 0 {
		return nil, apperr.Config("load config", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the settings that would otherwise fail deep inside a
// request. Credentials for the embedding/completion providers are checked by
// the clients themselves so a missing key surfaces per call.
func (c *Config) Validate() error {
	var problems []string

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems = append(problems, "LLM_TEMPERATURE must be within [0,2]")
	}
	if c.Chat.ChunkSize <= 0 {
		problems = append(problems, "CHUNK_SIZE must be positive")
	}
	if c.Chat.SimilarityThreshold < 0 || c.Chat.SimilarityThreshold > 1 {
		problems = append(problems, "SIMILARITY_THRESHOLD must be within [0,1]")
	}
	if c.Chat.TopK <= 0 {
		problems = append(problems, "RETRIEVAL_TOP_K must be positive")
	}
	if c.Chat.HistoryLimit < 0 {
		problems = append(problems, "HISTORY_LIMIT must not be negative")
	}
	if c.Chat.RateLimit <= 0 || c.Chat.RateWindow <= 0 {
		problems = append(problems, "RATE_LIMIT_MESSAGES and RATE_LIMIT_WINDOW must be positive")
	}
	if c.Ingest.BatchSize <= 0 || c.Ingest.BatchSize > 100 {
		problems = append(problems, "UPSERT_BATCH_SIZE must be within [1,100]")
	}
	if c.VectorStore.Dimension <= 0 {
		problems = append(problems, "VECTOR_DIMENSION must be positive")
	}

	switch c.VectorStore.Backend {
	case "pinecone":
		if c.VectorStore.PineconeAPIKey == "" || c.VectorStore.PineconeHost == "" {
			problems = append(problems, "PINECONE_API_KEY and PINECONE_HOST are required for the pinecone backend")
		}
	case "pgvector":
		if c.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required for the pgvector backend")
		}
	case "qdrant", "chromem":
	default:
		problems = append(problems, fmt.Sprintf("unknown VECTOR_BACKEND %q", c.VectorStore.Backend))
	}

	switch c.Ingest.Mode {
	case "queue", "inline":
	default:
		problems = append(problems, fmt.Sprintf("unknown INGEST_MODE %q", c.Ingest.Mode))
	}

	switch c.Ingest.Extractor {
	case "library", "pdftotext", "regex":
	default:
		problems = append(problems, fmt.Sprintf("unknown PDF_EXTRACTOR %q", c.Ingest.Extractor))
	}

	switch c.Storage.Backend {
	case "local":
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			problems = append(problems, "SUPABASE_URL and SUPABASE_SERVICE_KEY are required for the supabase storage backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}

	if len(problems) > 0 {
		return apperr.Config("validate config", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
