package embedding

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/llm"
	"github.com/nikhilbhutani/pdfchat/internal/metrics"
)

// MaxInputChars is the silent truncation bound applied to every input.
const MaxInputChars = 8000

// Embedder is the narrow interface the ingestion and chat paths depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Service struct {
	gateway  llm.Gateway
	provider string
	model    string
	timeouts config.TimeoutConfig
}

func NewService(gw llm.Gateway, cfg config.LLMConfig, timeouts config.TimeoutConfig) *Service {
	model := cfg.EmbeddingModel
	if model == "" {
		model = llm.DefaultEmbeddingModel
	}
	return &Service{gateway: gw, provider: cfg.EmbeddingProvider, model: model, timeouts: timeouts}
}

// Normalize collapses whitespace, trims and truncates to MaxInputChars runes.
func Normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= MaxInputChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxInputChars])
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	input := Normalize(text)
	if input == "" {
		return nil, apperr.Validation("embed", "text is empty")
	}

	if s.timeouts.Embed > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeouts.Embed)
		defer cancel()
	}

	vecs, err := s.call(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one upstream call. Callers keep batches small
// enough for the provider's request limits.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = Normalize(t)
		if inputs[i] == "" {
			return nil, apperr.Validation("embed batch", fmt.Sprintf("text %d is empty", i))
		}
	}

	if s.timeouts.EmbedBatch > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeouts.EmbedBatch)
		defer cancel()
	}

	return s.call(ctx, inputs)
}

func (s *Service) call(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
		Provider: s.provider,
		Model:    s.model,
		Input:    inputs,
	})
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("embedding", string(apperr.KindOf(err))).Inc()
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, apperr.New(apperr.KindUpstream, "generate embedding",
			fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(resp.Embeddings)))
	}
	if resp.CostUSD > 0 {
		metrics.LLMCostUSD.WithLabelValues(resp.Provider, resp.Model).Add(resp.CostUSD)
	}
	return resp.Embeddings, nil
}
