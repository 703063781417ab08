package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
)

// gateway makes exactly one attempt per provider. On chat failure it tries the
// fallback provider once.
type gateway struct {
	providers         map[string]Provider
	defaultProvider   string
	fallbackProvider  string
	fallbackModel     string
	embeddingProvider string
}

func NewGateway(cfg config.LLMConfig) Gateway {
	g := newGateway(cfg)

	// The OpenAI provider is always registered so a missing key surfaces as
	// a configuration error on first use.
	g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, nil)
	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OllamaURL != "" {
		g.providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}

	return g
}

// NewGatewayWithProviders is used by tests and by callers that build their
// own provider set.
func NewGatewayWithProviders(cfg config.LLMConfig, providers ...Provider) Gateway {
	g := newGateway(cfg)
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func newGateway(cfg config.LLMConfig) *gateway {
	return &gateway{
		providers:         make(map[string]Provider),
		defaultProvider:   cfg.DefaultProvider,
		fallbackProvider:  cfg.FallbackProvider,
		fallbackModel:     cfg.FallbackModel,
		embeddingProvider: cfg.EmbeddingProvider,
	}
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, apperr.Config("llm gateway", fmt.Sprintf("provider %q not configured", name))
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chat(ctx, providerName, req)
	if err == nil || g.fallbackProvider == "" || g.fallbackProvider == providerName || ctx.Err() != nil {
		return resp, err
	}

	slog.Warn("primary provider failed, trying fallback",
		"primary", providerName,
		"fallback", g.fallbackProvider,
		"error", err,
	)
	fallbackReq := req
	if g.fallbackModel != "" {
		fallbackReq.Model = g.fallbackModel
	}
	resp, ferr := g.chat(ctx, g.fallbackProvider, fallbackReq)
	if ferr != nil {
		slog.Warn("fallback provider failed", "fallback", g.fallbackProvider, "error", ferr)
		return nil, err
	}
	return resp, nil
}

func (g *gateway) chat(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	return p.ChatCompletion(ctx, req)
}

func (g *gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.embeddingProvider
	}
	if providerName == "" {
		providerName = g.defaultProvider
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	return p.GenerateEmbedding(ctx, req)
}

func (g *gateway) ListModels() []ModelInfo {
	var models []ModelInfo
	for _, p := range g.providers {
		for _, m := range p.Models() {
			models = append(models, ModelInfo{Provider: p.Name(), Model: m})
		}
	}
	return models
}
