package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
)

func TestOpenAI_MissingKeyFailsBeforeNetwork(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	p := NewOpenAIProvider("", srv.URL, srv.Client())

	_, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"hi"}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	assert.Equal(t, "OpenAI API key not configured", apperr.Message(err))

	_, err = p.ChatCompletion(context.Background(), ChatRequest{Model: "gpt-3.5-turbo"})
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	assert.Zero(t, hits)
}

func TestOpenAI_UpstreamMessageExtracted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached for requests","type":"requests"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, srv.Client())

	_, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"hi"}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, "Rate limit reached for requests", apperr.Message(err))
}

func TestOpenAI_UpstreamWithoutPayloadGetsGenericMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, srv.Client())

	_, err := p.ChatCompletion(context.Background(), ChatRequest{Model: "gpt-3.5-turbo", Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Contains(t, apperr.Message(err), "502")
}

func TestOpenAI_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewOpenAIProvider("sk-test", url, nil)

	_, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"hi"}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTransport))
}

func TestOpenAI_EmbeddingsReorderedByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
			"usage": map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, srv.Client())

	resp, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Input: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, resp.Embeddings)
	assert.Equal(t, DefaultEmbeddingModel, resp.Model)
}

type fakeProvider struct {
	name  string
	reply string
	err   error
	calls int
	model string
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Models() []string { return []string{"m"} }
func (f *fakeProvider) ChatCompletion(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	f.calls++
	f.model = req.Model
	if f.err != nil {
		return nil, f.err
	}
	return &ChatResponse{Provider: f.name, Content: f.reply}, nil
}
func (f *fakeProvider) GenerateEmbedding(_ context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &EmbeddingResponse{Provider: f.name, Embeddings: [][]float32{{1}}}, nil
}

func TestGateway_SingleAttemptThenFallback(t *testing.T) {
	primary := &fakeProvider{name: "openai", err: errors.New("boom")}
	fallback := &fakeProvider{name: "anthropic", reply: "from fallback"}
	gw := NewGatewayWithProviders(config.LLMConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
		FallbackModel:    "claude-3-haiku-20240307",
	}, primary, fallback)

	resp, err := gw.Chat(context.Background(), ChatRequest{Model: "gpt-3.5-turbo"})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, "claude-3-haiku-20240307", fallback.model)
}

func TestGateway_FallbackFailureReturnsPrimaryError(t *testing.T) {
	primaryErr := apperr.New(apperr.KindUpstream, "openai chat", "overloaded")
	gw := NewGatewayWithProviders(config.LLMConfig{DefaultProvider: "openai", FallbackProvider: "anthropic"},
		&fakeProvider{name: "openai", err: primaryErr},
		&fakeProvider{name: "anthropic", err: errors.New("also down")},
	)

	_, err := gw.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, primaryErr)
}

func TestGateway_EmbedUsesEmbeddingProvider(t *testing.T) {
	chat := &fakeProvider{name: "anthropic"}
	embed := &fakeProvider{name: "ollama"}
	gw := NewGatewayWithProviders(config.LLMConfig{DefaultProvider: "anthropic", EmbeddingProvider: "ollama"}, chat, embed)

	resp, err := gw.Embed(context.Background(), EmbeddingRequest{Input: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "ollama", resp.Provider)
	assert.Zero(t, chat.calls)
}

func TestGateway_UnknownProviderIsConfigError(t *testing.T) {
	gw := NewGatewayWithProviders(config.LLMConfig{DefaultProvider: "nope"})

	_, err := gw.Chat(context.Background(), ChatRequest{})
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func TestOllama_ErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llama9\" not found"}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL)
	_, err := p.ChatCompletion(context.Background(), ChatRequest{Model: "llama9"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, `model "llama9" not found`, apperr.Message(err))
}

func TestCalculateCost(t *testing.T) {
	assert.InDelta(t, 0.002, CalculateCost("gpt-3.5-turbo", 1000, 1000), 1e-9)
	assert.Zero(t, CalculateCost("llama3", 1000, 1000))
}

func TestChatCompletion_ZeroTemperatureIsSent(t *testing.T) {
	var openaiBody, ollamaBody map[string]any
	openaiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&openaiBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","model":"gpt-3.5-turbo","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer openaiSrv.Close()
	ollamaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&ollamaBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"ok"},"done":true}`))
	}))
	defer ollamaSrv.Close()

	zero := 0.0
	req := ChatRequest{Model: "gpt-3.5-turbo", Temperature: &zero, Messages: []Message{{Role: RoleUser, Content: "x"}}}

	_, err := NewOpenAIProvider("sk-test", openaiSrv.URL, openaiSrv.Client()).ChatCompletion(context.Background(), req)
	require.NoError(t, err)
	require.Contains(t, openaiBody, "temperature")
	assert.InDelta(t, 0, openaiBody["temperature"], 1e-6)

	_, err = NewOllamaProvider(ollamaSrv.URL).ChatCompletion(context.Background(), req)
	require.NoError(t, err)
	options, ok := ollamaBody["options"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, options, "temperature")
	assert.Equal(t, 0.0, options["temperature"])
}
