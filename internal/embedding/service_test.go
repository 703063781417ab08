package embedding

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/llm"
)

type recordingProvider struct {
	inputs [][]string
	err    error
}

func (p *recordingProvider) Name() string     { return "openai" }
func (p *recordingProvider) Models() []string { return nil }
func (p *recordingProvider) ChatCompletion(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, nil
}
func (p *recordingProvider) GenerateEmbedding(_ context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	p.inputs = append(p.inputs, req.Input)
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(req.Input))
	for i := range out {
		out[i] = []float32{float32(i + 1)}
	}
	return &llm.EmbeddingResponse{Embeddings: out}, nil
}

func newTestService(p llm.Provider) *Service {
	cfg := config.LLMConfig{DefaultProvider: "openai", EmbeddingProvider: "openai"}
	return NewService(llm.NewGatewayWithProviders(cfg, p), cfg, config.TimeoutConfig{})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b", Normalize("  a \n\n\t b "))

	long := strings.Repeat("é", MaxInputChars+500)
	got := Normalize(long)
	assert.Equal(t, MaxInputChars, utf8.RuneCountInString(got))
}

func TestEmbed_TruncatesSilently(t *testing.T) {
	p := &recordingProvider{}
	svc := newTestService(p)

	vec, err := svc.Embed(context.Background(), strings.Repeat("x", 20000))
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	require.Len(t, p.inputs, 1)
	assert.Len(t, p.inputs[0][0], MaxInputChars)
}

func TestEmbed_EmptyIsValidationError(t *testing.T) {
	p := &recordingProvider{}
	svc := newTestService(p)

	_, err := svc.Embed(context.Background(), " \n\t ")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Empty(t, p.inputs)
}

func TestEmbed_ProviderErrorKindSurvivesWrapping(t *testing.T) {
	svc := newTestService(&recordingProvider{err: apperr.Config("openai embedding", "OpenAI API key not configured")})

	_, err := svc.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	assert.Equal(t, "OpenAI API key not configured", apperr.Message(err))
}

func TestEmbedBatch(t *testing.T) {
	p := &recordingProvider{}
	svc := newTestService(p)

	vecs, err := svc.EmbedBatch(context.Background(), []string{"one", " two  words "})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, vecs)
	assert.Equal(t, []string{"one", "two words"}, p.inputs[0])

	_, err = svc.EmbedBatch(context.Background(), []string{"ok", ""})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
