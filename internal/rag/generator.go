package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/llm"
	"github.com/nikhilbhutani/pdfchat/internal/metrics"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/pkg/tokenizer"
)

const basePrompt = "You are a helpful customer support assistant for a website. " +
	"Your role is to answer questions based on the provided documentation.\n\n"

const groundedInstructions = `Instructions:
1. Answer questions based primarily on the provided context
2. If the answer isn't in the context, politely say you don't have that information in the available documents
3. Be helpful, concise, and professional
4. When referencing information, mention which document and page it comes from
5. If asked about topics not covered in the documents, suggest contacting support for more help

`

const noContextInstructions = "I don't have any specific document context for this conversation. " +
	"Let the user know that you don't have access to relevant documentation for their question " +
	"and suggest they contact support directly. Do not answer from general knowledge.\n\n"

// SystemPrompt builds the grounding instruction. Passages are quoted
// verbatim under a "From {filename} (Page N):" label.
func SystemPrompt(passages []Passage) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	if len(passages) == 0 {
		sb.WriteString(noContextInstructions)
		return sb.String()
	}

	sb.WriteString("Use the following context from the uploaded documents to answer questions:\n\n")
	for _, p := range passages {
		fmt.Fprintf(&sb, "From %s (Page %d):\n%s\n\n", p.Filename, p.Page, p.Text)
	}
	sb.WriteString("\n")
	sb.WriteString(groundedInstructions)
	return sb.String()
}

// BuildMessages orders the completion input: system prompt, prior turns
// oldest first, then the current question.
func BuildMessages(passages []Passage, history []models.Message, question string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(passages)})
	for _, h := range history {
		role := llm.RoleAssistant
		if h.Type == models.MessageUser {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: h.Content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}

type Generator struct {
	gateway     llm.Gateway
	provider    string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
}

func NewGenerator(gw llm.Gateway, cfg config.LLMConfig, timeouts config.TimeoutConfig) *Generator {
	g := &Generator{
		gateway:     gw,
		provider:    cfg.DefaultProvider,
		model:       cfg.DefaultModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeouts.Completion,
	}
	if g.maxTokens <= 0 {
		g.maxTokens = 500
	}
	return g
}

func (g *Generator) Generate(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Provider:    g.provider,
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: &g.temperature,
	})
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("completion", string(apperr.KindOf(err))).Inc()
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, apperr.New(apperr.KindUpstream, "generate answer", "completion returned no content")
	}

	if resp.InputTokens == 0 && resp.OutputTokens == 0 {
		estimateUsage(resp, messages)
	}
	if resp.CostUSD == 0 {
		resp.CostUSD = llm.CalculateCost(resp.Model, resp.InputTokens, resp.OutputTokens)
	}
	metrics.LLMCostUSD.WithLabelValues(resp.Provider, resp.Model).Add(resp.CostUSD)
	slog.Info("completion generated",
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
	)
	return resp, nil
}

// estimateUsage fills in token counts for providers that report none.
func estimateUsage(resp *llm.ChatResponse, messages []llm.Message) {
	contents := make([]string, len(messages))
	for i, m := range messages {
		contents[i] = m.Content
	}
	resp.InputTokens = tokenizer.EstimateAll(contents...)
	resp.OutputTokens = tokenizer.Estimate(resp.Content)
}
