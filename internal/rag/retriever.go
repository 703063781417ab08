package rag

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/embedding"
	"github.com/nikhilbhutani/pdfchat/internal/metrics"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/vectorstore"
)

// Passage is a retrieved chunk that cleared the similarity threshold.
type Passage struct {
	DocumentID string
	Filename   string
	Page       int
	Text       string
	Score      float64
}

type Retrieval struct {
	Passages []Passage
	Sources  []models.Source
}

// Retriever embeds a question and looks it up across every indexed
// document.
type Retriever struct {
	embedder  embedding.Embedder
	index     vectorstore.Index
	topK      int
	threshold float64
}

func NewRetriever(embedder embedding.Embedder, index vectorstore.Index, cfg config.ChatConfig) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{embedder: embedder, index: index, topK: topK, threshold: cfg.SimilarityThreshold}
}

func (r *Retriever) EmbedQuery(ctx context.Context, question string) ([]float32, error) {
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// Search queries the index and keeps matches scoring at least the threshold.
func (r *Retriever) Search(ctx context.Context, vector []float32) (*Retrieval, error) {
	matches, err := r.index.Query(ctx, vector, r.topK, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	res := FilterMatches(matches, r.threshold)
	metrics.RetrievedSources.Observe(float64(len(res.Sources)))
	return res, nil
}

// FilterMatches drops matches below threshold. Every remaining match becomes
// a passage; sources are unique per (filename, page) in first-seen order and
// carry the highest score seen for that page.
func FilterMatches(matches []vectorstore.Match, threshold float64) *Retrieval {
	res := &Retrieval{Passages: []Passage{}, Sources: []models.Source{}}
	seen := map[string]int{}

	for _, m := range matches {
		if m.Score < threshold {
			continue
		}
		md := m.Metadata
		res.Passages = append(res.Passages, Passage{
			DocumentID: md.DocumentID,
			Filename:   md.Filename,
			Page:       md.Page,
			Text:       md.Text,
			Score:      m.Score,
		})

		key := fmt.Sprintf("%s_%d", md.Filename, md.Page)
		if i, ok := seen[key]; ok {
			if m.Score > res.Sources[i].Relevance {
				res.Sources[i].Relevance = m.Score
			}
			continue
		}
		seen[key] = len(res.Sources)
		res.Sources = append(res.Sources, models.Source{Filename: md.Filename, Page: md.Page, Relevance: m.Score})
	}
	return res
}
