package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
)

// PineconeIndex talks to a Pinecone-style index over its REST data plane.
type PineconeIndex struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

func NewPineconeIndex(host, apiKey string, httpClient *http.Client) *PineconeIndex {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &PineconeIndex{
		host:       strings.TrimRight(host, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeQueryReq struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	IncludeMetadata bool           `json:"includeMetadata"`
	IncludeValues   bool           `json:"includeValues"`
	Filter          map[string]any `json:"filter,omitempty"`
}

type pineconeQueryResp struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

func (p *PineconeIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]pineconeVector, len(records))
	for i, r := range records {
		vectors[i] = pineconeVector{ID: r.ID, Values: r.Values, Metadata: metadataMap(r.Metadata)}
	}
	return p.do(ctx, "pinecone upsert", "/vectors/upsert", map[string]any{"vectors": vectors}, nil)
}

func (p *PineconeIndex) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Match, error) {
	req := pineconeQueryReq{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	}
	if filter != nil && filter.DocumentID != "" {
		req.Filter = documentFilter(filter.DocumentID)
	}

	var resp pineconeQueryResp
	if err := p.do(ctx, "pinecone query", "/query", req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, len(resp.Matches))
	for i, m := range resp.Matches {
		matches[i] = Match{ID: m.ID, Score: m.Score, Metadata: metadataFromMap(m.Metadata)}
	}
	return matches, nil
}

func (p *PineconeIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	return p.do(ctx, "pinecone delete", "/vectors/delete", map[string]any{"filter": documentFilter(documentID)}, nil)
}

func (p *PineconeIndex) Ping(ctx context.Context) error {
	return p.do(ctx, "pinecone stats", "/describe_index_stats", map[string]any{}, nil)
}

func documentFilter(documentID string) map[string]any {
	return map[string]any{"document_id": map[string]any{"$eq": documentID}}
}

func (p *PineconeIndex) do(ctx context.Context, op, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Api-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload struct {
			Message string `json:"message"`
		}
		msg := fmt.Sprintf("vector index returned status %d", resp.StatusCode)
		if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
			msg = payload.Message
		}
		return apperr.New(apperr.KindUpstream, op, msg)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindUpstream, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func metadataMap(m Metadata) map[string]any {
	return map[string]any{
		"document_id": m.DocumentID,
		"filename":    m.Filename,
		"page_number": m.Page,
		"chunk_index": m.ChunkIndex,
		"text":        m.Text,
		"created_at":  m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func metadataFromMap(raw map[string]any) Metadata {
	var m Metadata
	m.DocumentID, _ = raw["document_id"].(string)
	m.Filename, _ = raw["filename"].(string)
	m.Text, _ = raw["text"].(string)
	m.Page = toInt(raw["page_number"])
	m.ChunkIndex = toInt(raw["chunk_index"])
	if s, ok := raw["created_at"].(string); ok {
		m.CreatedAt, _ = time.Parse(time.RFC3339, s)
	}
	return m
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		var i int
		fmt.Sscan(n, &i)
		return i
	}
	return 0
}
