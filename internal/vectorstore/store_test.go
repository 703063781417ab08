package vectorstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
)

func record(doc string, idx int, vec []float32) Record {
	return Record{
		ID:     RecordID(doc, idx),
		Values: vec,
		Metadata: Metadata{
			DocumentID: doc,
			Filename:   doc + ".pdf",
			Page:       idx + 1,
			ChunkIndex: idx,
			Text:       "chunk text",
			CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "abc_chunk_7", RecordID("abc", 7))
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("abc_chunk_1"), PointID("abc_chunk_1"))
	assert.NotEqual(t, PointID("abc_chunk_1"), PointID("abc_chunk_2"))
}

func TestChromem_UpsertOverwritesSameID(t *testing.T) {
	idx, err := NewChromemIndex("", "test")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Record{record("doc1", 0, []float32{1, 0}), record("doc1", 1, []float32{0, 1})}))
	require.NoError(t, idx.Upsert(ctx, []Record{record("doc1", 0, []float32{1, 0}), record("doc1", 1, []float32{0, 1})}))

	assert.Equal(t, 2, idx.Count())
}

func TestChromem_QueryReturnsScoresAndMetadata(t *testing.T) {
	idx, err := NewChromemIndex("", "test")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Record{
		record("doc1", 0, []float32{1, 0, 0}),
		record("doc2", 1, []float32{0, 1, 0}),
	}))

	matches, err := idx.Query(ctx, []float32{1, 0.1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "doc1_chunk_0", matches[0].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "doc1.pdf", matches[0].Metadata.Filename)
	assert.Equal(t, 1, matches[0].Metadata.Page)
	assert.Equal(t, "chunk text", matches[0].Metadata.Text)
	assert.Equal(t, 2024, matches[0].Metadata.CreatedAt.Year())
}

func TestChromem_EmptyIndexQuery(t *testing.T) {
	idx, err := NewChromemIndex("", "test")
	require.NoError(t, err)

	matches, err := idx.Query(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromem_DeleteByDocumentToleratesNoMatches(t *testing.T) {
	idx, err := NewChromemIndex("", "test")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.DeleteByDocument(ctx, "missing"))

	require.NoError(t, idx.Upsert(ctx, []Record{record("doc1", 0, []float32{1, 0}), record("doc2", 0, []float32{0, 1})}))
	require.NoError(t, idx.DeleteByDocument(ctx, "doc1"))
	assert.Equal(t, 1, idx.Count())
}

func TestPinecone_UpsertQueryDelete(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/vectors/upsert":
			vectors := body["vectors"].([]any)
			assert.Len(t, vectors, 1)
			md := vectors[0].(map[string]any)["metadata"].(map[string]any)
			assert.Equal(t, "doc1", md["document_id"])
			_, _ = w.Write([]byte(`{"upsertedCount":1}`))
		case "/query":
			assert.Equal(t, float64(5), body["topK"])
			assert.Equal(t, true, body["includeMetadata"])
			assert.Equal(t, false, body["includeValues"])
			assert.Nil(t, body["filter"])
			_, _ = w.Write([]byte(`{"matches":[{"id":"doc1_chunk_0","score":0.91,"metadata":{"document_id":"doc1","filename":"guide.pdf","page_number":3,"chunk_index":0,"text":"hello","created_at":"2024-05-01T12:00:00Z"}}]}`))
		case "/vectors/delete":
			assert.Equal(t, map[string]any{"document_id": map[string]any{"$eq": "doc1"}}, body["filter"])
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	idx := NewPineconeIndex(srv.URL, "secret", srv.Client())
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Record{record("doc1", 0, []float32{1, 2})}))

	matches, err := idx.Query(ctx, []float32{1, 2}, 5, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.91, matches[0].Score, 1e-9)
	assert.Equal(t, "guide.pdf", matches[0].Metadata.Filename)
	assert.Equal(t, 3, matches[0].Metadata.Page)

	require.NoError(t, idx.DeleteByDocument(ctx, "doc1"))
	assert.Equal(t, []string{"/vectors/upsert", "/query", "/vectors/delete"}, paths)
}

func TestPinecone_ErrorMessageExtracted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":3,"message":"Vector dimension 2 does not match the dimension of the index 1536"}`))
	}))
	defer srv.Close()

	idx := NewPineconeIndex(srv.URL, "secret", srv.Client())
	_, err := idx.Query(context.Background(), []float32{1, 2}, 5, &Filter{DocumentID: "doc1"})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Contains(t, apperr.Message(err), "does not match the dimension")
}

func TestPinecone_GenericErrorWithoutPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	idx := NewPineconeIndex(srv.URL, "secret", srv.Client())
	err := idx.DeleteByDocument(context.Background(), "doc1")

	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Contains(t, apperr.Message(err), "503")
}

func TestPinecone_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	idx := NewPineconeIndex(url, "secret", nil)
	err := idx.Upsert(context.Background(), []Record{record("doc1", 0, []float32{1})})
	assert.True(t, apperr.Is(err, apperr.KindTransport))
}

func timeoutsForTest(d time.Duration) config.TimeoutConfig {
	return config.TimeoutConfig{Short: d, Embed: d, EmbedBatch: d, Upsert: d, Completion: d}
}

func TestWithTimeouts_QueryDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	idx := WithTimeouts(NewPineconeIndex(srv.URL, "k", srv.Client()), timeoutsForTest(20*time.Millisecond))
	_, err := idx.Query(context.Background(), []float32{1}, 1, nil)
	assert.True(t, apperr.Is(err, apperr.KindTransport))
}
