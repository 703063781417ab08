package document

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/storage"
	"github.com/nikhilbhutani/pdfchat/internal/vectorstore"
)

type recordingTrigger struct {
	ids []uuid.UUID
	err error
}

func (r *recordingTrigger) TriggerProcessing(_ context.Context, id uuid.UUID) error {
	r.ids = append(r.ids, id)
	return r.err
}

var minimalPDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF")

func newTestService(t *testing.T, trigger Trigger) (*Service, *MemoryRepository, *vectorstore.ChromemIndex) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	idx, err := vectorstore.NewChromemIndex("", "test")
	require.NoError(t, err)
	repo := NewMemoryRepository()
	svc := NewService(repo, store, idx, trigger, config.StorageConfig{Bucket: "documents", MaxFileSize: 1024})
	return svc, repo, idx
}

func TestUpload_StoresAndTriggers(t *testing.T) {
	trigger := &recordingTrigger{}
	svc, _, _ := newTestService(t, trigger)

	doc, err := svc.Upload(context.Background(), UploadRequest{
		Filename: "User Guide.pdf",
		Size:     int64(len(minimalPDF)),
		Data:     bytes.NewReader(minimalPDF),
	})
	require.NoError(t, err)

	assert.Equal(t, models.DocStatusUploaded, doc.Status)
	assert.Equal(t, "User Guide.pdf", doc.OriginalFilename)
	assert.True(t, strings.HasSuffix(doc.Filename, "_User-Guide.pdf"), doc.Filename)
	assert.Equal(t, int64(len(minimalPDF)), doc.FileSize)
	assert.Equal(t, []uuid.UUID{doc.ID}, trigger.ids)

	rc, err := svc.storage.Download(context.Background(), "documents", doc.FilePath)
	require.NoError(t, err)
	defer rc.Close()
}

func TestUpload_Validation(t *testing.T) {
	svc, repo, _ := newTestService(t, &recordingTrigger{})

	tests := []struct {
		name string
		req  UploadRequest
	}{
		{"wrong extension", UploadRequest{Filename: "notes.txt", Data: bytes.NewReader(minimalPDF)}},
		{"declared too large", UploadRequest{Filename: "a.pdf", Size: 4096, Data: bytes.NewReader(minimalPDF)}},
		{"actually too large", UploadRequest{Filename: "a.pdf", Data: bytes.NewReader(append(minimalPDF, make([]byte, 2048)...))}},
		{"not a pdf", UploadRequest{Filename: "a.pdf", Data: strings.NewReader("hello world")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}

	docs, err := repo.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUpload_TriggerFailureMarksFailed(t *testing.T) {
	svc, _, _ := newTestService(t, &recordingTrigger{err: errors.New("redis down")})

	doc, err := svc.Upload(context.Background(), UploadRequest{Filename: "a.pdf", Data: bytes.NewReader(minimalPDF)})
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	require.NotNil(t, doc.ErrorMessage)
}

func TestBeginProcessing_IsSingleFlight(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	doc := &models.Document{ID: uuid.New(), Filename: "a.pdf", Status: models.DocStatusUploaded}
	require.NoError(t, repo.Create(ctx, doc))

	won, err := repo.BeginProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.BeginProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, repo.Fail(ctx, doc.ID, "boom", 0))
	won, err = repo.BeginProcessing(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, won, "failed documents may be retried")
}

func TestDelete_RemovesVectorsWhenProcessed(t *testing.T) {
	trigger := &recordingTrigger{}
	svc, repo, idx := newTestService(t, trigger)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, UploadRequest{Filename: "a.pdf", Data: bytes.NewReader(minimalPDF)})
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, doc.ID, 1, 1))
	require.NoError(t, idx.Upsert(ctx, []vectorstore.Record{{
		ID:       vectorstore.RecordID(doc.ID.String(), 0),
		Values:   []float32{1, 0},
		Metadata: vectorstore.Metadata{DocumentID: doc.ID.String(), Filename: "a.pdf", Page: 1, Text: "x"},
	}}))

	require.NoError(t, svc.Delete(ctx, doc.ID))
	assert.Equal(t, 0, idx.Count())

	_, err = svc.Get(ctx, doc.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDelete_RemovesVectorsOfFailedDocument(t *testing.T) {
	svc, repo, idx := newTestService(t, &recordingTrigger{})
	ctx := context.Background()

	doc, err := svc.Upload(ctx, UploadRequest{Filename: "a.pdf", Data: bytes.NewReader(minimalPDF)})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, []vectorstore.Record{{
		ID:       vectorstore.RecordID(doc.ID.String(), 0),
		Values:   []float32{1, 0},
		Metadata: vectorstore.Metadata{DocumentID: doc.ID.String(), Filename: "a.pdf", Page: 1, Text: "x"},
	}}))
	require.NoError(t, repo.Fail(ctx, doc.ID, "Failed to extract text from PDF", 0))

	require.NoError(t, svc.Delete(ctx, doc.ID))
	assert.Equal(t, 0, idx.Count())
}

func TestDelete_RejectsWhileProcessing(t *testing.T) {
	svc, repo, _ := newTestService(t, &recordingTrigger{})
	ctx := context.Background()

	doc, err := svc.Upload(ctx, UploadRequest{Filename: "a.pdf", Data: bytes.NewReader(minimalPDF)})
	require.NoError(t, err)
	_, err = repo.BeginProcessing(ctx, doc.ID)
	require.NoError(t, err)

	err = svc.Delete(ctx, doc.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestReprocess(t *testing.T) {
	trigger := &recordingTrigger{}
	svc, repo, _ := newTestService(t, trigger)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, UploadRequest{Filename: "a.pdf", Data: bytes.NewReader(minimalPDF)})
	require.NoError(t, err)

	_, err = svc.Reprocess(ctx, doc.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "uploaded documents are not reprocessable")

	require.NoError(t, repo.Complete(ctx, doc.ID, 3, 3))
	got, err := svc.Reprocess(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusUploaded, got.Status)
	assert.Len(t, trigger.ids, 2)
}

func TestNewExtractor(t *testing.T) {
	for _, kind := range []string{"", ExtractorLibrary, ExtractorPDFToText, ExtractorRegex} {
		ex, err := NewExtractor(kind)
		require.NoError(t, err)
		assert.NotEmpty(t, ex.Name())
	}
	_, err := NewExtractor("ocr")
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

func TestLibraryExtractor_RejectsNonPDF(t *testing.T) {
	ex, err := NewExtractor(ExtractorLibrary)
	require.NoError(t, err)
	_, err = ex.Extract(context.Background(), []byte("plain text"))
	assert.Error(t, err)
}
