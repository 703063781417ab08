package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/storage"
	"github.com/nikhilbhutani/pdfchat/internal/vectorstore"
	"github.com/nikhilbhutani/pdfchat/pkg/textextract"
)

// Trigger schedules a processing run for an uploaded document.
type Trigger interface {
	TriggerProcessing(ctx context.Context, documentID uuid.UUID) error
}

type Service struct {
	repo    Repository
	storage storage.Storage
	index   vectorstore.Index
	trigger Trigger
	bucket  string
	maxSize int64
}

func NewService(repo Repository, store storage.Storage, index vectorstore.Index, trigger Trigger, cfg config.StorageConfig) *Service {
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &Service{
		repo:    repo,
		storage: store,
		index:   index,
		trigger: trigger,
		bucket:  cfg.Bucket,
		maxSize: maxSize,
	}
}

type UploadRequest struct {
	Filename string
	Size     int64
	Data     io.Reader
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// storedName keeps the original base name readable while making it unique.
func storedName(id uuid.UUID, original string) string {
	base := unsafeChars.ReplaceAllString(filepath.Base(original), "-")
	base = strings.Trim(base, "-.")
	if base == "" {
		base = "document.pdf"
	}
	return id.String()[:8] + "_" + base
}

func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.Document, error) {
	if !strings.EqualFold(filepath.Ext(req.Filename), ".pdf") {
		return nil, apperr.Validation("upload document", "Invalid file type. Only PDF files are allowed.")
	}
	if req.Size > s.maxSize {
		return nil, s.tooLarge()
	}

	data, err := io.ReadAll(io.LimitReader(req.Data, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, s.tooLarge()
	}
	if !textextract.IsPDF(data) {
		return nil, apperr.Validation("upload document", "Invalid file type. Only PDF files are allowed.")
	}

	id := uuid.New()
	name := storedName(id, req.Filename)
	path := id.String() + "/" + name

	if err := s.storage.Upload(ctx, s.bucket, path, bytes.NewReader(data), "application/pdf"); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	doc := &models.Document{
		ID:               id,
		Filename:         name,
		OriginalFilename: filepath.Base(req.Filename),
		FilePath:         path,
		FileSize:         int64(len(data)),
		Status:           models.DocStatusUploaded,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), s.bucket, path); delErr != nil {
			slog.Warn("failed to remove orphaned upload", "path", path, "error", delErr)
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	slog.Info("document uploaded", "document_id", id, "filename", doc.OriginalFilename, "size", doc.FileSize)

	if err := s.schedule(ctx, id); err != nil {
		return s.repo.Get(ctx, id)
	}
	return doc, nil
}

// schedule triggers processing. On failure the document is marked failed so
// it can be picked up again through Reprocess.
func (s *Service) schedule(ctx context.Context, id uuid.UUID) error {
	err := s.trigger.TriggerProcessing(ctx, id)
	if err == nil {
		return nil
	}
	slog.Error("failed to schedule document processing", "document_id", id, "error", err)
	if ferr := s.repo.Fail(context.WithoutCancel(ctx), id, "failed to schedule processing", 0); ferr != nil {
		slog.Error("failed to record scheduling failure", "document_id", id, "error", ferr)
	}
	return err
}

func (s *Service) tooLarge() error {
	return apperr.Validation("upload document",
		fmt.Sprintf("File size exceeds maximum allowed size of %d MB", s.maxSize>>20))
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Delete removes the document's vectors, stored file and record, in that
// order. Documents being processed cannot be deleted.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == models.DocStatusProcessing {
		return apperr.Conflict("delete document", "document is being processed")
	}

	// Failed runs may still have upserted records, so always clear them.
	if err := s.index.DeleteByDocument(ctx, id.String()); err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	if err := s.storage.Delete(ctx, s.bucket, doc.FilePath); err != nil {
		slog.Warn("failed to delete stored file", "document_id", id, "path", doc.FilePath, "error", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	slog.Info("document deleted", "document_id", id)
	return nil
}

// Reprocess resets a processed or failed document and schedules a new run.
// The run clears the document's previous vectors before indexing.
func (s *Service) Reprocess(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	ok, err := s.repo.ResetForReprocess(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("reprocess document", "only processed or failed documents can be reprocessed")
	}
	if err := s.schedule(ctx, id); err != nil {
		return nil, fmt.Errorf("schedule processing: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Counts reports documents per status.
func (s *Service) Counts(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByStatus(ctx)
}
