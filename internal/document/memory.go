package document

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/models"
)

// MemoryRepository is used when no database is configured and in tests.
type MemoryRepository struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: map[uuid.UUID]*models.Document{}, now: time.Now}
}

func (r *MemoryRepository) Create(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.docs {
		if d.Filename == doc.Filename {
			return apperr.Conflict("insert document", "filename already exists")
		}
	}
	now := r.now()
	doc.UploadedAt, doc.UpdatedAt = now, now
	if len(doc.Metadata) == 0 {
		doc.Metadata = json.RawMessage(`{}`)
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.docs[id]
	if !ok {
		return nil, apperr.NotFound("get document", "document not found")
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) List(_ context.Context, limit, offset int) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := make([]models.Document, 0, len(r.docs))
	for _, d := range r.docs {
		docs = append(docs, *d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UploadedAt.After(docs[j].UploadedAt) })

	if offset >= len(docs) {
		return []models.Document{}, nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[id]; !ok {
		return apperr.NotFound("delete document", "document not found")
	}
	delete(r.docs, id)
	return nil
}

// transition applies fn to the document under the lock if its status is one
// of from. It reports whether fn ran.
func (r *MemoryRepository) transition(id uuid.UUID, from []string, fn func(d *models.Document)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.docs[id]
	if !ok {
		return false, apperr.NotFound("update document", "document not found")
	}
	if from != nil {
		allowed := false
		for _, s := range from {
			if d.Status == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, nil
		}
	}
	fn(d)
	d.UpdatedAt = r.now()
	return true, nil
}

func (r *MemoryRepository) BeginProcessing(_ context.Context, id uuid.UUID) (bool, error) {
	return r.transition(id, []string{models.DocStatusUploaded, models.DocStatusFailed}, func(d *models.Document) {
		d.Status = models.DocStatusProcessing
		d.ErrorMessage = nil
	})
}

func (r *MemoryRepository) Fail(_ context.Context, id uuid.UUID, message string, totalChunks int) error {
	_, err := r.transition(id, nil, func(d *models.Document) {
		d.Status = models.DocStatusFailed
		d.ErrorMessage = &message
		d.TotalChunks = totalChunks
		d.ProcessedChunks = 0
	})
	return err
}

func (r *MemoryRepository) Complete(_ context.Context, id uuid.UUID, totalChunks, processedChunks int) error {
	_, err := r.transition(id, nil, func(d *models.Document) {
		d.Status = models.DocStatusProcessed
		d.TotalChunks = totalChunks
		d.ProcessedChunks = processedChunks
		d.ErrorMessage = nil
	})
	return err
}

func (r *MemoryRepository) SetMetadata(_ context.Context, id uuid.UUID, metadata json.RawMessage) error {
	_, err := r.transition(id, nil, func(d *models.Document) {
		d.Metadata = append(json.RawMessage(nil), metadata...)
	})
	return err
}

func (r *MemoryRepository) ResetForReprocess(_ context.Context, id uuid.UUID) (bool, error) {
	return r.transition(id, []string{models.DocStatusProcessed, models.DocStatusFailed}, func(d *models.Document) {
		d.Status = models.DocStatusUploaded
		d.ErrorMessage = nil
	})
}

func (r *MemoryRepository) CountByStatus(context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := map[string]int{}
	for _, d := range r.docs {
		counts[d.Status]++
	}
	return counts, nil
}
