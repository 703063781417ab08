package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/models"
)

// ErrAlreadyProcessing is returned when a document is not in a state that
// allows a new processing run.
var ErrAlreadyProcessing = apperr.Conflict("process document", "document is already processing or processed")

// Repository persists document records. Status changes go through the
// dedicated transition methods so the lifecycle stays
// uploaded -> processing -> processed|failed.
type Repository interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, limit, offset int) ([]models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// BeginProcessing moves uploaded|failed to processing and reports
	// whether this caller won the transition.
	BeginProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	Fail(ctx context.Context, id uuid.UUID, message string, totalChunks int) error
	Complete(ctx context.Context, id uuid.UUID, totalChunks, processedChunks int) error
	SetMetadata(ctx context.Context, id uuid.UUID, metadata json.RawMessage) error
	// ResetForReprocess moves processed|failed back to uploaded.
	ResetForReprocess(ctx context.Context, id uuid.UUID) (bool, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}

const documentColumns = `id, filename, original_filename, file_path, file_size, status,
	total_chunks, processed_chunks, error_message, metadata, uploaded_at, updated_at`

type PgRepository struct {
	db *pgxpool.Pool
}

func NewPgRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.Filename, &d.OriginalFilename, &d.FilePath, &d.FileSize, &d.Status,
		&d.TotalChunks, &d.ProcessedChunks, &d.ErrorMessage, &d.Metadata, &d.UploadedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) Create(ctx context.Context, doc *models.Document) error {
	metadata := doc.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO documents (id, filename, original_filename, file_path, file_size, status, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+documentColumns,
		doc.ID, doc.Filename, doc.OriginalFilename, doc.FilePath, doc.FileSize, doc.Status, metadata,
	)
	created, err := scanDocument(row)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	*doc = *created
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("get document", "document not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (r *PgRepository) List(ctx context.Context, limit, offset int) ([]models.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY uploaded_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("delete document", "document not found")
	}
	return nil
}

func (r *PgRepository) BeginProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, error_message = NULL, updated_at = now()
		 WHERE id = $1 AND status IN ($3, $4)`,
		id, models.DocStatusProcessing, models.DocStatusUploaded, models.DocStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("begin processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) Fail(ctx context.Context, id uuid.UUID, message string, totalChunks int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, error_message = $3, total_chunks = $4, processed_chunks = 0, updated_at = now()
		 WHERE id = $1`,
		id, models.DocStatusFailed, message, totalChunks,
	)
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return nil
}

func (r *PgRepository) Complete(ctx context.Context, id uuid.UUID, totalChunks, processedChunks int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, total_chunks = $3, processed_chunks = $4, error_message = NULL, updated_at = now()
		 WHERE id = $1`,
		id, models.DocStatusProcessed, totalChunks, processedChunks,
	)
	if err != nil {
		return fmt.Errorf("mark document processed: %w", err)
	}
	return nil
}

func (r *PgRepository) SetMetadata(ctx context.Context, id uuid.UUID, metadata json.RawMessage) error {
	_, err := r.db.Exec(ctx,
		`UPDATE documents SET metadata = $2, updated_at = now() WHERE id = $1`, id, metadata)
	if err != nil {
		return fmt.Errorf("update document metadata: %w", err)
	}
	return nil
}

func (r *PgRepository) ResetForReprocess(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $2, error_message = NULL, updated_at = now()
		 WHERE id = $1 AND status IN ($3, $4)`,
		id, models.DocStatusUploaded, models.DocStatusProcessed, models.DocStatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("reset document: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, "SELECT status, COUNT(*) FROM documents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
