package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Document struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	Filename         string          `json:"filename" db:"filename"`
	OriginalFilename string          `json:"original_filename" db:"original_filename"`
	FilePath         string          `json:"file_path,omitempty" db:"file_path"`
	FileSize         int64           `json:"file_size" db:"file_size"`
	Status           string          `json:"status" db:"status"`
	TotalChunks      int             `json:"total_chunks" db:"total_chunks"`
	ProcessedChunks  int             `json:"processed_chunks" db:"processed_chunks"`
	ErrorMessage     *string         `json:"error_message,omitempty" db:"error_message"`
	Metadata         json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	UploadedAt       time.Time       `json:"uploaded_at" db:"uploaded_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

const (
	DocStatusUploaded   = "uploaded"
	DocStatusProcessing = "processing"
	DocStatusProcessed  = "processed"
	DocStatusFailed     = "failed"
)
