// Package conversation persists chat sessions and their message history.
package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfchat/internal/models"
)

// ClientInfo identifies who started a conversation.
type ClientInfo struct {
	UserID    *string
	IP        string
	UserAgent string
}

// Store is implemented by PgStore and MemoryStore.
//
// Messages are immutable once added and are ordered by timestamp, ties broken
// by insertion order. Adding a message bumps the conversation's
// last_activity and marks it active again.
type Store interface {
	// GetOrCreate returns the conversation for sessionID, creating an
	// active one on first use.
	GetOrCreate(ctx context.Context, sessionID string, client ClientInfo) (*models.Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetBySession(ctx context.Context, sessionID string) (*models.Conversation, error)
	End(ctx context.Context, id uuid.UUID) error
	// ArchiveIdle archives active or ended conversations whose last
	// activity is before cutoff and returns how many changed.
	ArchiveIdle(ctx context.Context, cutoff time.Time) (int, error)

	// AddMessage assigns msg.ID and msg.Timestamp.
	AddMessage(ctx context.Context, msg *models.Message) error
	// History returns up to limit most recent messages other than
	// excludeID, oldest first.
	History(ctx context.Context, conversationID, excludeID uuid.UUID, limit int) ([]models.Message, error)
	Messages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)

	Stats(ctx context.Context) (Stats, error)
	ListRecent(ctx context.Context, limit int) ([]models.ConversationSummary, error)
}

type Stats struct {
	Total        int
	Active       int
	UserMessages int
}
