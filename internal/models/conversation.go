package models

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID           uuid.UUID `json:"id" db:"id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	UserID       *string   `json:"user_id,omitempty" db:"user_id"`
	UserIP       string    `json:"user_ip,omitempty" db:"user_ip"`
	UserAgent    string    `json:"user_agent,omitempty" db:"user_agent"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
	Status       string    `json:"status" db:"status"`
}

const (
	ConversationActive   = "active"
	ConversationEnded    = "ended"
	ConversationArchived = "archived"
)

type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	Type           string    `json:"type" db:"message_type"`
	Content        string    `json:"content" db:"content"`
	Sources        []Source  `json:"sources,omitempty" db:"sources"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
}

const (
	MessageUser      = "user"
	MessageAssistant = "assistant"
	MessageSystem    = "system"
)

// Source cites the document page a retrieved passage came from.
type Source struct {
	Filename  string  `json:"filename"`
	Page      int     `json:"page"`
	Relevance float64 `json:"relevance"`
}

type ConversationSummary struct {
	Conversation
	MessageCount int `json:"message_count" db:"message_count"`
}

type Stats struct {
	TotalConversations  int `json:"total_conversations"`
	ActiveConversations int `json:"active_conversations"`
	UserMessages        int `json:"user_messages"`
	ProcessedDocuments  int `json:"processed_documents"`
	TotalDocuments      int `json:"total_documents"`
}
