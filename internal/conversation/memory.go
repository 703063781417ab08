package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/models"
)

// MemoryStore keeps conversations in process. It backs development runs
// without a database and the chat tests.
type MemoryStore struct {
	mu        sync.Mutex
	convs     map[uuid.UUID]*models.Conversation
	bySession map[string]uuid.UUID
	messages  map[uuid.UUID][]models.Message
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		convs:     map[uuid.UUID]*models.Conversation{},
		bySession: map[string]uuid.UUID{},
		messages:  map[uuid.UUID][]models.Message{},
		now:       now,
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID string, client ClientInfo) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.bySession[sessionID]; ok {
		cp := *s.convs[id]
		return &cp, nil
	}
	now := s.now()
	c := &models.Conversation{
		ID:           uuid.New(),
		SessionID:    sessionID,
		UserID:       client.UserID,
		UserIP:       client.IP,
		UserAgent:    client.UserAgent,
		StartedAt:    now,
		LastActivity: now,
		Status:       models.ConversationActive,
	}
	s.convs[c.ID] = c
	s.bySession[sessionID] = c.ID
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return nil, apperr.NotFound("get conversation", "conversation not found")
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetBySession(ctx context.Context, sessionID string) (*models.Conversation, error) {
	s.mu.Lock()
	id, ok := s.bySession[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("get conversation by session", "conversation not found")
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) End(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return apperr.NotFound("end conversation", "conversation not found")
	}
	c.Status = models.ConversationEnded
	return nil
}

func (s *MemoryStore) ArchiveIdle(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.convs {
		if c.Status != models.ConversationArchived && c.LastActivity.Before(cutoff) {
			c.Status = models.ConversationArchived
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) AddMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[msg.ConversationID]
	if !ok {
		return apperr.NotFound("insert message", "conversation not found")
	}
	msg.ID = uuid.New()
	msg.Timestamp = s.now()
	s.messages[c.ID] = append(s.messages[c.ID], *msg)

	c.LastActivity = msg.Timestamp
	c.Status = models.ConversationActive
	return nil
}

// ordered returns a copy of the conversation's messages sorted by timestamp.
// The stable sort keeps insertion order for equal timestamps.
func (s *MemoryStore) ordered(conversationID uuid.UUID) []models.Message {
	msgs := append([]models.Message(nil), s.messages[conversationID]...)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	return msgs
}

func (s *MemoryStore) History(_ context.Context, conversationID, excludeID uuid.UUID, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []models.Message
	for _, m := range s.ordered(conversationID) {
		if m.ID != excludeID {
			msgs = append(msgs, m)
		}
	}
	if limit <= 0 {
		return []models.Message{}, nil
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func (s *MemoryStore) Messages(_ context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ordered(conversationID), nil
}

func (s *MemoryStore) Stats(context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Total: len(s.convs)}
	for id, c := range s.convs {
		if c.Status == models.ConversationActive {
			st.Active++
		}
		for _, m := range s.messages[id] {
			if m.Type == models.MessageUser {
				st.UserMessages++
			}
		}
	}
	return st, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]models.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ConversationSummary, 0, len(s.convs))
	for id, c := range s.convs {
		out = append(out, models.ConversationSummary{Conversation: *c, MessageCount: len(s.messages[id])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
