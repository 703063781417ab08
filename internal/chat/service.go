// Package chat answers end-user questions from the indexed documents.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/conversation"
	"github.com/nikhilbhutani/pdfchat/internal/metrics"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/rag"
	"github.com/nikhilbhutani/pdfchat/internal/ratelimit"
)

// Messages returned to end users. They never carry upstream error text.
const (
	MsgRateLimited     = "Too many requests. Please wait before sending another message."
	MsgEmptyMessage    = "Message cannot be empty"
	MsgMissingSession  = "Session ID is required"
	MsgBadConversation = "Invalid conversation"
	MsgEmbedFailed     = "Failed to process your question"
	MsgSearchFailed    = "Failed to search documents"
	MsgGenerateFailed  = "Failed to generate response"
	MsgInternal        = "Sorry, something went wrong. Please try again."
)

// Stage is a step of request handling. A request moves through the stages
// in order and stops at Completed, Rejected or Failed.
type Stage string

const (
	StageReceived    Stage = "received"
	StageRateChecked Stage = "rate_checked"
	StageEmbedded    Stage = "embedded"
	StageRetrieved   Stage = "retrieved"
	StageFiltered    Stage = "filtered"
	StagePrompted    Stage = "prompted"
	StageCompleted   Stage = "completed"
	StageRejected    Stage = "rejected"
	StageFailed      Stage = "failed"
)

type Request struct {
	Message        string
	SessionID      string
	ConversationID string
	Client         conversation.ClientInfo
}

// Response is always well formed. A failed response serializes as
// {"success":false,"message":...} only.
type Response struct {
	Success        bool            `json:"success"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	UserMessageID  uuid.UUID       `json:"user_message_id"`
	AIMessageID    uuid.UUID       `json:"ai_message_id"`
	AIResponse     string          `json:"ai_response"`
	Sources        []models.Source `json:"sources"`
	Timestamp      time.Time       `json:"timestamp"`
	Message        string          `json:"message,omitempty"`

	Stage Stage       `json:"-"`
	Kind  apperr.Kind `json:"-"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}{false, r.Message})
	}
	type plain Response
	if r.Sources == nil {
		r.Sources = []models.Source{}
	}
	return json.Marshal(plain(r))
}

type Service struct {
	store        conversation.Store
	limiter      ratelimit.Limiter
	retriever    *rag.Retriever
	generator    *rag.Generator
	historyLimit int
}

func NewService(store conversation.Store, limiter ratelimit.Limiter, retriever *rag.Retriever, generator *rag.Generator, historyLimit int) *Service {
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &Service{
		store:        store,
		limiter:      limiter,
		retriever:    retriever,
		generator:    generator,
		historyLimit: historyLimit,
	}
}

func (s *Service) HandleMessage(ctx context.Context, req Request) *Response {
	start := time.Now()
	resp := s.handle(ctx, req)
	metrics.ChatRequests.WithLabelValues(outcome(resp)).Inc()
	metrics.ChatDuration.Observe(time.Since(start).Seconds())
	return resp
}

func outcome(r *Response) string {
	switch {
	case r.Stage == StageCompleted:
		return "completed"
	case r.Stage == StageRejected:
		return "rejected"
	case r.Kind == apperr.KindValidation:
		return "invalid"
	default:
		return "failed"
	}
}

func failure(kind apperr.Kind, msg string) *Response {
	return &Response{Message: msg, Stage: StageFailed, Kind: kind}
}

func (s *Service) handle(ctx context.Context, req Request) *Response {
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return failure(apperr.KindValidation, MsgEmptyMessage)
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return failure(apperr.KindValidation, MsgMissingSession)
	}

	key := ratelimit.Key(req.Client.UserID, req.Client.IP)
	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// An unavailable limiter must not take chat down with it.
		slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
		allowed = true
	}
	if !allowed {
		return &Response{Message: MsgRateLimited, Stage: StageRejected, Kind: apperr.KindRateLimit}
	}

	conv, err := s.resolveConversation(ctx, sessionID, req)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return failure(apperr.KindValidation, MsgBadConversation)
		}
		slog.Error("resolve conversation failed", "session_id", sessionID, "error", err)
		return failure(apperr.KindOf(err), MsgInternal)
	}

	userMsg := &models.Message{ConversationID: conv.ID, Type: models.MessageUser, Content: question}
	if err := s.store.AddMessage(ctx, userMsg); err != nil {
		slog.Error("store user message failed", "conversation_id", conv.ID, "error", err)
		return failure(apperr.KindOf(err), MsgInternal)
	}

	log := slog.With("conversation_id", conv.ID, "user_message_id", userMsg.ID)
	fail := func(stage Stage, msg string, err error) *Response {
		log.Error("chat request failed", "stage", stage, "error", err)
		return failure(apperr.KindOf(err), msg)
	}

	vec, err := s.retriever.EmbedQuery(ctx, question)
	if err != nil {
		return fail(StageRateChecked, MsgEmbedFailed, err)
	}

	retrieval, err := s.retriever.Search(ctx, vec)
	if err != nil {
		return fail(StageEmbedded, MsgSearchFailed, err)
	}

	history, err := s.store.History(ctx, conv.ID, userMsg.ID, s.historyLimit)
	if err != nil {
		return fail(StageFiltered, MsgInternal, err)
	}
	messages := rag.BuildMessages(retrieval.Passages, history, question)

	completion, err := s.generator.Generate(ctx, messages)
	if err != nil {
		return fail(StagePrompted, MsgGenerateFailed, err)
	}

	aiMsg := &models.Message{
		ConversationID: conv.ID,
		Type:           models.MessageAssistant,
		Content:        completion.Content,
		Sources:        retrieval.Sources,
	}
	if err := s.store.AddMessage(ctx, aiMsg); err != nil {
		return fail(StagePrompted, MsgInternal, err)
	}

	log.Info("chat request completed",
		"passages", len(retrieval.Passages),
		"sources", len(retrieval.Sources),
		"history", len(history),
		"model", completion.Model,
	)
	return &Response{
		Success:        true,
		ConversationID: conv.ID,
		UserMessageID:  userMsg.ID,
		AIMessageID:    aiMsg.ID,
		AIResponse:     completion.Content,
		Sources:        retrieval.Sources,
		Timestamp:      aiMsg.Timestamp,
		Stage:          StageCompleted,
	}
}

// resolveConversation reuses the given conversation when it belongs to the
// session and otherwise finds or creates the session's conversation.
func (s *Service) resolveConversation(ctx context.Context, sessionID string, req Request) (*models.Conversation, error) {
	if req.ConversationID == "" {
		return s.store.GetOrCreate(ctx, sessionID, req.Client)
	}

	id, err := uuid.Parse(req.ConversationID)
	if err != nil {
		return nil, apperr.Validation("resolve conversation", "malformed conversation id")
	}
	conv, err := s.store.Get(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Validation("resolve conversation", "unknown conversation id")
	}
	if err != nil {
		return nil, err
	}
	if conv.SessionID != sessionID {
		return nil, apperr.Validation("resolve conversation", "conversation belongs to another session")
	}
	return conv, nil
}
