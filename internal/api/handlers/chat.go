package handlers

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfchat/internal/apperr"
	"github.com/nikhilbhutani/pdfchat/internal/auth"
	"github.com/nikhilbhutani/pdfchat/internal/chat"
	"github.com/nikhilbhutani/pdfchat/internal/conversation"
)

type ChatHandler struct {
	svc   *chat.Service
	store conversation.Store
}

func NewChatHandler(svc *chat.Service, store conversation.Store) *ChatHandler {
	return &ChatHandler{svc: svc, store: store}
}

type chatRequest struct {
	Message        string `json:"message"`
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func clientInfo(r *http.Request) conversation.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return conversation.ClientInfo{
		UserID:    auth.UserIDFromContext(r.Context()),
		IP:        ip,
		UserAgent: r.UserAgent(),
	}
}

// Send always answers with a chat response body; the status mirrors the
// outcome.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chat.Response{Message: "invalid request body"})
		return
	}

	resp := h.svc.HandleMessage(r.Context(), chat.Request{
		Message:        req.Message,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Client:         clientInfo(r),
	})

	status := http.StatusOK
	if !resp.Success {
		status = statusFor(resp.Kind)
	}
	writeJSON(w, status, resp)
}

// Conversation returns the session's conversation with its transcript.
func (h *ChatHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.GetBySession(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := h.store.Messages(r.Context(), conv.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation": conv, "messages": msgs})
}

type endRequest struct {
	SessionID string `json:"session_id"`
}

// End closes a conversation. The caller must present the owning session.
func (h *ChatHandler) End(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid conversation ID")
		return
	}
	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		badRequest(w, chat.MsgMissingSession)
		return
	}

	conv, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if conv.SessionID != req.SessionID {
		writeError(w, r, apperr.NotFound("end conversation", "conversation not found"))
		return
	}
	if err := h.store.End(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
