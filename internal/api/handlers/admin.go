package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfchat/internal/cache"
	"github.com/nikhilbhutani/pdfchat/internal/conversation"
	"github.com/nikhilbhutani/pdfchat/internal/document"
	"github.com/nikhilbhutani/pdfchat/internal/models"
)

const statsTTL = 30 * time.Second

type AdminHandler struct {
	conversations conversation.Store
	documents     *document.Service
	cache         *cache.Cache
}

// NewAdminHandler takes an optional cache for the stats query.
func NewAdminHandler(conversations conversation.Store, documents *document.Service, c *cache.Cache) *AdminHandler {
	return &AdminHandler{conversations: conversations, documents: documents, cache: c}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := cache.GetOrLoad(r.Context(), h.cache, "admin:stats", statsTTL, h.loadStats)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) loadStats(ctx context.Context) (models.Stats, error) {
	conv, err := h.conversations.Stats(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	counts, err := h.documents.Counts(ctx)
	if err != nil {
		return models.Stats{}, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return models.Stats{
		TotalConversations:  conv.Total,
		ActiveConversations: conv.Active,
		UserMessages:        conv.UserMessages,
		ProcessedDocuments:  counts[models.DocStatusProcessed],
		TotalDocuments:      total,
	}, nil
}

func (h *AdminHandler) RecentConversations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	convs, err := h.conversations.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": convs, "count": len(convs)})
}

func (h *AdminHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid conversation ID")
		return
	}

	conv, err := h.conversations.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := h.conversations.Messages(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation": conv, "messages": msgs})
}

func (h *AdminHandler) EndConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid conversation ID")
		return
	}
	if err := h.conversations.End(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}
