// Package admin exposes knowledge ingestion and conversation browsing to the
// back-office.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	knowledgex "github.com/tanpawarit/chative-fintech-support/pkg/knowledge"
)

const (
	HeaderSecret = "X-Admin-Secret"

	maxBatchURLs      = 50
	defaultThreadList = 50
	maxThreadList     = 200
	maxMessageList    = 500
)

type Knowledge interface {
	Crawl(ctx context.Context, rawURL string) ([]string, error)
	Ingest(ctx context.Context, rawURL string) (knowledgex.IngestResult, error)
	IngestBatch(ctx context.Context, urls []string) ([]knowledgex.IngestResult, error)
}

var _ Knowledge = (*knowledgex.Service)(nil)

type Handler struct {
	knowledge Knowledge
	memory    contractx.MemoryStore
	secret    string
}

// NewHandler returns the admin routes. An empty secret leaves them open,
// which is only acceptable in development.
func NewHandler(knowledge Knowledge, memory contractx.MemoryStore, secret string) *Handler {
	if strings.TrimSpace(secret) == "" {
		log.Warn().Msg("admin secret not set, admin endpoints are unauthenticated")
	}
	return &Handler{knowledge: knowledge, memory: memory, secret: strings.TrimSpace(secret)}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/api", h.requireSecret)
	g.POST("/crawl", h.Crawl)
	g.POST("/ingest", h.Ingest)
	g.POST("/ingest/batch", h.IngestBatch)
	g.GET("/admin/threads", h.Threads)
	g.GET("/admin/threads/:id/messages", h.Messages)
}

func (h *Handler) requireSecret(c *gin.Context) {
	if h.secret == "" {
		c.Next()
		return
	}
	got := c.GetHeader(HeaderSecret)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

type urlRequest struct {
	URL string `json:"url" binding:"required"`
}

type batchRequest struct {
	URLs []string `json:"urls" binding:"required,min=1,dive,required"`
}

func (h *Handler) Crawl(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL manquante"})
		return
	}
	if h.knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": knowledgex.ErrNotConfigured.Error()})
		return
	}

	urls, err := h.knowledge.Crawl(c.Request.Context(), req.URL)
	if err != nil {
		respondError(c, "crawl", req.URL, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

func (h *Handler) Ingest(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL manquante"})
		return
	}
	if h.knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": knowledgex.ErrNotConfigured.Error()})
		return
	}

	res, err := h.knowledge.Ingest(c.Request.Context(), req.URL)
	if err != nil {
		respondError(c, "ingest", req.URL, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": res.URL, "chars": res.Chars})
}

func (h *Handler) IngestBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "liste d'URL manquante"})
		return
	}
	if len(req.URLs) > maxBatchURLs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trop d'URL (maximum " + strconv.Itoa(maxBatchURLs) + ")"})
		return
	}
	if h.knowledge == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": knowledgex.ErrNotConfigured.Error()})
		return
	}

	results, err := h.knowledge.IngestBatch(c.Request.Context(), req.URLs)
	if err != nil {
		respondError(c, "ingest batch", "", err)
		return
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "ingested": len(results) - failed, "failed": failed})
}

func (h *Handler) Threads(c *gin.Context) {
	if h.memory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "memory store not configured"})
		return
	}
	threads, err := h.memory.ListThreads(c.Request.Context(), limitParam(c, defaultThreadList, maxThreadList))
	if err != nil {
		log.Error().Err(err).Msg("list threads failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if threads == nil {
		threads = []contractx.Thread{}
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (h *Handler) Messages(c *gin.Context) {
	if h.memory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "memory store not configured"})
		return
	}
	threadID := strings.TrimSpace(c.Param("id"))
	msgs, err := h.memory.LoadHistory(c.Request.Context(), threadID, "", limitParam(c, maxMessageList, maxMessageList))
	if err != nil {
		log.Error().Err(err).Str("thread_id", threadID).Msg("load thread messages failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if msgs == nil {
		msgs = []contractx.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"threadId": threadID, "messages": msgs})
}

func limitParam(c *gin.Context, def, maxLimit int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxLimit)
}

func respondError(c *gin.Context, op, url string, err error) {
	switch {
	case errors.Is(err, knowledgex.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL invalide"})
	case errors.Is(err, knowledgex.ErrContentTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": knowledgex.ErrContentTooShort.Error()})
	case errors.Is(err, knowledgex.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": knowledgex.ErrNotConfigured.Error()})
	default:
		log.Error().Err(err).Str("op", op).Str("url", url).Msg("admin operation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "impossible de traiter " + op})
	}
}
