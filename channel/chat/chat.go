// Package chat serves the streaming web chat endpoint.
package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	orchestratorx "github.com/tanpawarit/chative-fintech-support/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

const (
	HeaderIntent   = "X-Agent-Intent"
	HeaderThreadID = "X-Thread-Id"

	// historyLimit caps the client-supplied history kept for triage.
	historyLimit = 10

	apologyText        = "Désolé, une erreur est survenue. Veuillez réessayer dans quelques instants."
	notConfiguredText  = "L'assistant n'est pas disponible pour le moment."
	invalidRequestText = "Requête invalide : au moins un message ou une pièce jointe est requis."
	timeoutText        = "La réponse a pris trop de temps. Veuillez réessayer."
	forbiddenText      = "Cette conversation n'est pas accessible. Démarrez une nouvelle conversation."
)

type Streamer interface {
	StreamMessage(ctx context.Context, req contractx.TurnRequest) (*orchestratorx.TurnStream, error)
}

type Handler struct {
	turns Streamer
}

// NewHandler returns a handler answering 503 when turns is nil.
func NewHandler(turns Streamer) *Handler {
	return &Handler{turns: turns}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/api/chat", h.Chat)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages   []chatMessage         `json:"messages"`
	ThreadID   string                `json:"threadId"`
	Attachment *contractx.Attachment `json:"attachment"`
}

func (h *Handler) Chat(c *gin.Context) {
	if h.turns == nil {
		c.String(http.StatusServiceUnavailable, notConfiguredText)
		return
	}

	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.String(http.StatusBadRequest, invalidRequestText)
		return
	}
	req, ok := toTurnRequest(body)
	if !ok {
		c.String(http.StatusBadRequest, invalidRequestText)
		return
	}

	ctx := c.Request.Context()
	stream, err := h.turns.StreamMessage(ctx, req)
	if err != nil {
		status, text := failure(ctx, err)
		c.String(status, text)
		return
	}
	defer stream.Close()

	c.Header(HeaderIntent, string(stream.Intent))
	c.Header(HeaderThreadID, stream.ThreadID)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	wrote := false
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Error().Err(err).Str("thread_id", stream.ThreadID).Msg("chat stream interrupted")
			if !wrote && ctx.Err() == nil {
				_, _ = c.Writer.WriteString(apologyText)
				c.Writer.Flush()
			}
			return
		}
		if chunk == "" {
			continue
		}
		if _, err := c.Writer.WriteString(chunk); err != nil {
			log.Debug().Err(err).Str("thread_id", stream.ThreadID).Msg("chat client went away")
			return
		}
		c.Writer.Flush()
		wrote = true
	}
}

// toTurnRequest takes the last user message as the turn text and the
// messages before it as triage history.
func toTurnRequest(body chatRequest) (contractx.TurnRequest, bool) {
	last := -1
	for i := len(body.Messages) - 1; i >= 0; i-- {
		if contractx.Role(strings.ToLower(body.Messages[i].Role)) == contractx.RoleUser {
			last = i
			break
		}
	}
	if last < 0 && body.Attachment == nil {
		return contractx.TurnRequest{}, false
	}

	req := contractx.TurnRequest{
		Channel:    contractx.ChannelWeb,
		ThreadID:   strings.TrimSpace(body.ThreadID),
		Attachment: body.Attachment,
	}
	if last >= 0 {
		req.Text = body.Messages[last].Content
		req.History = history(body.Messages[:last])
	}
	return req, true
}

func history(msgs []chatMessage) []contractx.Message {
	out := make([]contractx.Message, 0, len(msgs))
	for _, m := range msgs {
		role := contractx.Role(strings.ToLower(m.Role))
		if role != contractx.RoleUser && role != contractx.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, contractx.Message{Role: role, Content: m.Content})
	}
	if len(out) > historyLimit {
		out = out[len(out)-historyLimit:]
	}
	return out
}

func failure(ctx context.Context, err error) (int, string) {
	log.Error().Err(err).Msg("chat turn failed")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return http.StatusGatewayTimeout, timeoutText
	case errors.Is(err, contractx.ErrNotConfigured):
		return http.StatusServiceUnavailable, notConfiguredText
	case errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest, invalidRequestText
	case errors.Is(err, contractx.ErrThreadOwnership):
		return http.StatusForbidden, forbiddenText
	default:
		return http.StatusInternalServerError, apologyText
	}
}
