// Package whatsapp serves the WhatsApp webhook posted by the Evolution API
// gateway and answers through the same gateway.
package whatsapp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	nodex "github.com/tanpawarit/chative-fintech-support/agent/nodes/orchestrator"
	evolutionx "github.com/tanpawarit/chative-fintech-support/pkg/evolution"
)

const (
	ServiceName = "fintech-support WhatsApp webhook"

	// ErrorNotice is the only failure text a WhatsApp user ever receives.
	ErrorNotice = "⚠️ Désolé, une erreur technique est survenue. Veuillez réessayer dans quelques instants."

	notifyTimeout = 10 * time.Second
	healthTimeout = 3 * time.Second
)

var errGatewayMissing = errors.New("whatsapp gateway is not configured")

type Turns interface {
	HandleMessage(ctx context.Context, req contractx.TurnRequest) (contractx.TurnResult, error)
}

// Gateway is the outbound side of the transport.
type Gateway interface {
	SendText(ctx context.Context, number, text string, delay int) error
	SendPresence(ctx context.Context, remoteJID string, presence evolutionx.Presence) error
	MarkAsRead(ctx context.Context, remoteJID, messageID string) error
	MediaBase64(ctx context.Context, key evolutionx.MessageKey) (evolutionx.Media, error)
	ConnectionState(ctx context.Context) (string, error)
}

var _ Gateway = (*evolutionx.Client)(nil)

type Options struct {
	Turns   Turns
	Gateway Gateway
	// Secret authenticates webhook calls. Empty accepts every call, which is
	// only acceptable in development.
	Secret string
}

type Handler struct {
	turns   Turns
	gateway Gateway
	secret  string
	now     func() time.Time
}

func NewHandler(opts Options) *Handler {
	if opts.Secret == "" {
		log.Warn().Msg("whatsapp webhook secret not set, accepting unauthenticated calls")
	}
	return &Handler{
		turns:   opts.Turns,
		gateway: opts.Gateway,
		secret:  strings.TrimSpace(opts.Secret),
		now:     time.Now,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/api/whatsapp", h.Webhook)
	r.GET("/api/whatsapp", h.Health)
}

func (h *Handler) Webhook(c *gin.Context) {
	var payload evolutionx.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if !payload.IsMessageUpsert() {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": payload.Event})
		return
	}
	key := payload.Data.Key
	if key.FromMe {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "fromMe"})
		return
	}
	if evolutionx.IsGroup(key.RemoteJID) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "group"})
		return
	}
	// Ignored events are acknowledged before the secret is checked.
	if !h.authorized(c.GetHeader("apikey"), payload.APIKey) {
		log.Warn().Str("instance", payload.Instance).Msg("unauthorized whatsapp webhook call")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	phone := evolutionx.PhoneNumber(key.RemoteJID)
	if phone == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no sender"})
		return
	}

	ctx := c.Request.Context()
	logger := log.With().Str("channel", string(contractx.ChannelWhatsApp)).Str("phone", phone).Str("message_id", key.ID).Logger()

	text := payload.Text()
	attachment := h.attachment(ctx, logger, payload)
	if strings.TrimSpace(text) == "" && attachment == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "empty"})
		return
	}

	result, chunks, err := h.process(ctx, logger, payload, phone, text, attachment)
	if err != nil {
		logger.Error().Err(err).Msg("whatsapp turn failed")
		h.notify(ctx, logger, phone)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, errGatewayMissing) || errors.Is(err, contractx.ErrNotConfigured):
			status = http.StatusServiceUnavailable
		case errors.Is(err, contractx.ErrThreadOwnership):
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "sent",
		"intent":         result.Intent,
		"sender":         phone,
		"threadId":       result.ThreadID,
		"responseLength": len([]rune(result.Reply)),
		"chunks":         chunks,
	})
}

func (h *Handler) process(
	ctx context.Context,
	logger zerolog.Logger,
	payload evolutionx.Payload,
	phone, text string,
	attachment *contractx.Attachment,
) (contractx.TurnResult, int, error) {
	if h.turns == nil {
		return contractx.TurnResult{}, 0, fmt.Errorf("%w: assistant", contractx.ErrNotConfigured)
	}
	if h.gateway == nil {
		return contractx.TurnResult{}, 0, errGatewayMissing
	}

	key := payload.Data.Key
	if err := h.gateway.MarkAsRead(ctx, key.RemoteJID, key.ID); err != nil {
		logger.Warn().Err(err).Msg("mark as read failed")
	}
	if err := h.gateway.SendPresence(ctx, key.RemoteJID, evolutionx.PresenceComposing); err != nil {
		logger.Warn().Err(err).Msg("typing presence failed")
	}

	resourceID := nodex.WhatsAppResourceID(phone)
	result, err := h.turns.HandleMessage(ctx, contractx.TurnRequest{
		Channel:    contractx.ChannelWhatsApp,
		ThreadID:   resourceID,
		ResourceID: resourceID,
		Text:       text,
		Attachment: attachment,
	})
	if err != nil {
		return contractx.TurnResult{}, 0, err
	}

	chunks := SplitMessage(result.Reply, MaxMessageLength)
	for i, chunk := range chunks {
		delay := evolutionx.DefaultTypingDelay
		if i > 0 {
			delay = evolutionx.ChunkTypingDelay
		}
		if err := h.gateway.SendText(ctx, phone, chunk, delay); err != nil {
			return contractx.TurnResult{}, 0, fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	if err := h.gateway.SendPresence(ctx, key.RemoteJID, evolutionx.PresenceAvailable); err != nil {
		logger.Debug().Err(err).Msg("available presence failed")
	}
	logger.Info().
		Str("thread_id", result.ThreadID).
		Str("intent", string(result.Intent)).
		Int("chunks", len(chunks)).
		Msg("whatsapp reply sent")
	return result, len(chunks), nil
}

// attachment resolves audio or image content, downloading it from the
// gateway when the webhook did not embed it. A failed download leaves the
// turn text-only.
func (h *Handler) attachment(ctx context.Context, logger zerolog.Logger, payload evolutionx.Payload) *contractx.Attachment {
	if !payload.IsAudio() && !payload.IsImage() {
		return nil
	}
	mimeType := payload.MediaMimeType()

	data := ""
	if payload.Data.Message != nil {
		data = payload.Data.Message.Base64
	}
	if data == "" {
		if h.gateway == nil {
			logger.Warn().Msg("media received but gateway is not configured")
			return nil
		}
		media, err := h.gateway.MediaBase64(ctx, payload.Data.Key)
		if err != nil {
			logger.Warn().Err(err).Msg("media download failed")
			return nil
		}
		data = media.Base64
		if media.MimeType != "" {
			mimeType = media.MimeType
		}
	}
	if mimeType == "" {
		if payload.IsAudio() {
			mimeType = "audio/ogg"
		} else {
			mimeType = "image/jpeg"
		}
	}

	return &contractx.Attachment{Base64: data, MimeType: mimeType}
}

// notify sends the error notice once. Its own failure is only logged so the
// original error stays the one reported.
func (h *Handler) notify(ctx context.Context, logger zerolog.Logger, phone string) {
	if h.gateway == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := h.gateway.SendText(notifyCtx, phone, ErrorNotice, 0); err != nil {
		logger.Error().Err(err).Msg("error notice not delivered")
	}
}

func (h *Handler) authorized(header, field string) bool {
	if h.secret == "" {
		return true
	}
	return constantEqual(header, h.secret) || constantEqual(field, h.secret)
}

func constantEqual(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status":     "ok",
		"service":    ServiceName,
		"timestamp":  h.now().UTC().Format(time.RFC3339),
		"configured": h.gateway != nil,
		"assistant":  h.turns != nil,
		"secured":    h.secret != "",
	}
	if h.gateway != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		state, err := h.gateway.ConnectionState(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("connection state unavailable")
			state = "unknown"
		}
		body["connection"] = state
	}
	c.JSON(http.StatusOK, body)
}
