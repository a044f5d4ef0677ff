package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

var (
	ErrInvalidThread   = errors.New("thread id is empty")
	ErrInvalidResource = errors.New("resource id is empty")
)

const (
	// WebResourceID groups web and simulator threads until callers carry a
	// real identity.
	WebResourceID = "web-anonymous"
	// EmptyMessagePlaceholder replaces a turn with no usable text so that it
	// is still classified and answered.
	EmptyMessagePlaceholder = "(message vide)"
	// FallbackReply is delivered when generation produced no text at all.
	FallbackReply = "Je suis désolé, je n'ai pas pu formuler de réponse. Pouvez-vous reformuler votre demande ?"
)

type GraphInput struct {
	Request contractx.TurnRequest
}

type GraphOutput = contractx.TurnResult

type GraphState struct {
	Channel    contractx.Channel
	ThreadID   string
	ResourceID string
	Now        time.Time

	// Text is the effective user message: typed text plus any tagged
	// media-derived text.
	Text       string
	Attachment *contractx.Attachment
	History    []contractx.Message

	Intent     contractx.Intent
	Specialist contractx.Specialist

	Reply     string
	Flagged   bool
	ToolCalls []contractx.ToolCallRecord
}

// ResolveIdentity fills the thread and resource ids a caller left empty.
// WhatsApp resource ids are derived by the channel adapter from the phone.
func ResolveIdentity(req contractx.TurnRequest, newID func() string) contractx.TurnRequest {
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	if req.ThreadID == "" {
		req.ThreadID = newID()
	}
	if req.Channel == "" {
		req.Channel = contractx.ChannelWeb
	}
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	if req.ResourceID == "" && req.Channel == contractx.ChannelWeb {
		req.ResourceID = WebResourceID
	}
	return req
}

const whatsAppPrefix = "wa-"

// WhatsAppResourceID is the stable resource id of a WhatsApp sender.
func WhatsAppResourceID(phone string) string {
	return whatsAppPrefix + strings.TrimSpace(phone)
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	req := in.Request

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		return nil, ErrInvalidThread
	}
	resourceID := strings.TrimSpace(req.ResourceID)
	if resourceID == "" {
		return nil, ErrInvalidResource
	}
	// WhatsApp thread ids are derived from the phone number, so other
	// channels may not open or claim one.
	if req.Channel != contractx.ChannelWhatsApp && strings.HasPrefix(threadID, whatsAppPrefix) {
		return nil, fmt.Errorf("%w: thread=%s is reserved for whatsapp", contractx.ErrThreadOwnership, threadID)
	}

	var att *contractx.Attachment
	if req.Attachment != nil && strings.TrimSpace(req.Attachment.Base64) != "" {
		att = req.Attachment
	}

	return &GraphState{
		Channel:    req.Channel,
		ThreadID:   threadID,
		ResourceID: resourceID,
		Now:        nowFn().UTC(),
		Text:       strings.TrimSpace(req.Text),
		Attachment: att,
		History:    req.History,
	}, nil
}
