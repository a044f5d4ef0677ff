package contract

import (
	"strings"
	"time"
)

type Intent string

const (
	IntentInfo       Intent = "info"
	IntentPayment    Intent = "payment"
	IntentCompliance Intent = "compliance"
)

// Intents lists every routable intent in classification priority order.
var Intents = []Intent{IntentPayment, IntentCompliance, IntentInfo}

func ParseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentInfo:
		return IntentInfo, true
	case IntentPayment:
		return IntentPayment, true
	case IntentCompliance:
		return IntentCompliance, true
	default:
		return "", false
	}
}

// Label is the bracket token the dispatcher is asked to emit.
func (i Intent) Label() string {
	return "[" + string(i) + "]"
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelWhatsApp Channel = "whatsapp"
)

type Thread struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	Channel    Channel   `json:"channel"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Message struct {
	ThreadID  string    `json:"thread_id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Attachment struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
}

// TurnRequest is one inbound user turn as handed over by a channel adapter.
type TurnRequest struct {
	Channel    Channel
	ThreadID   string
	ResourceID string
	Text       string
	History    []Message
	Attachment *Attachment
}

type TurnResult struct {
	ThreadID   string
	ResourceID string
	Intent     Intent
	Reply      string
	Flagged    bool
	ToolCalls  []ToolCallRecord
}

type ClassifyRequest struct {
	Message string
	History []Message
}

type ClassifyResponse struct {
	Intent  Intent
	Message string
	History []Message
	Raw     string
}

type SpecialistRequest struct {
	ThreadID   string
	ResourceID string
	Message    string
}

type SpecialistResponse struct {
	Message   string
	ToolCalls []ToolCallRecord
}

type ToolCallRecord struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// ToolResult is the envelope returned by a tool when its input cannot be used.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
