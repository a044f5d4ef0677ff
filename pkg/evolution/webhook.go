package evolution

import "strings"

const EventMessagesUpsert = "messages.upsert"

const (
	userSuffix  = "@s.whatsapp.net"
	groupSuffix = "@g.us"
)

// Payload is the webhook envelope posted by the gateway.
type Payload struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     MessageData `json:"data"`
	APIKey   string      `json:"apikey,omitempty"`
}

type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type MessageData struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName,omitempty"`
	Message          *MessageContent `json:"message,omitempty"`
	MessageType      string          `json:"messageType,omitempty"`
	MessageTimestamp int64           `json:"messageTimestamp,omitempty"`
}

type MessageContent struct {
	Conversation        string               `json:"conversation,omitempty"`
	ExtendedTextMessage *ExtendedTextMessage `json:"extendedTextMessage,omitempty"`
	ImageMessage        *MediaMessage        `json:"imageMessage,omitempty"`
	AudioMessage        *MediaMessage        `json:"audioMessage,omitempty"`
	DocumentMessage     *MediaMessage        `json:"documentMessage,omitempty"`
	// Base64 is filled when the instance is set to embed media in webhooks.
	Base64 string `json:"base64,omitempty"`
}

type ExtendedTextMessage struct {
	Text string `json:"text"`
}

type MediaMessage struct {
	Caption  string `json:"caption,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
}

// IsMessageUpsert accepts both "messages.upsert" and "MESSAGES_UPSERT".
func (p Payload) IsMessageUpsert() bool {
	event := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p.Event), "_", "."))
	return event == EventMessagesUpsert
}

// Text returns the typed text or image caption, if any.
func (p Payload) Text() string {
	msg := p.Data.Message
	if msg == nil {
		return ""
	}
	switch {
	case msg.Conversation != "":
		return msg.Conversation
	case msg.ExtendedTextMessage != nil && msg.ExtendedTextMessage.Text != "":
		return msg.ExtendedTextMessage.Text
	case msg.ImageMessage != nil && msg.ImageMessage.Caption != "":
		return msg.ImageMessage.Caption
	}
	return ""
}

func (p Payload) IsAudio() bool {
	return p.Data.MessageType == "audioMessage" || (p.Data.Message != nil && p.Data.Message.AudioMessage != nil)
}

func (p Payload) IsImage() bool {
	return p.Data.MessageType == "imageMessage" || (p.Data.Message != nil && p.Data.Message.ImageMessage != nil)
}

// MediaMimeType is the declared mime type of an audio or image message.
func (p Payload) MediaMimeType() string {
	msg := p.Data.Message
	if msg == nil {
		return ""
	}
	if msg.AudioMessage != nil {
		return msg.AudioMessage.MimeType
	}
	if msg.ImageMessage != nil {
		return msg.ImageMessage.MimeType
	}
	return ""
}

// PhoneNumber strips the WhatsApp jid suffix: "2250700@s.whatsapp.net" → "2250700".
func PhoneNumber(remoteJID string) string {
	phone := strings.TrimSuffix(remoteJID, userSuffix)
	return strings.TrimSuffix(phone, groupSuffix)
}

func IsGroup(remoteJID string) bool {
	return strings.HasSuffix(remoteJID, groupSuffix)
}
