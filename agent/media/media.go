package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

const (
	AudioTag = "[AUDIO TRANSCRIT]"
	ImageTag = "[IMAGE ANALYSÉE]"
)

type Kind string

const (
	KindAudio       Kind = "audio"
	KindImage       Kind = "image"
	KindUnsupported Kind = "unsupported"
)

var (
	supportedAudio = map[string]string{
		"audio/ogg":   "ogg",
		"audio/mpeg":  "mp3",
		"audio/mp3":   "mp3",
		"audio/mp4":   "m4a",
		"audio/x-m4a": "m4a",
		"audio/wav":   "wav",
		"audio/webm":  "webm",
		"audio/amr":   "amr",
		"audio/aac":   "aac",
		"audio/flac":  "flac",
	}
	supportedImage = map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
		"image/bmp":  true,
	}
)

type Config struct {
	TranscriptionModel string `split_words:"true" default:"whisper-1"`
	VisionModel        string `split_words:"true" default:"gpt-4o"`
	Language           string `split_words:"true" default:"fr"`
	MaxAudioBytes      int    `split_words:"true" default:"26214400"`
	MaxImageBytes      int    `split_words:"true" default:"20971520"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, mimeType string) (string, error)
}

type Description struct {
	Type string
	Text string
}

type Describer interface {
	Describe(ctx context.Context, data []byte, mimeType, caption string) (Description, error)
}

// BaseMime strips parameters such as "; codecs=opus" and lowercases.
func BaseMime(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func Classify(mimeType string) Kind {
	base := BaseMime(mimeType)
	if _, ok := supportedAudio[base]; ok {
		return KindAudio
	}
	if supportedImage[base] {
		return KindImage
	}
	return KindUnsupported
}

func audioExtension(mimeType string) string {
	if ext, ok := supportedAudio[BaseMime(mimeType)]; ok {
		return ext
	}
	return "ogg"
}

// Normalizer turns an attachment into tagged text appended to the user's
// message. Every failure is logged and the attachment is dropped.
type Normalizer struct {
	transcriber Transcriber
	describer   Describer
	maxAudio    int
	maxImage    int
}

var _ contractx.MediaNormalizer = (*Normalizer)(nil)

// NewNormalizer accepts nil collaborators; the matching media kind is then
// ignored.
func NewNormalizer(transcriber Transcriber, describer Describer, cfg Config) *Normalizer {
	n := &Normalizer{
		transcriber: transcriber,
		describer:   describer,
		maxAudio:    cfg.MaxAudioBytes,
		maxImage:    cfg.MaxImageBytes,
	}
	if n.maxAudio <= 0 {
		n.maxAudio = 25 << 20
	}
	if n.maxImage <= 0 {
		n.maxImage = 20 << 20
	}
	return n
}

func (n *Normalizer) Normalize(ctx context.Context, text string, att *contractx.Attachment) string {
	text = strings.TrimSpace(text)
	if att == nil || strings.TrimSpace(att.Base64) == "" {
		return text
	}

	logger := log.With().Str("mime", att.MimeType).Str("file", att.FileName).Logger()
	kind := Classify(att.MimeType)
	if kind == KindUnsupported {
		logger.Warn().Msg("unsupported attachment format ignored")
		return text
	}

	data, err := decodeBase64(att.Base64)
	if err != nil {
		logger.Warn().Err(err).Msg("attachment is not valid base64")
		return text
	}

	var derived string
	switch kind {
	case KindAudio:
		derived, err = n.audio(ctx, data, att.MimeType)
	case KindImage:
		derived, err = n.image(ctx, data, att.MimeType, text)
	}
	if err != nil {
		logger.Warn().Err(err).Str("kind", string(kind)).Int("bytes", len(data)).Msg("attachment dropped")
		return text
	}

	logger.Info().Str("kind", string(kind)).Int("bytes", len(data)).Str("derived", preview(derived, 80)).Msg("attachment normalized")
	if text == "" {
		return derived
	}
	return text + "\n\n" + derived
}

func (n *Normalizer) audio(ctx context.Context, data []byte, mimeType string) (string, error) {
	if n.transcriber == nil {
		return "", fmt.Errorf("%w: transcription", contractx.ErrNotConfigured)
	}
	if len(data) > n.maxAudio {
		return "", fmt.Errorf("audio too large: %d > %d bytes", len(data), n.maxAudio)
	}
	transcript, err := n.transcriber.Transcribe(ctx, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("empty transcription")
	}
	return AudioTag + " " + transcript, nil
}

func (n *Normalizer) image(ctx context.Context, data []byte, mimeType, caption string) (string, error) {
	if n.describer == nil {
		return "", fmt.Errorf("%w: vision", contractx.ErrNotConfigured)
	}
	if len(data) > n.maxImage {
		return "", fmt.Errorf("image too large: %d > %d bytes", len(data), n.maxImage)
	}
	desc, err := n.describer.Describe(ctx, data, mimeType, caption)
	if err != nil {
		return "", fmt.Errorf("describe: %w", err)
	}
	if strings.TrimSpace(desc.Text) == "" {
		return "", fmt.Errorf("empty image description")
	}
	kind := desc.Type
	if kind == "" {
		kind = "unknown"
	}
	return fmt.Sprintf("%s (type: %s) %s", ImageTag, kind, strings.TrimSpace(desc.Text)), nil
}

// decodeBase64 accepts raw base64 or a data URL.
func decodeBase64(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		if _, payload, ok := strings.Cut(raw, ","); ok {
			raw = payload
		}
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(raw)
	}
	return data, err
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
