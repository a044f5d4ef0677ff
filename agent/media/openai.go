package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
)

const (
	transcriptionPrompt = "Ce message est une note vocale WhatsApp. Le locuteur parle probablement français ou une langue africaine."

	visionSystemPrompt = `Tu es un assistant visuel pour un service de paiement mobile en Afrique de l'Ouest.

Ton rôle est d'analyser les images envoyées par les clients et de fournir une description précise et utile pour un agent de support.

Types d'images possibles :
- receipt : reçu de transaction (extrais : montant, date, référence, statut, opérateur)
- id_card : pièce d'identité (mentionne le type mais NE LIS PAS les informations personnelles)
- screenshot : capture d'écran d'application ou d'erreur (décris ce qu'on voit)
- document : document officiel, facture, contrat
- photo : autre photo

Réponds TOUJOURS en français. Sois concis mais précis.
Format ta réponse ainsi :
TYPE: [receipt|id_card|screenshot|document|photo|unknown]
DESCRIPTION: [description détaillée en 2-3 phrases]`
)

var (
	visionTypePattern = regexp.MustCompile(`(?i)TYPE:\s*\[?(\w+)`)
	visionDescPattern = regexp.MustCompile(`(?is)DESCRIPTION:\s*(.+)`)
)

type OpenAITranscriber struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAITranscriber(client *openai.Client, cfg Config) (*OpenAITranscriber, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	model := strings.TrimSpace(cfg.TranscriptionModel)
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	return &OpenAITranscriber{client: client, model: model, language: strings.TrimSpace(cfg.Language)}, nil
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:   openai.File(bytes.NewReader(data), "voice."+audioExtension(mimeType), BaseMime(mimeType)),
		Model:  openai.AudioModel(t.model),
		Prompt: openai.String(transcriptionPrompt),
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}
	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

type OpenAIDescriber struct {
	client *openai.Client
	model  string
}

func NewOpenAIDescriber(client *openai.Client, cfg Config) (*OpenAIDescriber, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	model := strings.TrimSpace(cfg.VisionModel)
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	return &OpenAIDescriber{client: client, model: model}, nil
}

func (d *OpenAIDescriber) Describe(ctx context.Context, data []byte, mimeType, caption string) (Description, error) {
	dataURL := "data:" + BaseMime(mimeType) + ";base64," + base64.StdEncoding.EncodeToString(data)

	prompt := "Le client a envoyé cette image sans message. Décris ce que tu vois."
	if caption = strings.TrimSpace(caption); caption != "" {
		prompt = fmt.Sprintf("Le client a envoyé cette image avec le message : %q", caption)
	}

	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(d.model),
		MaxTokens: openai.Int(500),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(visionSystemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "low",
				}),
				openai.TextContentPart(prompt),
			}),
		},
	})
	if err != nil {
		return Description{}, fmt.Errorf("vision analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Description{}, errors.New("vision analysis returned no choice")
	}
	return ParseDescription(resp.Choices[0].Message.Content), nil
}

// ParseDescription reads the "TYPE: ... DESCRIPTION: ..." answer format.
func ParseDescription(content string) Description {
	content = strings.TrimSpace(content)
	desc := Description{Type: "unknown", Text: content}
	if m := visionTypePattern.FindStringSubmatch(content); m != nil {
		desc.Type = strings.ToLower(m[1])
	}
	if m := visionDescPattern.FindStringSubmatch(content); m != nil {
		desc.Text = strings.TrimSpace(m[1])
	}
	return desc
}
