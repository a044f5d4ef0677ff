package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrNotConfigured = errors.New("evolution api url, key and instance are required")

// maxResponseBytes leaves room for base64 media downloads.
const maxResponseBytes = 40 << 20

const (
	DefaultTypingDelay = 1200
	ChunkTypingDelay   = 800
)

type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
	PresenceAvailable Presence = "available"
)

type Config struct {
	APIURL        string        `envconfig:"API_URL" split_words:"true"`
	APIKey        string        `envconfig:"API_KEY" split_words:"true"`
	Instance      string        `split_words:"true"`
	WebhookSecret string        `split_words:"true"`
	Timeout       time.Duration `split_words:"true" default:"15s"`
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIURL) != "" &&
		strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.Instance) != ""
}

// APIError carries a non-2xx answer from the gateway.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("evolution api error %d: %s", e.Status, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	baseURL := strings.TrimSpace(cfg.APIURL)
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("evolution api url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		instance: strings.TrimSpace(cfg.Instance),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// SendText delivers one WhatsApp text. delay is the typing indicator
// duration in milliseconds; zero uses DefaultTypingDelay.
func (c *Client) SendText(ctx context.Context, number, text string, delay int) error {
	if delay <= 0 {
		delay = DefaultTypingDelay
	}
	return c.do(ctx, http.MethodPost, "message/sendText/"+c.instance, map[string]any{
		"number":      number,
		"text":        text,
		"delay":       delay,
		"linkPreview": false,
	}, nil)
}

func (c *Client) SendPresence(ctx context.Context, remoteJID string, presence Presence) error {
	return c.do(ctx, http.MethodPost, "chat/sendPresence/"+c.instance, map[string]any{
		"number":   PhoneNumber(remoteJID),
		"presence": presence,
	}, nil)
}

func (c *Client) MarkAsRead(ctx context.Context, remoteJID, messageID string) error {
	return c.do(ctx, http.MethodPost, "chat/markMessageAsRead/"+c.instance, map[string]any{
		"read_messages": []map[string]string{
			{"remoteJid": remoteJID, "id": messageID},
		},
	}, nil)
}

type Media struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimetype"`
}

// MediaBase64 downloads the decrypted content of an audio or image message.
func (c *Client) MediaBase64(ctx context.Context, key MessageKey) (Media, error) {
	var out Media
	err := c.do(ctx, http.MethodPost, "chat/getBase64FromMediaMessage/"+c.instance, map[string]any{
		"message":      map[string]any{"key": key},
		"convertToMp4": false,
	}, &out)
	if err != nil {
		return Media{}, err
	}
	if strings.TrimSpace(out.Base64) == "" {
		return Media{}, errors.New("evolution api returned empty media")
	}
	return out, nil
}

// ConnectionState reports the WhatsApp session state, e.g. "open".
func (c *Client) ConnectionState(ctx context.Context) (string, error) {
	var out struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
			State        string `json:"state"`
		} `json:"instance"`
	}
	if err := c.do(ctx, http.MethodGet, "instance/connectionState/"+c.instance, nil, &out); err != nil {
		return "", err
	}
	return out.Instance.State, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal evolution request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build evolution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	log.Debug().Str("method", method).Str("path", path).Msg("evolution request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("evolution request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read evolution response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode evolution response: %w", err)
	}
	return nil
}
