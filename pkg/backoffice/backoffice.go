package backoffice

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
)

var (
	ErrNotConfigured = errors.New("backoffice url and api key are required")
	ErrNotFound      = errors.New("backoffice resource not found")
)

const maxResponseBytes = 1 << 20

type Config struct {
	URL     string        `split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	AgentID string        `split_words:"true" default:"fintech-support-bot"`
	Timeout time.Duration `split_words:"true" default:"10s"`
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.APIKey) != ""
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backoffice api error %d: %s", e.Status, e.Body)
}

// Client calls the internal fintech API. Every request is authenticated with
// x-api-key and traced with x-agent-id.
type Client struct {
	baseURL    string
	apiKey     string
	agentID    string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	baseURL := strings.TrimSpace(cfg.URL)
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("backoffice url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	agentID := strings.TrimSpace(cfg.AgentID)
	if agentID == "" {
		agentID = "fintech-support-bot"
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		agentID:    agentID,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type Transaction struct {
	Reference string `json:"reference"`
	Provider  string `json:"provider,omitempty"`
	Status    string `json:"status"`
	Amount    string `json:"amount,omitempty"`
	Message   string `json:"message,omitempty"`
}

type KYCStatus struct {
	PhoneNumber      string   `json:"phone_number"`
	Verified         bool     `json:"verified"`
	Level            string   `json:"level,omitempty"`
	MissingDocuments []string `json:"missing_documents,omitempty"`
}

type DisputeRequest struct {
	TransactionID string `json:"transaction_id"`
	PhoneNumber   string `json:"phone_number"`
	Issue         string `json:"issue"`
}

type Dispute struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

type TicketRequest struct {
	Subject           string `json:"subject"`
	Description       string `json:"description"`
	Priority          string `json:"priority"`
	Category          string `json:"category"`
	CustomerSentiment string `json:"customer_sentiment,omitempty"`
}

type Ticket struct {
	TicketID          string `json:"ticket_id"`
	EstimatedWaitTime string `json:"estimated_wait_time,omitempty"`
}

// Transaction returns ErrNotFound when the ledger has no such reference.
func (c *Client) Transaction(ctx context.Context, reference, provider string) (Transaction, error) {
	path := "transactions/" + url.PathEscape(strings.TrimSpace(reference))
	if p := strings.TrimSpace(provider); p != "" {
		path += "?provider=" + url.QueryEscape(p)
	}
	var out Transaction
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) KYC(ctx context.Context, phoneNumber string) (KYCStatus, error) {
	var out KYCStatus
	err := c.do(ctx, http.MethodGet, "kyc/"+url.PathEscape(strings.TrimSpace(phoneNumber)), nil, &out)
	return out, err
}

func (c *Client) OpenDispute(ctx context.Context, req DisputeRequest) (Dispute, error) {
	var out Dispute
	err := c.do(ctx, http.MethodPost, "disputes", req, &out)
	return out, err
}

func (c *Client) CreateTicket(ctx context.Context, req TicketRequest) (Ticket, error) {
	var out Ticket
	err := c.do(ctx, http.MethodPost, "tickets", req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal backoffice request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return fmt.Errorf("build backoffice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("x-agent-id", c.agentID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backoffice request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read backoffice response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode backoffice response: %w", err)
	}
	return nil
}
