// Package knowledge crawls and indexes help-centre pages and answers
// similarity searches over them.
package knowledge

import (
	"errors"
	"time"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultDimensions     = 1536
	DefaultMaxChars       = 8000
	DefaultMinChars       = 50
)

var (
	ErrNotConfigured   = errors.New("knowledge base is not configured")
	ErrContentTooShort = errors.New("page content too short or empty")
	ErrInvalidURL      = errors.New("invalid url")
)

type Config struct {
	EmbeddingModel string        `split_words:"true" default:"text-embedding-3-small"`
	Dimensions     int           `split_words:"true" default:"1536"`
	MaxChars       int           `split_words:"true" default:"8000"`
	MinChars       int           `split_words:"true" default:"50"`
	FetchTimeout   time.Duration `split_words:"true" default:"20s"`
	Concurrency    int           `split_words:"true" default:"4"`
	UserAgent      string        `split_words:"true" default:"chative-fintech-support/1.0"`
}

func (c Config) withDefaults() Config {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	if c.MinChars <= 0 {
		c.MinChars = DefaultMinChars
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Document is one indexed page. Embedding is nil until the page is embedded.
type Document struct {
	URL       string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// Match is a search hit; a smaller Distance is closer.
type Match struct {
	URL      string
	Content  string
	Distance float64
}

type IngestResult struct {
	URL   string `json:"url"`
	Chars int    `json:"chars,omitempty"`
	Error string `json:"error,omitempty"`
}
