package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Pages fetches HTML and discovers links.
type Pages interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
	Crawl(ctx context.Context, rawURL string) ([]string, error)
}

var _ Pages = (*Fetcher)(nil)

// Service ingests pages into a Store and searches it.
type Service struct {
	pages    Pages
	embedder Embedder
	store    Store
	cfg      Config
}

// NewService returns a Service. A nil embedder or store leaves ingestion and
// search answering ErrNotConfigured while crawling keeps working.
func NewService(pages Pages, embedder Embedder, store Store, cfg Config) *Service {
	return &Service{pages: pages, embedder: embedder, store: store, cfg: cfg.withDefaults()}
}

func (s *Service) Configured() bool {
	return s.embedder != nil && s.store != nil
}

func (s *Service) Crawl(ctx context.Context, rawURL string) ([]string, error) {
	return s.pages.Crawl(ctx, rawURL)
}

// Ingest fetches, cleans, embeds and stores one page.
func (s *Service) Ingest(ctx context.Context, rawURL string) (IngestResult, error) {
	if !s.Configured() {
		return IngestResult{}, ErrNotConfigured
	}
	rawURL = strings.TrimSpace(rawURL)
	if _, err := parsePageURL(rawURL); err != nil {
		return IngestResult{}, err
	}

	page, err := s.pages.Fetch(ctx, rawURL)
	if err != nil {
		return IngestResult{}, err
	}
	content, err := Clean(page, s.cfg.MaxChars)
	if err != nil {
		return IngestResult{}, err
	}
	chars := utf8.RuneCountInString(content)
	if chars < s.cfg.MinChars {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrContentTooShort, rawURL)
	}

	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return IngestResult{}, err
	}
	if err := s.store.Upsert(ctx, Document{URL: rawURL, Content: content, Embedding: vector}); err != nil {
		return IngestResult{}, err
	}

	log.Info().Str("url", rawURL).Int("chars", chars).Msg("page ingested")
	return IngestResult{URL: rawURL, Chars: chars}, nil
}

// IngestBatch ingests urls with bounded concurrency. Failures are reported per
// URL; the batch itself only fails when the service is not configured or ctx
// is cancelled.
func (s *Service) IngestBatch(ctx context.Context, urls []string) ([]IngestResult, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	results := make([]IngestResult, len(urls))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Ingest(gctx, u)
			if err != nil {
				log.Warn().Err(err).Str("url", u).Msg("page ingestion failed")
				res = IngestResult{URL: u, Error: userError(err)}
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func (s *Service) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, vector, k)
}

func userError(err error) string {
	switch {
	case errors.Is(err, ErrContentTooShort):
		return ErrContentTooShort.Error()
	case errors.Is(err, ErrInvalidURL):
		return ErrInvalidURL.Error()
	default:
		return "ingestion failed"
	}
}
