package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

// Store keeps one document per URL.
type Store interface {
	Upsert(ctx context.Context, doc Document) error
	Search(ctx context.Context, vector []float32, k int) ([]Match, error)
}

// PGVectorStore stores documents in Postgres with the pgvector extension.
type PGVectorStore struct {
	db         *bun.DB
	dimensions int
}

var (
	_ Store = (*PGVectorStore)(nil)
	_ Store = (*MemoryIndex)(nil)
)

// NewPGVectorStore enables the vector extension and creates the documents
// table when missing.
func NewPGVectorStore(ctx context.Context, db *bun.DB, dimensions int) (*PGVectorStore, error) {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	s := &PGVectorStore{db: db, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
	id SERIAL PRIMARY KEY,
	url TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding VECTOR(%d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.dimensions)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create documents: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS documents_url_idx ON documents (url)"); err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	return nil
}

// Upsert replaces any previous version of the page.
func (s *PGVectorStore) Upsert(ctx context.Context, doc Document) error {
	if len(doc.Embedding) != s.dimensions {
		return fmt.Errorf("upsert %s: embedding has %d dimensions, want %d", doc.URL, len(doc.Embedding), s.dimensions)
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE url = ?", doc.URL); err != nil {
			return fmt.Errorf("delete %s: %w", doc.URL, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (url, content, embedding) VALUES (?, ?, ?::vector)",
			doc.URL, doc.Content, vectorLiteral(doc.Embedding),
		); err != nil {
			return fmt.Errorf("insert %s: %w", doc.URL, err)
		}
		return nil
	})
}

type matchRow struct {
	URL      string  `bun:"url"`
	Content  string  `bun:"content"`
	Distance float64 `bun:"distance"`
}

func (s *PGVectorStore) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		k = 3
	}
	var rows []matchRow
	err := s.db.NewRaw(
		"SELECT url, content, embedding <-> ?::vector AS distance FROM documents ORDER BY distance LIMIT ?",
		vectorLiteral(vector), k,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	out := make([]Match, len(rows))
	for i, r := range rows {
		out[i] = Match(r)
	}
	return out, nil
}

// vectorLiteral renders v in pgvector's text form, e.g. [0.1,0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// MemoryIndex is a process-local Store for development and tests. It ranks by
// Euclidean distance like the pgvector <-> operator.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]Document
	now  func() time.Time
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]Document), now: time.Now}
}

func (m *MemoryIndex) Upsert(_ context.Context, doc Document) error {
	doc.Embedding = append([]float32(nil), doc.Embedding...)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = m.now().UTC()
	}
	m.mu.Lock()
	m.docs[doc.URL] = doc
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		k = 3
	}
	m.mu.RLock()
	out := make([]Match, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, Match{URL: d.URL, Content: d.Content, Distance: euclidean(vector, d.Embedding)})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance == out[j].Distance {
			return out[i].URL < out[j].URL
		}
		return out[i].Distance < out[j].Distance
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func euclidean(a, b []float32) float64 {
	n := max(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = float64(a[i])
		}
		if i < len(b) {
			y = float64(b[i])
		}
		sum += (x - y) * (x - y)
	}
	return math.Sqrt(sum)
}
