package tool

import (
	"context"
	"testing"

	knowledgex "github.com/tanpawarit/chative-fintech-support/pkg/knowledge"
)

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestKnowledgeSearcherFeedsSearchTool(t *testing.T) {
	t.Parallel()

	index := knowledgex.NewMemoryIndex()
	err := index.Upsert(context.Background(), knowledgex.Document{
		URL:       "https://solimi.net/faq",
		Content:   "Les frais de retrait sont de 1%.",
		Embedding: []float32{1, 0},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	svc := knowledgex.NewService(knowledgex.NewFetcher(knowledgex.Config{}), constEmbedder{}, index, knowledgex.Config{})
	reg := newTestCatalog(t, Deps{Documents: NewKnowledgeSearcher(svc)})

	out := run[SearchOutput](t, reg, ToolSearchDocumentation, `{"query":"frais de retrait"}`)
	if !out.Found || len(out.Sources) != 1 || out.Sources[0] != "https://solimi.net/faq" {
		t.Fatalf("unexpected output: %#v", out)
	}
}

func TestKnowledgeSearcherUnconfiguredDegrades(t *testing.T) {
	t.Parallel()

	svc := knowledgex.NewService(knowledgex.NewFetcher(knowledgex.Config{}), nil, nil, knowledgex.Config{})
	reg := newTestCatalog(t, Deps{Documents: NewKnowledgeSearcher(svc)})

	out := run[SearchOutput](t, reg, ToolSearchDocumentation, `{"query":"frais"}`)
	if out.Found || out.Status != DocumentationUnavailable {
		t.Fatalf("unexpected output: %#v", out)
	}
}
