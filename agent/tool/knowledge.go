package tool

import (
	"context"

	knowledgex "github.com/tanpawarit/chative-fintech-support/pkg/knowledge"
)

// KnowledgeSearcher serves search_documentation from the indexed help pages.
type KnowledgeSearcher struct {
	service *knowledgex.Service
}

var _ DocumentSearcher = (*KnowledgeSearcher)(nil)

func NewKnowledgeSearcher(service *knowledgex.Service) *KnowledgeSearcher {
	return &KnowledgeSearcher{service: service}
}

func (k *KnowledgeSearcher) Search(ctx context.Context, query string, limit int) ([]Passage, error) {
	matches, err := k.service.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Passage, len(matches))
	for i, m := range matches {
		out[i] = Passage{URL: m.URL, Content: m.Content, Distance: m.Distance}
	}
	return out, nil
}
