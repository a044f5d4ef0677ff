package contract

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type Dispatcher interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResponse, error)
}

type Specialist interface {
	Intent() Intent
	Generate(ctx context.Context, req SpecialistRequest) (SpecialistResponse, error)
	Stream(ctx context.Context, req SpecialistRequest) (*schema.StreamReader[string], error)
}

type Registry interface {
	Dispatcher() Dispatcher
	Specialist(intent Intent) (Specialist, bool)
}

type MemoryStore interface {
	// LoadHistory returns ErrThreadOwnership when the thread exists and
	// belongs to another resource. An empty resourceID skips that check and
	// is reserved for operator tooling.
	LoadHistory(ctx context.Context, threadID, resourceID string, limit int) ([]Message, error)
	AppendTurn(ctx context.Context, thread Thread, msgs ...Message) error
	ListThreads(ctx context.Context, limit int) ([]Thread, error)
}

type MediaNormalizer interface {
	Normalize(ctx context.Context, text string, att *Attachment) string
}
