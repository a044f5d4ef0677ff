package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

// InMemoryStore keeps threads in process memory. It backs tests and local
// development when no database is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]contractx.Thread
	messages map[string][]contractx.Message
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads:  make(map[string]contractx.Thread),
		messages: make(map[string][]contractx.Message),
		now:      time.Now,
	}
}

func (s *InMemoryStore) LoadHistory(_ context.Context, threadID, resourceID string, limit int) ([]contractx.Message, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.threads[threadID]; ok {
		if err := checkOwner(threadID, t.ResourceID, resourceID); err != nil {
			return nil, err
		}
	}
	all := s.messages[threadID]
	start := 0
	if len(all) > limit {
		start = len(all) - limit
	}
	out := make([]contractx.Message, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, thread contractx.Thread, msgs ...contractx.Message) error {
	if err := validateAppend(thread, msgs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	existing, ok := s.threads[thread.ID]
	if ok {
		if err := checkOwner(thread.ID, existing.ResourceID, thread.ResourceID); err != nil {
			return err
		}
	} else {
		existing = contractx.Thread{
			ID:         thread.ID,
			ResourceID: thread.ResourceID,
			Channel:    thread.Channel,
			CreatedAt:  now,
		}
	}
	existing.UpdatedAt = now
	s.threads[thread.ID] = existing
	s.messages[thread.ID] = append(s.messages[thread.ID], stamp(msgs, thread.ID, now)...)
	return nil
}

func (s *InMemoryStore) ListThreads(_ context.Context, limit int) ([]contractx.Thread, error) {
	s.mu.RLock()
	out := make([]contractx.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
