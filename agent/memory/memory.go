package memory

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

const (
	// DefaultWindow is the number of most recent messages replayed to a specialist.
	DefaultWindow = 20

	// TriageTurns is how many prior turns the dispatcher sees. A turn is one
	// user message and one assistant reply, so TriageWindow counts messages.
	TriageTurns  = 5
	TriageWindow = 2 * TriageTurns
)

var (
	_ contractx.MemoryStore = (*InMemoryStore)(nil)
	_ contractx.MemoryStore = (*BunStore)(nil)
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultWindow
	}
	return limit
}

func validateAppend(thread contractx.Thread, msgs []contractx.Message) error {
	if strings.TrimSpace(thread.ID) == "" {
		return fmt.Errorf("%w: thread id is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(thread.ResourceID) == "" {
		return fmt.Errorf("%w: resource id is empty", contractx.ErrValidation)
	}
	for i, m := range msgs {
		if m.Role != contractx.RoleUser && m.Role != contractx.RoleAssistant {
			return fmt.Errorf("%w: message #%d has role %q", contractx.ErrValidation, i, m.Role)
		}
	}
	return nil
}

// stamp assigns strictly increasing timestamps to messages lacking one so that
// a user message and its reply never share an instant.
func stamp(msgs []contractx.Message, threadID string, now time.Time) []contractx.Message {
	out := make([]contractx.Message, len(msgs))
	for i, m := range msgs {
		m.ThreadID = threadID
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out[i] = m
	}
	return out
}

// checkOwner rejects access to a thread owned by another resource. An empty
// resourceID is not checked.
func checkOwner(threadID, owner, resourceID string) error {
	if resourceID != "" && owner != resourceID {
		return fmt.Errorf("%w: thread=%s", contractx.ErrThreadOwnership, threadID)
	}
	return nil
}
