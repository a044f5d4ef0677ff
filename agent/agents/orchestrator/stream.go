package orchestrator

import (
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	guardx "github.com/tanpawarit/chative-fintech-support/agent/guard"
	nodex "github.com/tanpawarit/chative-fintech-support/agent/nodes/orchestrator"
)

// TurnStream relays a specialist's reply through the refund filter. It is
// consumed by a single goroutine.
type TurnStream struct {
	ThreadID   string
	ResourceID string
	Intent     contractx.Intent

	reader  *schema.StreamReader[string]
	filter  *guardx.Filter
	reply   strings.Builder
	done    bool
	commit  func(reply string, flagged bool)
	release func()
	once    sync.Once
}

// Recv returns the next safe chunk, or io.EOF once the reply is complete and
// committed.
func (s *TurnStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}

		chunk, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			tail := s.filter.Flush()
			if strings.TrimSpace(s.reply.String()+tail) == "" {
				tail = nodex.FallbackReply
			}
			s.reply.WriteString(tail)
			s.commit(s.reply.String(), s.filter.Flagged())
			s.Close()
			if tail == "" {
				return "", io.EOF
			}
			return tail, nil
		}
		if err != nil {
			s.done = true
			s.Close()
			return "", err
		}

		safe := s.filter.Write(chunk)
		if safe == "" {
			continue
		}
		s.reply.WriteString(safe)
		return safe, nil
	}
}

// Reply is the text delivered so far.
func (s *TurnStream) Reply() string {
	return s.reply.String()
}

func (s *TurnStream) Flagged() bool {
	return s.filter.Flagged()
}

// Close abandons the stream if it has not finished. Safe to call repeatedly.
func (s *TurnStream) Close() {
	s.once.Do(func() {
		s.done = true
		s.reader.Close()
		if s.release != nil {
			s.release()
		}
	})
}
