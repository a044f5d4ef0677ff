package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	memoryx "github.com/tanpawarit/chative-fintech-support/agent/memory"
)

type dispatcherImpl struct {
	runner compose.Runnable[contractx.ClassifyRequest, triageOutput]
}

var _ contractx.Dispatcher = (*dispatcherImpl)(nil)

func newDispatcher(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*dispatcherImpl, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: dispatcher", contractx.ErrPromptMissing)
	}
	runner, err := compileDispatcherGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile dispatcher graph: %v", contractx.ErrModelInvoke, err)
	}
	return &dispatcherImpl{runner: runner}, nil
}

// Classify never defaults an intent when the model call itself fails.
func (d *dispatcherImpl) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.ClassifyResponse, error) {
	req.History = lastN(req.History, memoryx.TriageWindow)

	out, err := d.runner.Invoke(ctx, req)
	if err != nil {
		return contractx.ClassifyResponse{}, fmt.Errorf("%w: %v", contractx.ErrClassification, err)
	}

	log.Debug().
		Str("intent", string(out.Intent)).
		Str("raw", out.Raw).
		Int("history", len(req.History)).
		Msg("dispatcher classified message")

	return contractx.ClassifyResponse{
		Intent:  out.Intent,
		Message: req.Message,
		History: req.History,
		Raw:     out.Raw,
	}, nil
}

// ParseLabel finds the bracket label in a dispatcher answer. When several
// labels appear, payment wins over compliance, and anything else is info.
func ParseLabel(raw string) contractx.Intent {
	lower := strings.ToLower(raw)
	for _, intent := range contractx.Intents {
		if strings.Contains(lower, intent.Label()) {
			return intent
		}
	}
	return contractx.IntentInfo
}

func formatTriageInput(req contractx.ClassifyRequest) string {
	var b strings.Builder
	if len(req.History) > 0 {
		b.WriteString("Historique récent :\n")
		for _, m := range req.History {
			b.WriteString(historyLine(m))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString("Dernier message du client :\n")
	b.WriteString(strings.TrimSpace(req.Message))
	return b.String()
}

func historyLine(m contractx.Message) string {
	speaker := "Client"
	if m.Role == contractx.RoleAssistant {
		speaker = "Assistant"
	}
	return speaker + ": " + strings.TrimSpace(m.Content)
}

func lastN(msgs []contractx.Message, n int) []contractx.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
