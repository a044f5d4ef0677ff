package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

// WriteMemory commits the user message and the delivered reply together. It
// runs only after generation completed; a store failure is logged and the
// reply is still delivered.
func WriteMemory(
	ctx context.Context,
	in *GraphState,
	memory contractx.MemoryStore,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if memory == nil {
		return in, nil
	}

	thread := contractx.Thread{
		ID:         in.ThreadID,
		ResourceID: in.ResourceID,
		Channel:    in.Channel,
	}
	err := memory.AppendTurn(ctx, thread,
		contractx.Message{Role: contractx.RoleUser, Content: in.Text, CreatedAt: in.Now},
		contractx.Message{Role: contractx.RoleAssistant, Content: in.Reply},
	)
	if err != nil {
		log.Error().Err(err).Str("thread_id", in.ThreadID).Str("resource_id", in.ResourceID).Msg("write memory failed")
	}
	return in, nil
}
