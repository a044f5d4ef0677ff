package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	memoryx "github.com/tanpawarit/chative-fintech-support/agent/memory"
)

// ReadHistory loads the thread's most recent messages for the dispatcher,
// scoped to the caller's resource. History supplied with the request wins
// over the stored one, but the store is still consulted so that a thread
// owned by another resource fails the turn with ErrThreadOwnership. Any other
// store failure only costs the dispatcher its context.
func ReadHistory(
	ctx context.Context,
	in *GraphState,
	memory contractx.MemoryStore,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	supplied := in.History
	if len(supplied) > memoryx.TriageWindow {
		supplied = supplied[len(supplied)-memoryx.TriageWindow:]
	}
	in.History = supplied
	if memory == nil {
		return in, nil
	}

	stored, err := memory.LoadHistory(ctx, in.ThreadID, in.ResourceID, memoryx.TriageWindow)
	if errors.Is(err, contractx.ErrThreadOwnership) {
		log.Warn().Str("thread_id", in.ThreadID).Str("resource_id", in.ResourceID).Msg("thread owned by another resource")
		return nil, err
	}
	if err != nil {
		log.Warn().Err(err).Str("thread_id", in.ThreadID).Msg("read triage history failed")
		return in, nil
	}
	if len(supplied) == 0 {
		in.History = stored
	}
	return in, nil
}
