package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	return GraphOutput{
		ThreadID:   in.ThreadID,
		ResourceID: in.ResourceID,
		Intent:     in.Intent,
		Reply:      strings.TrimSpace(in.Reply),
		Flagged:    in.Flagged,
		ToolCalls:  in.ToolCalls,
	}, nil
}
