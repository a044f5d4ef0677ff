package orchestratornode

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	guardx "github.com/tanpawarit/chative-fintech-support/agent/guard"
)

// GuardReply rewrites completed-refund claims in a finished reply and flags
// the turn for review.
func GuardReply(in *GraphState, refunds *guardx.RefundGuard) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if strings.TrimSpace(in.Reply) == "" {
		in.Reply = FallbackReply
	}
	if refunds == nil {
		return in, nil
	}

	reply, flagged := refunds.Check(in.Reply)
	if flagged {
		log.Warn().
			Str("thread_id", in.ThreadID).
			Str("intent", string(in.Intent)).
			Msg("refund claim rewritten in reply")
	}
	in.Reply = reply
	in.Flagged = in.Flagged || flagged
	return in, nil
}
