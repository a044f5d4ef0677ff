package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	guardx "github.com/tanpawarit/chative-fintech-support/agent/guard"
	nodex "github.com/tanpawarit/chative-fintech-support/agent/nodes/orchestrator"
)

var (
	ErrInvalidThread   = nodex.ErrInvalidThread
	ErrInvalidResource = nodex.ErrInvalidResource
)

// commitTimeout bounds the memory write after a stream completed, which runs
// detached from the request context.
const commitTimeout = 5 * time.Second

var newThreadID = func() string {
	return uuid.NewString()
}

type Orchestrator struct {
	models  contractx.Registry
	memory  contractx.MemoryStore
	media   contractx.MediaNormalizer
	refunds *guardx.RefundGuard
	locks   *threadLocks

	graphRunner  compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
	triageRunner compose.Runnable[nodex.GraphInput, *nodex.GraphState]

	now func() time.Time
}

// New builds the per-turn pipeline. A nil media normalizer ignores
// attachments; a nil memory store keeps no history.
func New(
	models contractx.Registry,
	memory contractx.MemoryStore,
	media contractx.MediaNormalizer,
	refunds *guardx.RefundGuard,
) (*Orchestrator, error) {
	if models == nil {
		return nil, errors.New("model registry is required")
	}
	if refunds == nil {
		refunds = guardx.NewRefundGuard()
	}

	o := &Orchestrator{
		models:  models,
		memory:  memory,
		media:   media,
		refunds: refunds,
		locks:   newThreadLocks(),
		now:     time.Now,
	}

	ctx := context.Background()
	graphRunner, err := o.compileHandleMessageGraph(ctx)
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	triageRunner, err := o.compileTriageGraph(ctx)
	if err != nil {
		return nil, err
	}
	o.triageRunner = triageRunner

	return o, nil
}

// HandleMessage runs a whole turn and returns the full reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, req contractx.TurnRequest) (contractx.TurnResult, error) {
	req = nodex.ResolveIdentity(req, newThreadID)
	started := o.now()

	release, err := o.locks.Acquire(ctx, req.ThreadID)
	if err != nil {
		return contractx.TurnResult{}, err
	}
	defer release()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{Request: req})
	if err != nil {
		log.Error().Err(err).
			Str("thread_id", req.ThreadID).
			Str("resource_id", req.ResourceID).
			Str("channel", string(req.Channel)).
			Msg("turn failed")
		return contractx.TurnResult{ThreadID: req.ThreadID, ResourceID: req.ResourceID}, err
	}

	log.Info().
		Str("thread_id", out.ThreadID).
		Str("resource_id", out.ResourceID).
		Str("channel", string(req.Channel)).
		Str("intent", string(out.Intent)).
		Int("tool_calls", len(out.ToolCalls)).
		Bool("flagged", out.Flagged).
		Dur("duration", o.now().Sub(started)).
		Msg("turn completed")
	return out, nil
}

// StreamMessage classifies the turn and starts generation. Intent and thread
// id are known before the first chunk. The thread stays locked until the
// stream ends or is closed; memory is written only when it ends normally.
func (o *Orchestrator) StreamMessage(ctx context.Context, req contractx.TurnRequest) (*TurnStream, error) {
	req = nodex.ResolveIdentity(req, newThreadID)

	release, err := o.locks.Acquire(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	state, err := o.triageRunner.Invoke(ctx, nodex.GraphInput{Request: req})
	if err != nil {
		release()
		log.Error().Err(err).
			Str("thread_id", req.ThreadID).
			Str("channel", string(req.Channel)).
			Msg("turn triage failed")
		return nil, err
	}

	reader, err := state.Specialist.Stream(ctx, nodex.SpecialistRequest(state))
	if err != nil {
		release()
		log.Error().Err(err).
			Str("thread_id", state.ThreadID).
			Str("intent", string(state.Intent)).
			Msg("specialist stream failed to start")
		return nil, err
	}

	log.Info().
		Str("thread_id", state.ThreadID).
		Str("resource_id", state.ResourceID).
		Str("channel", string(state.Channel)).
		Str("intent", string(state.Intent)).
		Msg("turn streaming")

	return &TurnStream{
		ThreadID:   state.ThreadID,
		ResourceID: state.ResourceID,
		Intent:     state.Intent,
		reader:     reader,
		filter:     o.refunds.NewFilter(),
		commit: func(reply string, flagged bool) {
			state.Reply = reply
			state.Flagged = flagged
			commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
			defer cancel()
			_, _ = nodex.WriteMemory(commitCtx, state, o.memory)
			if flagged {
				log.Warn().Str("thread_id", state.ThreadID).Str("intent", string(state.Intent)).Msg("refund claim rewritten in streamed reply")
			}
		},
		release: release,
	}, nil
}
