package specialist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	memoryx "github.com/tanpawarit/chative-fintech-support/agent/memory"
)

const (
	defaultMaxToolRounds = 4
	streamBuffer         = 32
)

type specialistImpl struct {
	intent       contractx.Intent
	systemPrompt string
	// toolModel has the capability set bound; baseModel is used for the last
	// round so the loop always ends with text.
	toolModel     einomodel.ToolCallingChatModel
	baseModel     einomodel.BaseChatModel
	tools         map[string]einotool.InvokableTool
	memory        contractx.MemoryStore
	historyWindow int
	maxToolRounds int
}

var _ contractx.Specialist = (*specialistImpl)(nil)

type specialistConfig struct {
	intent        contractx.Intent
	chatModel     einomodel.ToolCallingChatModel
	systemPrompt  string
	tools         []einotool.InvokableTool
	memory        contractx.MemoryStore
	maxToolRounds int
}

func newSpecialist(ctx context.Context, cfg specialistConfig) (*specialistImpl, error) {
	if strings.TrimSpace(cfg.systemPrompt) == "" {
		return nil, fmt.Errorf("%w: specialist=%s", contractx.ErrPromptMissing, cfg.intent)
	}
	if cfg.chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required for specialist=%s", contractx.ErrValidation, cfg.intent)
	}

	infos := make([]*schema.ToolInfo, 0, len(cfg.tools))
	allowed := make(map[string]einotool.InvokableTool, len(cfg.tools))
	for _, t := range cfg.tools {
		if t == nil {
			continue
		}
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("read tool info for specialist=%s: %w", cfg.intent, err)
		}
		if info == nil || strings.TrimSpace(info.Name) == "" {
			continue
		}
		infos = append(infos, info)
		allowed[info.Name] = t
	}

	toolModel := cfg.chatModel
	if len(infos) > 0 {
		bound, err := cfg.chatModel.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools for specialist=%s: %v", contractx.ErrModelInvoke, cfg.intent, err)
		}
		toolModel = bound
	}

	rounds := cfg.maxToolRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}

	return &specialistImpl{
		intent:        cfg.intent,
		systemPrompt:  cfg.systemPrompt,
		toolModel:     toolModel,
		baseModel:     cfg.chatModel,
		tools:         allowed,
		memory:        cfg.memory,
		historyWindow: memoryx.DefaultWindow,
		maxToolRounds: rounds,
	}, nil
}

func (s *specialistImpl) Intent() contractx.Intent {
	return s.intent
}

func (s *specialistImpl) Generate(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	msgs, err := s.prepare(ctx, req)
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}

	var records []contractx.ToolCallRecord
	for round := 0; ; round++ {
		model := einomodel.BaseChatModel(s.toolModel)
		if round >= s.maxToolRounds {
			model = s.baseModel
		}

		out, err := model.Generate(ctx, msgs)
		if err != nil {
			return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist=%s generate: %v", contractx.ErrModelInvoke, s.intent, err)
		}
		if out == nil {
			return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist=%s returned no message", contractx.ErrSchemaViolation, s.intent)
		}

		// An empty answer is returned as is; the orchestrator substitutes its
		// fallback reply on both the blocking and the streaming path.
		if len(out.ToolCalls) == 0 || round >= s.maxToolRounds {
			message := strings.TrimSpace(out.Content)
			if message == "" {
				log.Warn().Str("specialist", string(s.intent)).Str("thread_id", req.ThreadID).Msg("model returned an empty reply")
			}
			return contractx.SpecialistResponse{Message: message, ToolCalls: records}, nil
		}

		toolMsgs, calls := s.runTools(ctx, req, out.ToolCalls)
		records = append(records, calls...)
		msgs = append(msgs, out)
		msgs = append(msgs, toolMsgs...)
	}
}

// Stream forwards text chunks as the model produces them. Tool calls are
// resolved between rounds; the caller sees only assistant text.
func (s *specialistImpl) Stream(ctx context.Context, req contractx.SpecialistRequest) (*schema.StreamReader[string], error) {
	msgs, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[string](streamBuffer)
	go func() {
		defer sw.Close()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("specialist", string(s.intent)).Msg("specialist stream panicked")
				sw.Send("", fmt.Errorf("%w: specialist=%s stream panicked", contractx.ErrModelInvoke, s.intent))
			}
		}()

		for round := 0; ; round++ {
			model := einomodel.BaseChatModel(s.toolModel)
			if round >= s.maxToolRounds {
				model = s.baseModel
			}

			out, closed, err := s.streamRound(ctx, model, msgs, sw)
			if closed {
				log.Debug().Str("specialist", string(s.intent)).Msg("stream consumer went away")
				return
			}
			if err != nil {
				sw.Send("", err)
				return
			}
			if out == nil || len(out.ToolCalls) == 0 || round >= s.maxToolRounds {
				return
			}

			toolMsgs, _ := s.runTools(ctx, req, out.ToolCalls)
			msgs = append(msgs, out)
			msgs = append(msgs, toolMsgs...)
		}
	}()

	return sr, nil
}

// streamRound relays one model stream and returns the concatenated message so
// tool calls split across chunks can be read back.
func (s *specialistImpl) streamRound(
	ctx context.Context,
	model einomodel.BaseChatModel,
	msgs []*schema.Message,
	sw *schema.StreamWriter[string],
) (*schema.Message, bool, error) {
	stream, err := model.Stream(ctx, msgs)
	if err != nil {
		return nil, false, fmt.Errorf("%w: specialist=%s stream: %v", contractx.ErrModelInvoke, s.intent, err)
	}
	defer stream.Close()

	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: specialist=%s stream recv: %v", contractx.ErrModelInvoke, s.intent, err)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			if closed := sw.Send(chunk.Content, nil); closed {
				return nil, true, nil
			}
		}
	}

	if len(chunks) == 0 {
		return nil, false, nil
	}
	out, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, false, fmt.Errorf("%w: specialist=%s concat stream: %v", contractx.ErrSchemaViolation, s.intent, err)
	}
	return out, false, nil
}

func (s *specialistImpl) prepare(ctx context.Context, req contractx.SpecialistRequest) ([]*schema.Message, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: specialist message is required", contractx.ErrValidation)
	}

	history, err := s.history(ctx, req)
	if err != nil {
		return nil, err
	}
	msgs := []*schema.Message{schema.SystemMessage(s.systemPrompt)}
	msgs = append(msgs, history...)
	msgs = append(msgs, schema.UserMessage(message))
	return msgs, nil
}

// history is best effort: a store outage degrades to a context-free answer.
// Only a thread owned by another resource is an error.
func (s *specialistImpl) history(ctx context.Context, req contractx.SpecialistRequest) ([]*schema.Message, error) {
	if s.memory == nil || strings.TrimSpace(req.ThreadID) == "" {
		return nil, nil
	}
	if strings.TrimSpace(req.ResourceID) == "" {
		return nil, fmt.Errorf("%w: resource id is required to read thread history", contractx.ErrValidation)
	}
	stored, err := s.memory.LoadHistory(ctx, req.ThreadID, req.ResourceID, s.historyWindow)
	if errors.Is(err, contractx.ErrThreadOwnership) {
		return nil, err
	}
	if err != nil {
		log.Warn().Err(err).Str("thread_id", req.ThreadID).Str("specialist", string(s.intent)).Msg("load history failed")
		return nil, nil
	}

	out := make([]*schema.Message, 0, len(stored))
	for _, m := range stored {
		switch m.Role {
		case contractx.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case contractx.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out, nil
}

// runTools executes every call of one model round. A call outside the
// capability set or a failing tool is reported back to the model as an error
// envelope so generation can continue.
func (s *specialistImpl) runTools(
	ctx context.Context,
	req contractx.SpecialistRequest,
	calls []schema.ToolCall,
) ([]*schema.Message, []contractx.ToolCallRecord) {
	msgs := make([]*schema.Message, 0, len(calls))
	records := make([]contractx.ToolCallRecord, 0, len(calls))

	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		args := strings.TrimSpace(call.Function.Arguments)
		if args == "" {
			args = "{}"
		}

		logger := log.With().
			Str("thread_id", req.ThreadID).
			Str("specialist", string(s.intent)).
			Str("tool", name).
			Logger()

		var output string
		t, ok := s.tools[name]
		if !ok {
			logger.Warn().Msg("tool call outside capability set")
			output = toolError(name, "tool is not available for this assistant")
		} else {
			result, err := t.InvokableRun(ctx, args)
			if err != nil {
				logger.Warn().Err(err).Msg("tool execution failed")
				output = toolError(name, "tool execution failed")
			} else {
				logger.Info().Str("args", args).Msg("tool executed")
				output = result
			}
		}

		msgs = append(msgs, schema.ToolMessage(output, call.ID))
		records = append(records, contractx.ToolCallRecord{Tool: name, Arguments: args, Output: output})
	}
	return msgs, records
}

func toolError(name, reason string) string {
	raw, err := json.Marshal(contractx.ToolResult{Tool: name, Error: reason})
	if err != nil {
		return `{"error":"tool execution failed"}`
	}
	return string(raw)
}
