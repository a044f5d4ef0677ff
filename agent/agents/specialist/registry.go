package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
	llmx "github.com/tanpawarit/chative-fintech-support/agent/llm"
	promptx "github.com/tanpawarit/chative-fintech-support/agent/prompt"
	tenantx "github.com/tanpawarit/chative-fintech-support/agent/tenant"
	toolx "github.com/tanpawarit/chative-fintech-support/agent/tool"
)

// ModelFactory builds the chat model serving one role.
type ModelFactory func(ctx context.Context, role llmx.Role) (einomodel.ToolCallingChatModel, error)

// LLMModels builds every role's model from the provider configuration.
func LLMModels(cfg llmx.Config) ModelFactory {
	return func(ctx context.Context, role llmx.Role) (einomodel.ToolCallingChatModel, error) {
		modelCfg := cfg.ModelFor(role)
		return modelCfg.New(ctx)
	}
}

type Options struct {
	Tenant        tenantx.Config
	Tools         *toolx.Registry
	Capabilities  toolx.CapabilitySet
	Memory        contractx.MemoryStore
	Models        ModelFactory
	MaxToolRounds int
}

type registryImpl struct {
	dispatcher  contractx.Dispatcher
	specialists map[contractx.Intent]contractx.Specialist
}

func (r *registryImpl) Dispatcher() contractx.Dispatcher {
	return r.dispatcher
}

func (r *registryImpl) Specialist(intent contractx.Intent) (contractx.Specialist, bool) {
	s, ok := r.specialists[intent]
	return s, ok
}

// NewRegistry wires the dispatcher and one specialist per tenant intent.
// Unknown tool identifiers in the capability set fail here, not mid-turn.
func NewRegistry(ctx context.Context, opts Options) (contractx.Registry, error) {
	if opts.Models == nil {
		return nil, fmt.Errorf("%w: model factory is required", contractx.ErrValidation)
	}
	if opts.Tools == nil {
		return nil, fmt.Errorf("%w: tool registry is required", contractx.ErrValidation)
	}
	caps := opts.Capabilities
	if caps == nil {
		caps = toolx.DefaultCapabilities()
	}

	prompts := promptx.Generate(opts.Tenant)
	intents := opts.Tenant.Intents()

	bound, err := opts.Tools.Bind(caps, intents)
	if err != nil {
		return nil, err
	}

	dispatcherModel, err := opts.Models(ctx, llmx.RoleDispatcher)
	if err != nil {
		return nil, fmt.Errorf("%w: create dispatcher model: %v", contractx.ErrModelInvoke, err)
	}
	dispatcher, err := newDispatcher(ctx, dispatcherModel, prompts.Dispatcher)
	if err != nil {
		return nil, err
	}

	specialists := make(map[contractx.Intent]contractx.Specialist, len(intents))
	for _, intent := range intents {
		systemPrompt, ok := prompts.For(intent)
		if !ok {
			return nil, fmt.Errorf("%w: specialist=%s", contractx.ErrPromptMissing, intent)
		}
		chatModel, err := opts.Models(ctx, llmx.RoleFor(intent))
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, intent, err)
		}
		spec, err := newSpecialist(ctx, specialistConfig{
			intent:        intent,
			chatModel:     chatModel,
			systemPrompt:  systemPrompt,
			tools:         bound[intent],
			memory:        opts.Memory,
			maxToolRounds: opts.MaxToolRounds,
		})
		if err != nil {
			return nil, err
		}
		specialists[intent] = spec
		log.Info().Str("specialist", string(intent)).Strs("tools", caps[intent]).Msg("specialist registered")
	}

	return &registryImpl{
		dispatcher:  dispatcher,
		specialists: specialists,
	}, nil
}
