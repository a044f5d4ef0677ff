package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

// Registry maps stable tool identifiers to their implementations.
type Registry struct {
	tools map[string]einotool.InvokableTool
}

func NewRegistry(ctx context.Context, tools ...einotool.InvokableTool) (*Registry, error) {
	r := &Registry{tools: make(map[string]einotool.InvokableTool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("read tool info: %w", err)
		}
		name := strings.TrimSpace(info.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool name is empty", contractx.ErrValidation)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool=%s", contractx.ErrValidation, name)
		}
		r.tools[name] = t
	}
	return r, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the implementations for ids, in order. Any unknown id fails
// the whole call.
func (r *Registry) Resolve(ids []string) ([]einotool.InvokableTool, error) {
	out := make([]einotool.InvokableTool, 0, len(ids))
	for _, id := range ids {
		t, ok := r.tools[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", contractx.ErrToolUnknown, id)
		}
		out = append(out, t)
	}
	return out, nil
}

// CapabilitySet declares which tool identifiers each specialist may invoke.
// The dispatcher never appears here.
type CapabilitySet map[contractx.Intent][]string

func DefaultCapabilities() CapabilitySet {
	return CapabilitySet{
		contractx.IntentInfo: {
			ToolCurrentTime,
			ToolSearchDocumentation,
			ToolCreateCRMTicket,
		},
		contractx.IntentPayment: {
			ToolCurrentTime,
			ToolTransactionStatus,
			ToolLogDispute,
			ToolEstimateFees,
			ToolCreateCRMTicket,
		},
		contractx.IntentCompliance: {
			ToolCurrentTime,
			ToolKYCStatus,
			ToolCreateCRMTicket,
		},
	}
}

// Bind resolves the capability set of every requested intent.
func (r *Registry) Bind(caps CapabilitySet, intents []contractx.Intent) (map[contractx.Intent][]einotool.InvokableTool, error) {
	out := make(map[contractx.Intent][]einotool.InvokableTool, len(intents))
	for _, intent := range intents {
		ids, ok := caps[intent]
		if !ok {
			return nil, fmt.Errorf("%w: no capability set for intent=%s", contractx.ErrValidation, intent)
		}
		tools, err := r.Resolve(ids)
		if err != nil {
			return nil, fmt.Errorf("bind intent=%s: %w", intent, err)
		}
		out[intent] = tools
	}
	return out, nil
}
