package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

// triageOutput is what the dispatcher graph hands back before the request
// fields are copied onto the response.
type triageOutput struct {
	Intent contractx.Intent
	Raw    string
}

func compileDispatcherGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[contractx.ClassifyRequest, triageOutput], error) {
	graph := compose.NewGraph[contractx.ClassifyRequest, triageOutput]()

	if err := graph.AddLambdaNode("build_messages",
		compose.InvokableLambda(func(ctx context.Context, req contractx.ClassifyRequest) ([]*schema.Message, error) {
			return []*schema.Message{
				schema.SystemMessage(systemPrompt),
				schema.UserMessage(formatTriageInput(req)),
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add dispatcher build node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add dispatcher model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_intent",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (triageOutput, error) {
			if msg == nil {
				return triageOutput{Intent: contractx.IntentInfo}, nil
			}
			raw := strings.TrimSpace(msg.Content)
			return triageOutput{Intent: ParseLabel(raw), Raw: raw}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add dispatcher parse node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "build_messages"); err != nil {
		return nil, fmt.Errorf("add dispatcher edge start->build: %w", err)
	}
	if err := graph.AddEdge("build_messages", "model"); err != nil {
		return nil, fmt.Errorf("add dispatcher edge build->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_intent"); err != nil {
		return nil, fmt.Errorf("add dispatcher edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_intent", compose.END); err != nil {
		return nil, fmt.Errorf("add dispatcher edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("dispatcher.triage_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile dispatcher graph: %w", err)
	}
	return runner, nil
}
