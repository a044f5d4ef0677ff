package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/chative-fintech-support/agent/nodes/orchestrator"
)

// addTriageNodes registers the nodes shared by the blocking and streaming
// pipelines, from request validation up to specialist selection.
func addTriageNodes[O any](o *Orchestrator, graph *compose.Graph[nodex.GraphInput, O]) error {
	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("normalize_media",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.NormalizeMedia(ctx, in, o.media)
		}),
	); err != nil {
		return fmt.Errorf("add node normalize_media: %w", err)
	}

	if err := graph.AddLambdaNode("read_history",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ReadHistory(ctx, in, o.memory)
		}),
	); err != nil {
		return fmt.Errorf("add node read_history: %w", err)
	}

	if err := graph.AddLambdaNode("classify",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Classify(ctx, in, o.models.Dispatcher())
		}),
	); err != nil {
		return fmt.Errorf("add node classify: %w", err)
	}

	if err := graph.AddLambdaNode("select_specialist",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SelectSpecialist(in, o.models)
		}),
	); err != nil {
		return fmt.Errorf("add node select_specialist: %w", err)
	}

	return addEdges(graph, [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "normalize_media"},
		{"normalize_media", "read_history"},
		{"read_history", "classify"},
		{"classify", "select_specialist"},
	})
}

func addEdges[O any](graph *compose.Graph[nodex.GraphInput, O], edges [][2]string) error {
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()
	if err := addTriageNodes(o, graph); err != nil {
		return nil, err
	}

	if err := graph.AddLambdaNode("dispatch_specialist",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DispatchSpecialist(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_specialist: %w", err)
	}

	if err := graph.AddLambdaNode("guard_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.GuardReply(in, o.refunds)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node guard_reply: %w", err)
	}

	if err := graph.AddLambdaNode("write_memory",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.WriteMemory(ctx, in, o.memory)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node write_memory: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	if err := addEdges(graph, [][2]string{
		{"select_specialist", "dispatch_specialist"},
		{"dispatch_specialist", "guard_reply"},
		{"guard_reply", "write_memory"},
		{"write_memory", "finalize_reply"},
		{"finalize_reply", compose.END},
	}); err != nil {
		return nil, err
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}

// compileTriageGraph stops once the specialist is known; the streaming path
// drives generation itself.
func (o *Orchestrator) compileTriageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, *nodex.GraphState], error) {
	graph := compose.NewGraph[nodex.GraphInput, *nodex.GraphState]()
	if err := addTriageNodes(o, graph); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("select_specialist", compose.END); err != nil {
		return nil, fmt.Errorf("add edge select_specialist->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.triage"))
	if err != nil {
		return nil, fmt.Errorf("compile triage graph: %w", err)
	}
	return runner, nil
}
