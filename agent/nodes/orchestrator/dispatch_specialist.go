package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

func Classify(
	ctx context.Context,
	in *GraphState,
	dispatcher contractx.Dispatcher,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher", contractx.ErrNotConfigured)
	}

	resp, err := dispatcher.Classify(ctx, contractx.ClassifyRequest{
		Message: in.Text,
		History: in.History,
	})
	if err != nil {
		return nil, err
	}
	in.Intent = resp.Intent
	return in, nil
}

// SelectSpecialist fails loudly: an intent without a specialist means the
// dispatcher prompt and the registry disagree.
func SelectSpecialist(in *GraphState, models contractx.Registry) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	specialist, ok := models.Specialist(in.Intent)
	if !ok || specialist == nil {
		return nil, fmt.Errorf("%w: intent=%q", contractx.ErrUnmappedIntent, in.Intent)
	}
	in.Specialist = specialist
	return in, nil
}

func SpecialistRequest(in *GraphState) contractx.SpecialistRequest {
	return contractx.SpecialistRequest{
		ThreadID:   in.ThreadID,
		ResourceID: in.ResourceID,
		Message:    in.Text,
	}
}

func DispatchSpecialist(ctx context.Context, in *GraphState) (*GraphState, error) {
	if in == nil || in.Specialist == nil {
		return nil, fmt.Errorf("%w: no specialist selected", contractx.ErrValidation)
	}

	resp, err := in.Specialist.Generate(ctx, SpecialistRequest(in))
	if err != nil {
		return nil, err
	}

	in.Reply = strings.TrimSpace(resp.Message)
	in.ToolCalls = resp.ToolCalls
	return in, nil
}
