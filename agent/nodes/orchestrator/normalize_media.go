package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

func NormalizeMedia(
	ctx context.Context,
	in *GraphState,
	media contractx.MediaNormalizer,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.Attachment != nil && media != nil {
		in.Text = media.Normalize(ctx, in.Text, in.Attachment)
	}
	if strings.TrimSpace(in.Text) == "" {
		in.Text = EmptyMessagePlaceholder
	}
	return in, nil
}
