package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"
	contractx "github.com/tanpawarit/chative-fintech-support/agent/contract"
)

const (
	ToolCurrentTime         = "get_current_time"
	ToolTransactionStatus   = "check_transaction_status"
	ToolKYCStatus           = "check_kyc_status"
	ToolLogDispute          = "log_dispute"
	ToolSearchDocumentation = "search_documentation"
	ToolCreateCRMTicket     = "create_crm_ticket"
	ToolEstimateFees        = "estimate_fees"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// typedTool adapts a strongly typed run function to eino's InvokableTool.
// Input that fails decoding or validation yields an error envelope instead of
// a Go error, so the model can correct itself and the turn keeps going.
type typedTool[In any, Out any] struct {
	info *schema.ToolInfo
	run  func(ctx context.Context, in In) Out
}

var _ einotool.InvokableTool = (*typedTool[struct{}, struct{}])(nil)

func newTypedTool[In any, Out any](info *schema.ToolInfo, run func(ctx context.Context, in In) Out) *typedTool[In, Out] {
	return &typedTool[In, Out]{info: info, run: run}
}

func (t *typedTool[In, Out]) Info(context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *typedTool[In, Out]) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...einotool.Option) (string, error) {
	var in In
	if err := decodeArgs(argumentsInJSON, &in); err != nil {
		return encode(contractx.ToolResult{Tool: t.info.Name, Error: err.Error()})
	}
	return encode(t.run(ctx, in))
}

func decodeArgs(raw string, dst any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(parts, "; "))
}

func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode tool output: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
