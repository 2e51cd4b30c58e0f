package executor

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/width"

	"github.com/rpacore/engine/pkg/execctx"
)

// TextOperationExecutor applies a small set of string transforms used
// by form-filling automations; "normalize_width" folds full-width
// characters (common in CJK-locale web forms) down to their half-width
// equivalents via golang.org/x/text/width, wired per SPEC_FULL §3.
type TextOperationExecutor struct{}

func (TextOperationExecutor) ModuleType() string { return "text_operation" }

func (TextOperationExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["text"]; !ok {
		return fmt.Errorf("text_operation: missing required field %q", "text")
	}
	if _, ok := config["op"]; !ok {
		return fmt.Errorf("text_operation: missing required field %q", "op")
	}
	return nil
}

func (TextOperationExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	raw, _ := config["text"].(string)
	text, err := ec.Resolve(raw)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	op, _ := config["op"].(string)
	var out string
	switch op {
	case "normalize_width":
		out = width.Narrow.String(text)
	case "widen":
		out = width.Widen.String(text)
	case "uppercase":
		out = strings.ToUpper(text)
	case "lowercase":
		out = strings.ToLower(text)
	default:
		return Result{Success: false, Error: fmt.Sprintf("text_operation: unknown op %q", op)}, nil
	}

	if name, _ := config["save_as"].(string); name != "" {
		ec.SetVariable(name, out)
	}
	return Result{Success: true, Data: out}, nil
}
