package executor

import (
	"context"
	"fmt"

	"github.com/rpacore/engine/pkg/execctx"
)

// SubflowCallExecutor names the subflow to jump into; the scheduler
// resolves "name" (preferred) or "group_id" against the workflow graph
// and pushes the return address before jumping (spec §4.4: "Subflows
// may be referenced by group id or by human-readable name (name takes
// precedence...)").
type SubflowCallExecutor struct{}

func (SubflowCallExecutor) ModuleType() string { return "subflow_call" }

func (SubflowCallExecutor) Validate(config map[string]interface{}) error {
	_, hasName := config["name"]
	_, hasGroup := config["group_id"]
	if !hasName && !hasGroup {
		return fmt.Errorf("subflow_call: requires either %q or %q", "name", "group_id")
	}
	return nil
}

func (SubflowCallExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	target, _ := config["name"].(string)
	if target == "" {
		target, _ = config["group_id"].(string)
	}
	return Result{Success: true, Data: map[string]interface{}{"target": target}}, nil
}

// EndSubflowExecutor pops the call frame; the scheduler resumes at the
// saved return address.
type EndSubflowExecutor struct{}

func (EndSubflowExecutor) ModuleType() string                           { return "end_subflow" }
func (EndSubflowExecutor) Validate(config map[string]interface{}) error { return nil }
func (EndSubflowExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	return Result{Success: true}, nil
}
