package executor

import (
	"context"
	"fmt"

	"github.com/rpacore/engine/pkg/execctx"
)

// SetVariableExecutor writes a resolved value into a named variable.
// Grounded on original_source/backend/app/executors/basic_variable.py's
// SetVariableExecutor.
type SetVariableExecutor struct{}

func (SetVariableExecutor) ModuleType() string { return "set_variable" }

func (SetVariableExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["name"]; !ok {
		return fmt.Errorf("set_variable: missing required field %q", "name")
	}
	return nil
}

func (SetVariableExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	name, _ := config["name"].(string)
	if name == "" {
		return Result{Success: false, Error: "set_variable: missing required field \"name\""}, nil
	}
	raw := config["value"]
	resolved := raw
	if s, ok := raw.(string); ok {
		r, err := ec.Resolve(s)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		resolved = r
	}
	ec.SetVariable(name, resolved)
	return Result{Success: true, Message: fmt.Sprintf("set %s", name), Data: resolved}, nil
}

// PrintLogExecutor resolves a message and emits it to the log stream at
// a caller-chosen level, grounded on the original's PrintLogExecutor.
type PrintLogExecutor struct{}

func (PrintLogExecutor) ModuleType() string { return "print_log" }

func (PrintLogExecutor) Validate(config map[string]interface{}) error { return nil }

func (PrintLogExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	message, _ := config["message"].(string)
	resolved, err := ec.Resolve(message)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}
	return Result{Success: true, Message: resolved, LogLevel: level}, nil
}

// GroupExecutor is a no-op annotation node used purely for editor-side
// visual grouping (original's GroupExecutor: "always succeeds").
type GroupExecutor struct{}

func (GroupExecutor) ModuleType() string                           { return "group" }
func (GroupExecutor) Validate(config map[string]interface{}) error { return nil }
func (GroupExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	return Result{Success: true}, nil
}
