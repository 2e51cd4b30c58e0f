package executor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rpacore/engine/pkg/execctx"
)

// Loop header executors compute per-iteration bookkeeping and report
// whether the loop is done; the scheduler (pkg/scheduler), not the
// executor, owns the control-flow decision of re-entering the body or
// falling through to the default edge (spec §4.4's "Special control
// modules recognized by the scheduler").

// LoopRangeExecutor iterates start..stop by step, binding the current
// value to config["bind"] (default "i") each pass.
type LoopRangeExecutor struct{}

func (LoopRangeExecutor) ModuleType() string { return "loop_range" }

func (LoopRangeExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["stop"]; !ok {
		return fmt.Errorf("loop_range: missing required field %q", "stop")
	}
	return nil
}

func (LoopRangeExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	bind := stringOr(config["bind"], "i")
	start := intOr(config["start"], 0)
	stop := intOr(config["stop"], 0)
	step := intOr(config["step"], 1)
	if step == 0 {
		return Result{Success: false, Error: "loop_range: step must not be zero"}, nil
	}

	frame := ec.CurrentLoop()
	index := start
	if frame != nil && frame.HeaderNodeID == bind {
		index = frame.Index + step
	}

	done := (step > 0 && index >= stop) || (step < 0 && index <= stop)
	if done {
		ec.PopLoop()
		return Result{Success: true, Branch: "false", Data: map[string]interface{}{"done": true}}, nil
	}

	if frame == nil || frame.HeaderNodeID != bind {
		ec.PushLoop(&execctx.LoopFrame{HeaderNodeID: bind, Index: index, Limit: stop, OnError: onErrorOr(config)})
	} else {
		frame.Index = index
	}
	ec.SetVariable(bind, index)
	return Result{Success: true, Branch: "true", Data: map[string]interface{}{"done": false, "value": index}}, nil
}

// LoopListExecutor iterates over a resolved list, binding the current
// element to config["bind"] (default "item") and its index to
// config["bind"]+"_index".
type LoopListExecutor struct{}

func (LoopListExecutor) ModuleType() string { return "loop_list" }

func (LoopListExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["list"]; !ok {
		return fmt.Errorf("loop_list: missing required field %q", "list")
	}
	return nil
}

func (LoopListExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	bind := stringOr(config["bind"], "item")

	frame := ec.CurrentLoop()
	var items []interface{}
	index := 0
	if frame != nil && frame.HeaderNodeID == bind {
		items = frame.IteratorValues
		index = frame.Index + 1
	} else {
		raw, err := resolveField(config, "list", ec)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		list, ok := raw.([]interface{})
		if !ok {
			return Result{Success: false, Error: "loop_list: \"list\" did not resolve to a list"}, nil
		}
		items = list
	}

	if index >= len(items) {
		ec.PopLoop()
		return Result{Success: true, Branch: "false", Data: map[string]interface{}{"done": true}}, nil
	}

	if frame == nil || frame.HeaderNodeID != bind {
		ec.PushLoop(&execctx.LoopFrame{HeaderNodeID: bind, Index: index, IteratorValues: items, OnError: onErrorOr(config)})
	} else {
		frame.Index = index
	}
	ec.SetVariable(bind, items[index])
	ec.SetVariable(bind+"_index", index)
	return Result{Success: true, Branch: "true", Data: map[string]interface{}{"done": false, "value": items[index]}}, nil
}

// LoopWhileExecutor re-enters its body while a boolean config field
// (already resolved by the Conditional comparator grammar) is true.
type LoopWhileExecutor struct{}

func (LoopWhileExecutor) ModuleType() string { return "loop_while" }

func (LoopWhileExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["comparator"]; !ok {
		if _, ok := config["expression"]; !ok {
			return fmt.Errorf("loop_while: requires either %q or %q", "comparator", "expression")
		}
	}
	return nil
}

func (LoopWhileExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	left, err := resolveField(config, "left", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	right, err := resolveField(config, "right", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	var met bool
	if comparator, _ := config["comparator"].(string); comparator != "" {
		met, err = evaluateComparator(comparator, left, right)
	} else {
		exprStr, _ := config["expression"].(string)
		met, err = evaluateBooleanExpr(exprStr, left, right)
	}
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	if !met {
		if ec.CurrentLoop() != nil {
			ec.PopLoop()
		}
		return Result{Success: true, Branch: "false", Data: map[string]interface{}{"done": true}}, nil
	}
	if ec.CurrentLoop() == nil {
		ec.PushLoop(&execctx.LoopFrame{HeaderNodeID: "while", OnError: onErrorOr(config)})
	}
	return Result{Success: true, Branch: "true", Data: map[string]interface{}{"done": false}}, nil
}

// LoopEndExecutor marks the loop-body terminator the scheduler jumps
// back from to the loop header.
type LoopEndExecutor struct{}

func (LoopEndExecutor) ModuleType() string                           { return "loop_end" }
func (LoopEndExecutor) Validate(config map[string]interface{}) error { return nil }
func (LoopEndExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	return Result{Success: true}, nil
}

func stringOr(v interface{}, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// onErrorOr reads config["on_error"] (spec §4.4(h) / §9's per-loop
// "stop" | "continue" option), defaulting to "stop" for anything else.
func onErrorOr(config map[string]interface{}) string {
	if s, ok := config["on_error"].(string); ok && s == "continue" {
		return "continue"
	}
	return "stop"
}

func intOr(v interface{}, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
		return def
	default:
		return def
	}
}
