package executor

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/rpacore/engine/pkg/execctx"
)

// ConditionalExecutor compares two resolved operands under a named
// comparator and returns branch="true"/"false" — always Success=true
// per spec §4.4 ("Executor compares two operands ... returns
// branch=... with success=true regardless").
//
// Comparators beyond the built-in set fall through to an arbitrary
// boolean github.com/expr-lang/expr expression supplied as "expression",
// evaluated with left/right bound into its environment — the same
// engine the teacher's pkg/expression wraps (expr.Compile +
// expr.AsBool() + expr.Run).
type ConditionalExecutor struct{}

func (ConditionalExecutor) ModuleType() string { return "conditional" }

func (ConditionalExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["comparator"]; !ok {
		if _, ok := config["expression"]; !ok {
			return fmt.Errorf("conditional: requires either %q or %q", "comparator", "expression")
		}
	}
	return nil
}

func (ConditionalExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	left, err := resolveField(config, "left", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	right, err := resolveField(config, "right", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	comparator, _ := config["comparator"].(string)
	var met bool
	if comparator != "" {
		met, err = evaluateComparator(comparator, left, right)
	} else {
		exprStr, _ := config["expression"].(string)
		met, err = evaluateBooleanExpr(exprStr, left, right)
	}
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	branch := "false"
	if met {
		branch = "true"
	}
	return Result{Success: true, Branch: branch, Data: met}, nil
}

func resolveField(config map[string]interface{}, key string, ec *execctx.Context) (interface{}, error) {
	raw, ok := config[key]
	if !ok {
		return nil, nil
	}
	if s, ok := raw.(string); ok {
		return ec.ResolveReference(s)
	}
	return raw, nil
}

func evaluateComparator(comparator string, left, right interface{}) (bool, error) {
	switch comparator {
	case "equals":
		return fmt.Sprint(left) == fmt.Sprint(right), nil
	case "gt":
		return evaluateBooleanExpr("left > right", left, right)
	case "lt":
		return evaluateBooleanExpr("left < right", left, right)
	case "contains":
		return evaluateBooleanExpr(`left contains right`, left, right)
	case "matches_regex":
		return evaluateBooleanExpr(`left matches right`, left, right)
	case "exists":
		return left != nil, nil
	default:
		return false, fmt.Errorf("conditional: unknown comparator %q", comparator)
	}
}

func evaluateBooleanExpr(exprStr string, left, right interface{}) (bool, error) {
	env := map[string]interface{}{"left": left, "right": right}
	program, err := expr.Compile(exprStr, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("conditional: compiling expression %q: %w", exprStr, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("conditional: running expression %q: %w", exprStr, err)
	}
	result, _ := output.(bool)
	return result, nil
}
