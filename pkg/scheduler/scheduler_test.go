package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rpacore/engine/pkg/execctx"
	"github.com/rpacore/engine/pkg/executor"
	"github.com/rpacore/engine/pkg/process"
	"github.com/rpacore/engine/pkg/rendezvous"
	"github.com/rpacore/engine/pkg/store"
	"github.com/rpacore/engine/pkg/telemetry"
	"github.com/rpacore/engine/pkg/workflow"
)

func newScheduler(t *testing.T, wf workflow.Workflow, reg *executor.Registry) (*Scheduler, *execctx.Context) {
	t.Helper()
	g, err := workflow.Index(wf)
	if err != nil {
		t.Fatalf("unexpected error indexing workflow: %v", err)
	}
	ec := execctx.New(store.New(), rendezvous.New(nil), process.New(time.Minute, time.Second, time.Second))
	tm := telemetry.NewManager(nil)
	s := New(g, reg, ec, tm, "run-1", wf.ID, nil)
	return s, ec
}

func linearWorkflow() workflow.Workflow {
	return workflow.Workflow{
		ID:          "wf-1",
		StartNodeID: "a",
		Nodes: []workflow.Node{
			{ID: "a", ModuleType: "set_variable", Config: map[string]interface{}{"name": "x", "value": "1"}},
			{ID: "b", ModuleType: "set_variable", Config: map[string]interface{}{"name": "y", "value": "2"}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
		},
	}
}

func TestSchedulerRunsLinearWorkflowToCompletion(t *testing.T) {
	reg := executor.NewRegistry()
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, linearWorkflow(), reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunCompleted {
		t.Fatalf("expected RunCompleted, got %v (error=%q)", result.Status, result.Error)
	}
	if result.ExecutedCount != 2 {
		t.Fatalf("expected 2 nodes executed, got %d", result.ExecutedCount)
	}
	if v, _ := ec.GetVariable("y"); v != "2" {
		t.Fatalf("expected y=2, got %v", v)
	}
	if result.NodeStatuses["a"] != NodeSucceeded || result.NodeStatuses["b"] != NodeSucceeded {
		t.Fatalf("expected both nodes recorded as succeeded, got %+v", result.NodeStatuses)
	}
}

func TestSchedulerFailsWithNoStartNode(t *testing.T) {
	wf := workflow.Workflow{ID: "wf-2"}
	reg := executor.NewRegistry()
	s, _ := newScheduler(t, wf, reg)

	result, err := s.Run(context.Background())
	if err == nil {
		t.Fatalf("expected an error for a workflow with no start node")
	}
	if result.Status != RunFailed {
		t.Fatalf("expected RunFailed, got %v", result.Status)
	}
}

func TestSchedulerFollowsConditionalBranch(t *testing.T) {
	wf := workflow.Workflow{
		ID:          "wf-3",
		StartNodeID: "cond",
		Nodes: []workflow.Node{
			{ID: "cond", ModuleType: "conditional", Config: map[string]interface{}{
				"comparator": "equals", "left": "1", "right": "1",
			}},
			{ID: "onTrue", ModuleType: "set_variable", Config: map[string]interface{}{"name": "branch", "value": "true-path"}},
			{ID: "onFalse", ModuleType: "set_variable", Config: map[string]interface{}{"name": "branch", "value": "false-path"}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "cond", Target: "onTrue", Label: "true"},
			{ID: "e2", Source: "cond", Target: "onFalse", Label: "false"},
		},
	}
	reg := executor.NewRegistry()
	reg.MustRegister(executor.ConditionalExecutor{})
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, wf, reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunCompleted {
		t.Fatalf("expected RunCompleted, got %v (error=%q)", result.Status, result.Error)
	}
	if v, _ := ec.GetVariable("branch"); v != "true-path" {
		t.Fatalf("expected the true branch to run, got %v", v)
	}
}

func TestSchedulerConditionalLiteralMismatchTakesFalseBranch(t *testing.T) {
	wf := workflow.Workflow{
		ID:          "wf-3b",
		StartNodeID: "cond",
		Nodes: []workflow.Node{
			{ID: "cond", ModuleType: "conditional", Config: map[string]interface{}{
				"comparator": "equals", "left": "1", "right": "2",
			}},
			{ID: "onTrue", ModuleType: "set_variable", Config: map[string]interface{}{"name": "branch", "value": "true-path"}},
			{ID: "onFalse", ModuleType: "set_variable", Config: map[string]interface{}{"name": "branch", "value": "false-path"}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "cond", Target: "onTrue", Label: "true"},
			{ID: "e2", Source: "cond", Target: "onFalse", Label: "false"},
		},
	}
	reg := executor.NewRegistry()
	reg.MustRegister(executor.ConditionalExecutor{})
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, wf, reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunCompleted {
		t.Fatalf("expected RunCompleted, got %v (error=%q)", result.Status, result.Error)
	}
	if v, _ := ec.GetVariable("branch"); v != "false-path" {
		t.Fatalf("expected mismatched literal operands to take the false branch, got %v", v)
	}
}

func TestSchedulerPicksLexicographicallySmallestDefaultEdge(t *testing.T) {
	wf := workflow.Workflow{
		ID:          "wf-4",
		StartNodeID: "start",
		Nodes: []workflow.Node{
			{ID: "start", ModuleType: "group"},
			{ID: "zzz", ModuleType: "set_variable", Config: map[string]interface{}{"name": "picked", "value": "zzz"}},
			{ID: "aaa", ModuleType: "set_variable", Config: map[string]interface{}{"name": "picked", "value": "aaa"}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "start", Target: "zzz"},
			{ID: "e2", Source: "start", Target: "aaa"},
		},
	}
	reg := executor.NewRegistry()
	reg.MustRegister(executor.GroupExecutor{})
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, wf, reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunCompleted {
		t.Fatalf("expected RunCompleted, got %v (error=%q)", result.Status, result.Error)
	}
	if v, _ := ec.GetVariable("picked"); v != "aaa" {
		t.Fatalf("expected the lexicographically smallest target (aaa) to win, got %v", v)
	}
}

func TestSchedulerStopsOnFailedNode(t *testing.T) {
	wf := workflow.Workflow{
		ID:          "wf-5",
		StartNodeID: "bad",
		Nodes: []workflow.Node{
			{ID: "bad", ModuleType: "conditional", Config: map[string]interface{}{"comparator": "nonsense"}},
		},
	}
	reg := executor.NewRegistry()
	reg.MustRegister(executor.ConditionalExecutor{})
	s, _ := newScheduler(t, wf, reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunFailed {
		t.Fatalf("expected RunFailed, got %v", result.Status)
	}
	if result.FailedCount != 1 {
		t.Fatalf("expected FailedCount=1, got %d", result.FailedCount)
	}
}

func TestSchedulerStopsWhenCancelledBeforeFirstNode(t *testing.T) {
	reg := executor.NewRegistry()
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, linearWorkflow(), reg)
	ec.Cancel()

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunStopped {
		t.Fatalf("expected RunStopped, got %v", result.Status)
	}
	if result.ExecutedCount != 0 {
		t.Fatalf("expected no nodes executed once cancelled, got %d", result.ExecutedCount)
	}
}

func TestSchedulerSubflowCallJumpsAndReturns(t *testing.T) {
	wf := workflow.Workflow{
		ID:          "wf-6",
		StartNodeID: "call",
		SubflowGroups: map[string]string{
			"validate": "grp-validate",
		},
		Nodes: []workflow.Node{
			{ID: "call", ModuleType: "subflow_call", Config: map[string]interface{}{"name": "validate"}},
			{ID: "afterCall", ModuleType: "set_variable", Config: map[string]interface{}{"name": "stage", "value": "after-call"}},
			{ID: "subStart", ModuleType: "set_variable", GroupID: "grp-validate", Config: map[string]interface{}{"name": "stage", "value": "in-subflow"}},
			{ID: "subEnd", ModuleType: "end_subflow", GroupID: "grp-validate"},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "call", Target: "afterCall"},
			{ID: "e2", Source: "subStart", Target: "subEnd"},
		},
	}
	reg := executor.NewRegistry()
	reg.MustRegister(executor.SubflowCallExecutor{})
	reg.MustRegister(executor.EndSubflowExecutor{})
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, wf, reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunCompleted {
		t.Fatalf("expected RunCompleted, got %v (error=%q)", result.Status, result.Error)
	}
	if result.ExecutedCount != 4 {
		t.Fatalf("expected 4 node visits (call, subStart, subEnd, afterCall), got %d", result.ExecutedCount)
	}
	if v, _ := ec.GetVariable("stage"); v != "after-call" {
		t.Fatalf("expected the run to resume after the call site post-subflow, got %v", v)
	}
}

func TestSchedulerEndSubflowWithoutCallIsFatal(t *testing.T) {
	wf := workflow.Workflow{
		ID:          "wf-7",
		StartNodeID: "subEnd",
		Nodes: []workflow.Node{
			{ID: "subEnd", ModuleType: "end_subflow"},
		},
	}
	reg := executor.NewRegistry()
	reg.MustRegister(executor.EndSubflowExecutor{})
	s, _ := newScheduler(t, wf, reg)

	_, err := s.Run(context.Background())
	if err == nil {
		t.Fatalf("expected a fatal error for an end_subflow with no matching call")
	}
}

func TestSchedulerReentersLoopBodyViaDefaultEdges(t *testing.T) {
	wf := workflow.Workflow{
		ID:          "wf-9",
		StartNodeID: "header",
		Nodes: []workflow.Node{
			{ID: "header", ModuleType: "loop_range", Config: map[string]interface{}{"bind": "i", "start": 0, "stop": 3, "step": 1}},
			{ID: "body", ModuleType: "add_data_value", Config: map[string]interface{}{"column": "i", "value": "${i}"}},
			{ID: "loopEnd", ModuleType: "loop_end"},
			{ID: "after", ModuleType: "set_variable", Config: map[string]interface{}{"name": "done", "value": true}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "header", Target: "body", Label: "true"},
			{ID: "e2", Source: "header", Target: "after", Label: "false"},
			{ID: "e3", Source: "body", Target: "loopEnd"},
			{ID: "e4", Source: "loopEnd", Target: "header"},
		},
	}
	reg := executor.NewRegistry()
	reg.MustRegister(executor.LoopRangeExecutor{})
	reg.MustRegister(executor.LoopEndExecutor{})
	reg.MustRegister(executor.AddDataValueExecutor{})
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, wf, reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunCompleted {
		t.Fatalf("expected RunCompleted, got %v (error=%q)", result.Status, result.Error)
	}
	rows := ec.Store.DataRows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 loop iterations to commit 3 rows, got %d", len(rows))
	}
	if v, _ := ec.GetVariable("done"); v != true {
		t.Fatalf("expected the loop to fall through to the after node once exhausted, got %v", v)
	}
}

func loopWithFailingBody(onError string) workflow.Workflow {
	headerConfig := map[string]interface{}{"bind": "i", "start": 0, "stop": 2, "step": 1}
	if onError != "" {
		headerConfig["on_error"] = onError
	}
	return workflow.Workflow{
		ID:          "wf-10",
		StartNodeID: "header",
		Nodes: []workflow.Node{
			{ID: "header", ModuleType: "loop_range", Config: headerConfig},
			{ID: "body", ModuleType: "conditional", Config: map[string]interface{}{"comparator": "nonsense"}},
			{ID: "loopEnd", ModuleType: "loop_end"},
			{ID: "after", ModuleType: "set_variable", Config: map[string]interface{}{"name": "done", "value": true}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "header", Target: "body", Label: "true"},
			{ID: "e2", Source: "header", Target: "after", Label: "false"},
			{ID: "e3", Source: "body", Target: "loopEnd"},
			{ID: "e4", Source: "loopEnd", Target: "header"},
		},
	}
}

func TestSchedulerLoopBodyFailureStopsRunByDefault(t *testing.T) {
	reg := executor.NewRegistry()
	reg.MustRegister(executor.LoopRangeExecutor{})
	reg.MustRegister(executor.LoopEndExecutor{})
	reg.MustRegister(executor.ConditionalExecutor{})
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, loopWithFailingBody(""), reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunFailed {
		t.Fatalf("expected RunFailed (on_error defaults to stop), got %v", result.Status)
	}
	if result.FailedCount != 1 {
		t.Fatalf("expected the run to stop after the first body failure, got FailedCount=%d", result.FailedCount)
	}
	if _, ok := ec.GetVariable("done"); ok {
		t.Fatalf("expected the run to never reach the after node")
	}
}

func TestSchedulerLoopBodyFailureContinuesWhenConfigured(t *testing.T) {
	reg := executor.NewRegistry()
	reg.MustRegister(executor.LoopRangeExecutor{})
	reg.MustRegister(executor.LoopEndExecutor{})
	reg.MustRegister(executor.ConditionalExecutor{})
	reg.MustRegister(executor.SetVariableExecutor{})
	s, ec := newScheduler(t, loopWithFailingBody("continue"), reg)

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != RunCompleted {
		t.Fatalf("expected RunCompleted with on_error=continue, got %v (error=%q)", result.Status, result.Error)
	}
	if result.FailedCount != 2 {
		t.Fatalf("expected both iterations' body failures recorded, got FailedCount=%d", result.FailedCount)
	}
	if v, _ := ec.GetVariable("done"); v != true {
		t.Fatalf("expected the loop to still fall through to the after node once exhausted, got %v", v)
	}
}

func TestSchedulerFailsOnMissingExecutor(t *testing.T) {
	wf := workflow.Workflow{
		ID:          "wf-8",
		StartNodeID: "unknown",
		Nodes: []workflow.Node{
			{ID: "unknown", ModuleType: "does_not_exist"},
		},
	}
	reg := executor.NewRegistry()
	s, _ := newScheduler(t, wf, reg)

	_, err := s.Run(context.Background())
	if err == nil {
		t.Fatalf("expected a fatal error for an unregistered module type")
	}
}
