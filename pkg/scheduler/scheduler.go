// Package scheduler implements the Scheduler (spec §4.4): a cursor-based
// state machine that walks a workflow's node graph, dispatching each
// node to its registered executor, following branch/default edges, and
// special-casing subflow call/return so that jump is never confused
// with edge-following. Grounded on the teacher's pkg/engine.Engine
// (observer notification shape, node-execution counters, Execute's
// overall control flow) but replacing the teacher's topological-sort
// batch execution with a cursor that can revisit nodes (loop re-entry)
// and jump across the graph (subflow call), since spec §4.4 requires
// re-entrant traversal a one-pass topological order cannot express.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rpacore/engine/pkg/execctx"
	"github.com/rpacore/engine/pkg/executor"
	"github.com/rpacore/engine/pkg/rlog"
	"github.com/rpacore/engine/pkg/rpaerr"
	"github.com/rpacore/engine/pkg/telemetry"
	"github.com/rpacore/engine/pkg/workflow"
)

// RunStatus is the terminal (or in-flight) state of one run.
type RunStatus string

const (
	RunNotStarted RunStatus = "not_started"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunStopped    RunStatus = "stopped"
)

// NodeStatus is the terminal (or in-flight) state of one node visit.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeSucceeded NodeStatus = "succeeded"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// maxSteps bounds the cursor walk so a malformed graph (an edge cycle
// the author never intended to loop) fails the run instead of spinning
// forever; loop/subflow nesting legitimately revisits nodes many times,
// so this is generous rather than tight.
const maxSteps = 1_000_000

// Scheduler drives one run of a workflow. A Scheduler is single-use: call
// Run once per workflow execution.
type Scheduler struct {
	Graph      *workflow.Graph
	Registry   *executor.Registry
	ExecCtx    *execctx.Context
	Telemetry  *telemetry.Manager
	RunID      string
	WorkflowID string
	Logger     *rlog.Logger
}

// New creates a Scheduler. logger may be nil, in which case a default
// rlog.Logger is used.
func New(graph *workflow.Graph, registry *executor.Registry, ec *execctx.Context, tm *telemetry.Manager, runID, workflowID string, logger *rlog.Logger) *Scheduler {
	if logger == nil {
		logger = rlog.New(rlog.DefaultConfig())
	}
	return &Scheduler{
		Graph:      graph,
		Registry:   registry,
		ExecCtx:    ec,
		Telemetry:  tm,
		RunID:      runID,
		WorkflowID: workflowID,
		Logger:     logger.WithRunID(runID).WithWorkflowID(workflowID),
	}
}

// RunResult summarizes one completed (or stopped) run.
type RunResult struct {
	Status        RunStatus
	ExecutedCount int
	FailedCount   int
	Error         string
	NodeStatuses  map[string]NodeStatus
}

// Run walks the graph from its start node until the graph is exhausted,
// a node fails fatally, or cancellation is observed.
func (s *Scheduler) Run(ctx context.Context) (*RunResult, error) {
	wf := s.Graph.Workflow()
	if wf.StartNodeID == "" {
		return &RunResult{Status: RunFailed, Error: "no start node"}, rpaerr.ErrNoStartNode
	}
	if _, ok := s.Graph.Node(wf.StartNodeID); !ok {
		return &RunResult{Status: RunFailed, Error: "no start node"}, rpaerr.ErrNoStartNode
	}

	ctx = s.Telemetry.StartRun(ctx, s.RunID, s.WorkflowID)
	s.Logger.Info("run started")

	result := &RunResult{Status: RunRunning, NodeStatuses: make(map[string]NodeStatus)}
	cursor := wf.StartNodeID

	for step := 0; step < maxSteps; step++ {
		if s.ExecCtx.Cancelled() {
			s.stopRun(ctx, result)
			return result, nil
		}

		node, ok := s.Graph.Node(cursor)
		if !ok {
			result.Status = RunFailed
			result.Error = fmt.Sprintf("node %q referenced but not present in graph", cursor)
			s.emitRunEnd(ctx, result)
			return result, rpaerr.New(rpaerr.KindFatal, "scheduler: %s", result.Error)
		}

		exec, ok := s.Registry.Get(node.ModuleType)
		if !ok {
			result.Status = RunFailed
			result.Error = fmt.Sprintf("no executor registered for module type %q", node.ModuleType)
			s.emitRunEnd(ctx, result)
			return result, rpaerr.New(rpaerr.KindFatal, "scheduler: %s", result.Error)
		}

		result.NodeStatuses[node.ID] = NodeRunning
		nodeCtx := executor.WithNodeID(ctx, node.ID)
		s.emitNodeStart(nodeCtx, node)
		start := time.Now()

		res, execErr := s.invoke(nodeCtx, exec, node)
		res.DurationMS = time.Since(start).Milliseconds()

		s.emitNodeEnd(nodeCtx, node, res)
		result.ExecutedCount++

		if execErr != nil && rpaerr.IsFatal(execErr) {
			result.NodeStatuses[node.ID] = NodeFailed
			result.Status = RunFailed
			result.FailedCount++
			result.Error = execErr.Error()
			s.emitRunEnd(ctx, result)
			return result, execErr
		}

		if !res.Success {
			result.NodeStatuses[node.ID] = NodeFailed
			result.FailedCount++

			if loop := s.ExecCtx.CurrentLoop(); loop != nil && loop.OnError == "continue" {
				s.Logger.WithNodeID(node.ID).WithField("error", res.Error).
					Warn("loop body node failed; continuing per on_error=continue")
				next, done, nerr := s.nextCursor(node, res)
				if nerr != nil {
					result.Status = RunFailed
					result.Error = nerr.Error()
					s.emitRunEnd(ctx, result)
					return result, nerr
				}
				if done {
					result.Status = RunCompleted
					s.emitRunEnd(ctx, result)
					return result, nil
				}
				cursor = next
				continue
			}

			result.Status = RunFailed
			result.Error = res.Error
			s.emitRunEnd(ctx, result)
			return result, nil
		}
		result.NodeStatuses[node.ID] = NodeSucceeded

		next, done, err := s.nextCursor(node, res)
		if err != nil {
			result.Status = RunFailed
			result.Error = err.Error()
			s.emitRunEnd(ctx, result)
			return result, err
		}
		if done {
			result.Status = RunCompleted
			s.emitRunEnd(ctx, result)
			return result, nil
		}
		cursor = next
	}

	result.Status = RunFailed
	result.Error = fmt.Sprintf("exceeded maximum step count (%d); the graph likely contains an unintended cycle", maxSteps)
	s.emitRunEnd(ctx, result)
	return result, rpaerr.New(rpaerr.KindFatal, "scheduler: %s", result.Error)
}

// invoke calls the executor, translating a panic-free Go error into a
// synthetic failed Result per spec §4.4 step (e): "Catch any thrown
// error into a synthetic failed result carrying the error text."
func (s *Scheduler) invoke(ctx context.Context, exec executor.Executor, node *workflow.Node) (executor.Result, error) {
	res, err := exec.Execute(ctx, node.Config, s.ExecCtx)
	if err != nil {
		if rpaerr.IsFatal(err) {
			return executor.Result{Success: false, Error: err.Error()}, err
		}
		return executor.Result{Success: false, Error: err.Error()}, nil
	}
	return res, nil
}

// nextCursor resolves which node the scheduler visits next, special
// casing subflow call/return (a graph jump, not an edge-follow) and
// otherwise following the branch-labeled or default outgoing edge.
func (s *Scheduler) nextCursor(node *workflow.Node, res executor.Result) (next string, done bool, err error) {
	switch node.ModuleType {
	case "subflow_call":
		data, _ := res.Data.(map[string]interface{})
		target, _ := data["target"].(string)
		startID, ok := s.Graph.SubflowStart(target)
		if !ok {
			return "", false, rpaerr.New(rpaerr.KindFatal, "scheduler: subflow %q has no start node", target)
		}
		returnNode, returnDone, rerr := s.followEdge(node, res)
		if rerr != nil {
			return "", false, rerr
		}
		if returnDone {
			// No edge leaves the call site: returning from the subflow
			// ends the run, encoded as an empty return node id.
			returnNode = ""
		}
		s.ExecCtx.PushSubflow(&execctx.SubflowFrame{ReturnNodeID: returnNode})
		return startID, false, nil
	case "end_subflow":
		frame, ok := s.ExecCtx.PopSubflow()
		if !ok {
			return "", false, rpaerr.New(rpaerr.KindFatal, "scheduler: end_subflow reached with no matching subflow_call")
		}
		if frame.ReturnNodeID == "" {
			return "", true, nil
		}
		return frame.ReturnNodeID, false, nil
	default:
		return s.followEdge(node, res)
	}
}

// followEdge picks the outgoing edge matching res.Branch (if set) or the
// default edge, with lexicographic tie-breaking on the target id when
// more than one default edge exists (spec §4.4's deterministic
// tie-breaking rule).
func (s *Scheduler) followEdge(node *workflow.Node, res executor.Result) (next string, done bool, err error) {
	edges := s.Graph.OutEdges(node.ID)
	if len(edges) == 0 {
		return "", true, nil
	}

	if res.Branch != "" {
		for _, e := range edges {
			if e.Label == res.Branch {
				return e.Target, false, nil
			}
		}
		// No matching label: fall through to the default edge.
	}

	var defaults []string
	for _, e := range edges {
		if e.IsDefault() {
			defaults = append(defaults, e.Target)
		}
	}
	if len(defaults) == 0 {
		return "", true, nil
	}
	if len(defaults) > 1 {
		sort.Strings(defaults)
		s.Logger.WithNodeID(node.ID).Warn("multiple default edges leaving node; picking lexicographically smallest target")
	}
	return defaults[0], false, nil
}

// stopRun finalizes a run observed as cancelled: releases every pending
// rendezvous slot so blocked workers wake, terminates every live child
// process, then emits run:end with status "stopped" (spec §4.4's
// cancellation semantics).
func (s *Scheduler) stopRun(ctx context.Context, result *RunResult) {
	if s.ExecCtx.Rendezvous != nil {
		s.ExecCtx.Rendezvous.ReleaseAll("run stopped")
	}
	if s.ExecCtx.Processes != nil {
		_ = s.ExecCtx.Processes.TerminateAll(context.Background())
	}
	result.Status = RunStopped
	s.emitRunEnd(ctx, result)
}

func (s *Scheduler) emitNodeStart(ctx context.Context, node *workflow.Node) {
	s.Telemetry.Notify(ctx, telemetry.Event{
		Type:          telemetry.EventNodeStart,
		RunID:         s.RunID,
		WorkflowID:    s.WorkflowID,
		NodeID:        node.ID,
		ModuleType:    node.ModuleType,
		ConfigPreview: node.Config,
	})
}

func (s *Scheduler) emitNodeEnd(ctx context.Context, node *workflow.Node, res executor.Result) {
	s.Telemetry.Notify(ctx, telemetry.Event{
		Type:       telemetry.EventNodeEnd,
		RunID:      s.RunID,
		WorkflowID: s.WorkflowID,
		NodeID:     node.ID,
		ModuleType: node.ModuleType,
		Success:    res.Success,
		Message:    res.Message,
		DurationMS: res.DurationMS,
		Error:      res.Error,
		LogLevel:   res.LogLevel,
	})
}

func (s *Scheduler) emitRunEnd(ctx context.Context, result *RunResult) {
	s.Logger.WithField("status", string(result.Status)).
		WithField("executed_count", result.ExecutedCount).
		WithField("failed_count", result.FailedCount).
		Info("run ended")
	s.Telemetry.Notify(ctx, telemetry.Event{
		Type:       telemetry.EventRunEnd,
		RunID:      s.RunID,
		WorkflowID: s.WorkflowID,
		RunStatus:  string(result.Status),
		Error:      result.Error,
	})
}
