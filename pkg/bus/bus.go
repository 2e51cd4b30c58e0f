// Package bus implements the Bus (spec §4.10): the long-lived object
// that owns every run-independent singleton — the Process Supervisor,
// the external Server Manager, the Hotkey Bridge — and turns run/stop
// commands plus rendezvous replies into calls on a fresh Scheduler per
// workflow run.
//
// Grounded on the teacher's pkg/engine.Engine as the "one orchestrator
// object wires one registry, runs one workflow, notifies observers"
// shape, generalized to own a whole run's worth of singletons and to
// track more than one concurrent run (spec §4.10 allows multiple
// simultaneous runs, each with its own Execution Context and
// Scheduler, sharing only the singletons below).
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rpacore/engine/pkg/execctx"
	"github.com/rpacore/engine/pkg/executor"
	"github.com/rpacore/engine/pkg/hotkey"
	"github.com/rpacore/engine/pkg/process"
	"github.com/rpacore/engine/pkg/rendezvous"
	"github.com/rpacore/engine/pkg/rlog"
	"github.com/rpacore/engine/pkg/scheduler"
	"github.com/rpacore/engine/pkg/server"
	"github.com/rpacore/engine/pkg/store"
	"github.com/rpacore/engine/pkg/telemetry"
	"github.com/rpacore/engine/pkg/workflow"
)

// Config bundles the process-lifetime settings the Bus uses to build
// its owned singletons.
type Config struct {
	ProcessDefaultTimeout  time.Duration
	ProcessDefaultThrottle time.Duration
	ProcessGraceWindow     time.Duration
	PromptTimeout          time.Duration
	HTTPClients            *executor.ClientRegistry
	ScreenFrameSource      server.ScreenFrameSource
}

// DefaultConfig mirrors the teacher's engine.DefaultConfig timeouts,
// widened slightly to accommodate interactive rendezvous prompts.
func DefaultConfig() Config {
	return Config{
		ProcessDefaultTimeout:  5 * time.Minute,
		ProcessDefaultThrottle: 2 * time.Second,
		ProcessGraceWindow:     2 * time.Second,
		PromptTimeout:          2 * time.Minute,
	}
}

// run tracks one live Scheduler invocation.
type run struct {
	cancel context.CancelFunc
	ec     *execctx.Context
	done   chan struct{}
	result *scheduler.RunResult
	err    error
}

// Bus is the process-lifetime singleton owning the Process Supervisor,
// Server Manager, and Hotkey Bridge, plus the set of in-flight runs.
type Bus struct {
	Processes *process.Supervisor
	Servers   *server.Manager
	Hotkeys   *hotkey.Bridge
	Telemetry *telemetry.Manager
	Registry  *executor.Registry
	Logger    *rlog.Logger

	screenFrameSource server.ScreenFrameSource

	mu   sync.Mutex
	runs map[string]*run
}

// New wires every singleton the Bus owns for the life of the process.
// hotkeyListener may be nil to run without OS-level hotkey support.
func New(cfg Config, hotkeyListener hotkey.Listener, logger *rlog.Logger) *Bus {
	if logger == nil {
		logger = rlog.New(rlog.DefaultConfig())
	}
	supervisor := process.New(cfg.ProcessDefaultTimeout, cfg.ProcessDefaultThrottle, cfg.ProcessGraceWindow)
	registry := executor.DefaultRegistry(supervisor, cfg.HTTPClients, cfg.PromptTimeout)

	b := &Bus{
		Processes:         supervisor,
		Servers:           server.NewManager(logger),
		Telemetry:         telemetry.NewManager(nil),
		Registry:          registry,
		Logger:            logger,
		screenFrameSource: cfg.ScreenFrameSource,
		runs:              make(map[string]*run),
	}
	if hotkeyListener != nil {
		b.Hotkeys = hotkey.New(hotkeyListener, logger)
		ch := make(chan hotkey.Command, 8)
		b.Hotkeys.Subscribe(ch)
		go b.drainHotkeys(ch)
	}
	return b
}

func (b *Bus) drainHotkeys(ch <-chan hotkey.Command) {
	for cmd := range ch {
		if cmd == hotkey.CommandStopRun || cmd == hotkey.CommandPauseRun {
			b.StopAll()
		}
	}
}

// Start launches the Hotkey Bridge, if configured.
func (b *Bus) Start(ctx context.Context) {
	if b.Hotkeys != nil {
		b.Hotkeys.Start(ctx)
	}
}

// Shutdown stops every in-flight run, the Hotkey Bridge, and every
// external server, in that order (spec §4.10's orderly-shutdown rule:
// runs stop before the singletons they depend on tear down).
func (b *Bus) Shutdown(ctx context.Context) {
	b.StopAll()
	if b.Hotkeys != nil {
		b.Hotkeys.Stop()
	}
	b.Servers.StopAll()
}

// StartRun begins executing wf as runID, spinning up a fresh Execution
// Context and Scheduler sharing the Bus's singletons. It returns
// immediately; call Wait(runID) to block for completion.
func (b *Bus) StartRun(ctx context.Context, runID string, wf workflow.Workflow, rendezvousDispatch rendezvous.DispatchFunc) error {
	graph, err := workflow.Index(wf)
	if err != nil {
		return fmt.Errorf("bus: indexing workflow %s: %w", wf.ID, err)
	}

	ec := execctx.New(store.New(), rendezvous.New(rendezvousDispatch), b.Processes)
	ec.Servers = b.Servers
	ec.ScreenFrameSource = b.screenFrameSource
	sched := scheduler.New(graph, b.Registry, ec, b.Telemetry, runID, wf.ID, b.Logger)

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, ec: ec, done: make(chan struct{})}

	b.mu.Lock()
	if _, exists := b.runs[runID]; exists {
		b.mu.Unlock()
		cancel()
		return fmt.Errorf("bus: run %q is already in flight", runID)
	}
	b.runs[runID] = r
	b.mu.Unlock()

	go func() {
		defer close(r.done)
		result, err := sched.Run(runCtx)
		r.result, r.err = result, err
	}()
	return nil
}

// Stop requests cancellation of runID; the scheduler's cooperative
// cancellation check (spec §4.4) observes it on its next step.
func (b *Bus) Stop(runID string) {
	b.mu.Lock()
	r, ok := b.runs[runID]
	b.mu.Unlock()
	if !ok {
		return
	}
	r.ec.Cancel()
	r.cancel()
}

// StopAll cancels every in-flight run, used on process shutdown or a
// global stop hotkey.
func (b *Bus) StopAll() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.runs))
	for id := range b.runs {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Stop(id)
	}
}

// Wait blocks until runID finishes, returning its result, then forgets
// the run so its Execution Context can be garbage collected.
func (b *Bus) Wait(runID string) (*scheduler.RunResult, error) {
	b.mu.Lock()
	r, ok := b.runs[runID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("bus: no run %q in flight", runID)
	}
	<-r.done

	b.mu.Lock()
	delete(b.runs, runID)
	b.mu.Unlock()
	return r.result, r.err
}

// DeliverRendezvousReply forwards an observer's reply to the run's
// Rendezvous Registry so a blocked worker wakes.
func (b *Bus) DeliverRendezvousReply(runID, requestID string, reply rendezvous.Reply) error {
	b.mu.Lock()
	r, ok := b.runs[runID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("bus: no run %q in flight", runID)
	}
	r.ec.Rendezvous.DeliverReply(requestID, reply)
	return nil
}

// ActiveRuns lists every run currently in flight.
func (b *Bus) ActiveRuns() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.runs))
	for id := range b.runs {
		ids = append(ids, id)
	}
	return ids
}
