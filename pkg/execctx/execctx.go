// Package execctx implements the Execution Context (spec §3): the
// per-run mutable state an executor's worker reads and writes —
// variables and data rows (delegated to pkg/store), browser/page
// handles, iframe descent tracking, the loop and subflow call stacks,
// and the one-shot break/continue and cancellation flags.
//
// Grounded on original_source/backend/app/executors/base.py's
// ExecutionContext dataclass (browser/browser_context/page,
// _in_iframe/_main_page/_iframe_locator/_current_frame,
// should_break/should_continue, loop_stack) and on the teacher's
// ExecutionContext interface (pkg/executor/executor.go) for the
// store-delegating accessor shape.
package execctx

import (
	"sync"
	"sync/atomic"

	"github.com/rpacore/engine/pkg/process"
	"github.com/rpacore/engine/pkg/rendezvous"
	"github.com/rpacore/engine/pkg/resolver"
	"github.com/rpacore/engine/pkg/server"
	"github.com/rpacore/engine/pkg/store"
)

// IframeLocator identifies an iframe by name, index, or selector —
// whichever the original's get_current_frame accepted.
type IframeLocator struct {
	Kind  string // "name" | "index" | "selector"
	Value string
}

// IframeState tracks frame descent so that clicks performed inside an
// iframe don't disturb the main page's tracked handle (spec §3).
type IframeState struct {
	InIframe     bool
	MainPage     interface{}
	CurrentFrame interface{}
	Locator      IframeLocator
}

// LoopFrame is one entry in the loop stack: the iteration state and the
// body-entry node id the scheduler re-enters on each pass (spec §4.4).
type LoopFrame struct {
	HeaderNodeID    string
	BodyEntryNodeID string
	Index           int
	Limit           int // -1 for unbounded (while-loops)
	IteratorValues  []interface{}
	OnError         string // "stop" | "continue" — per-loop Open Question resolution
}

// SubflowFrame records a call site so End-of-subflow can resume there.
type SubflowFrame struct {
	ReturnNodeID string
}

// Context is one run's Execution Context. Per invariant I1, a Context
// is never driven by two concurrent workers — the scheduler guarantees
// single-writer access to everything below except CancelSignaled, which
// a separate stop-command goroutine may set concurrently and is
// therefore backed by an atomic.
type Context struct {
	Store      *store.Store
	Rendezvous *rendezvous.Registry
	Processes  *process.Supervisor

	// Servers is the run's External Server Manager (spec §4.8), wired in
	// by the Bus; nil in tests that don't exercise start_file_share/
	// start_screen_share. ScreenFrameSource backs start_screen_share and
	// is platform-specific, so it is likewise optional.
	Servers           *server.Manager
	ScreenFrameSource server.ScreenFrameSource

	BrowserHandle        interface{}
	BrowserContextHandle interface{}
	PageHandle           interface{}
	Iframe               IframeState

	mu           sync.Mutex
	loopStack    []*LoopFrame
	subflowStack []*SubflowFrame
	shouldBreak    bool
	shouldContinue bool

	cancelSignaled atomic.Bool
}

// New creates a Context wired to the given Store, Rendezvous Registry,
// and Process Supervisor. Any of the three may be nil in tests that only
// exercise a subset of the surface.
func New(st *store.Store, rv *rendezvous.Registry, proc *process.Supervisor) *Context {
	return &Context{Store: st, Rendezvous: rv, Processes: proc}
}

// Resolve substitutes variable references inside text (spec §4.1).
func (c *Context) Resolve(text string) (string, error) {
	return resolver.Resolve(text, c.Store)
}

// ResolveReference resolves a single bare reference to its underlying
// value rather than a stringified substitution.
func (c *Context) ResolveReference(expr string) (interface{}, error) {
	return resolver.ResolveReference(expr, c.Store)
}

// GetVariable and SetVariable delegate to the Store.
func (c *Context) GetVariable(name string) (interface{}, bool) { return c.Store.GetVariable(name) }
func (c *Context) SetVariable(name string, v interface{})      { c.Store.SetVariable(name, v) }

// PushLoop opens a new loop frame (entering a loop header the first time).
func (c *Context) PushLoop(frame *LoopFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopStack = append(c.loopStack, frame)
}

// CurrentLoop returns the innermost active loop frame, or nil if the
// loop stack is empty.
func (c *Context) CurrentLoop() *LoopFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.loopStack) == 0 {
		return nil
	}
	return c.loopStack[len(c.loopStack)-1]
}

// PopLoop discards the innermost loop frame, called when the loop
// terminator exits via the default edge.
func (c *Context) PopLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.loopStack) == 0 {
		return
	}
	c.loopStack = c.loopStack[:len(c.loopStack)-1]
}

// LoopDepth reports how many loop frames are currently nested.
func (c *Context) LoopDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loopStack)
}

// PushSubflow records a call site for End-of-subflow to resume at.
func (c *Context) PushSubflow(frame *SubflowFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subflowStack = append(c.subflowStack, frame)
}

// PopSubflow pops and returns the most recent call site, or nil (ok=false)
// if the subflow stack is empty — an End-of-subflow node reached outside
// any call is a fatal graph error the scheduler surfaces.
func (c *Context) PopSubflow() (*SubflowFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.subflowStack)
	if n == 0 {
		return nil, false
	}
	frame := c.subflowStack[n-1]
	c.subflowStack = c.subflowStack[:n-1]
	return frame, true
}

// SetShouldBreak and SetShouldContinue are set by a loop body executor;
// TakeShouldBreak/TakeShouldContinue are consumed (and cleared) by the
// loop header on its next pass — one-shot flags per spec §3.
func (c *Context) SetShouldBreak()    { c.mu.Lock(); c.shouldBreak = true; c.mu.Unlock() }
func (c *Context) SetShouldContinue() { c.mu.Lock(); c.shouldContinue = true; c.mu.Unlock() }

func (c *Context) TakeShouldBreak() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.shouldBreak
	c.shouldBreak = false
	return v
}

func (c *Context) TakeShouldContinue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.shouldContinue
	c.shouldContinue = false
	return v
}

// DescendIframe enters an iframe, saving the current page handle as
// MainPage so AscendIframe can restore it (original's get_current_frame).
func (c *Context) DescendIframe(locator IframeLocator, frameHandle interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Iframe.InIframe {
		c.Iframe.MainPage = c.PageHandle
	}
	c.Iframe.InIframe = true
	c.Iframe.Locator = locator
	c.Iframe.CurrentFrame = frameHandle
}

// AscendIframe returns tracking to the main page (original's implicit
// "switch back" when an iframe-scoped action completes).
func (c *Context) AscendIframe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Iframe = IframeState{}
}

// Cancel sets the monotonic cancellation flag. Safe to call from a
// goroutine other than the one driving the node loop.
func (c *Context) Cancel() { c.cancelSignaled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (c *Context) Cancelled() bool { return c.cancelSignaled.Load() }
