// Package executor defines the Module Executor contract (spec §4.3) and
// a Registry mapping module-type tokens to executor instances,
// populated at startup. Grounded on the teacher's
// pkg/executor.NodeExecutor/ExecutionContext/Registry, generalized from
// the teacher's fixed NodeType enum to a free-form string token.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/rpacore/engine/pkg/execctx"
)

// Result is the outcome of one executor invocation (spec §4.3).
// DurationMS is filled by the scheduler, never by the executor itself.
type Result struct {
	Success    bool
	Message    string
	Data       interface{}
	Error      string
	Branch     string // "true" | "false" | "" for non-branching nodes
	DurationMS int64
	LogLevel   string // overrides the default log-stream level, e.g. print_log
}

// Executor is the Strategy contract every module implements.
// Execute may suspend (e.g. blocking on the Rendezvous Registry or a
// spawned process) and must translate internal errors into
// Result{Success: false, Error: ...} rather than returning a Go error
// for anything the workflow author can reasonably hit; Execute only
// returns an error for conditions the scheduler should treat as fatal
// (see pkg/rpaerr).
type Executor interface {
	ModuleType() string
	Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error)
	// Validate performs static config checks before a run starts
	// (missing required fields, malformed literals). A no-op
	// implementation (returning nil always) is legitimate for modules
	// with no required fields.
	Validate(config map[string]interface{}) error
}

// Registry maps module_type tokens to Executors (teacher's
// pkg/executor.Registry, generalized to a string key).
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor, returning an error if its module type is
// already registered.
func (r *Registry) Register(e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[e.ModuleType()]; exists {
		return fmt.Errorf("executor: module type %q already registered", e.ModuleType())
	}
	r.executors[e.ModuleType()] = e
	return nil
}

// MustRegister is Register, panicking on error — used at startup wiring
// where a duplicate registration is a programming mistake.
func (r *Registry) MustRegister(e Executor) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Get looks up the executor for a module type.
func (r *Registry) Get(moduleType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[moduleType]
	return e, ok
}

// ListModuleTypes returns every registered module type, for diagnostics.
func (r *Registry) ListModuleTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for k := range r.executors {
		out = append(out, k)
	}
	return out
}
