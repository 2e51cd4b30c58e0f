package executor

import (
	"time"

	"github.com/rpacore/engine/pkg/process"
)

// DefaultRegistry builds a Registry with every built-in leaf executor
// wired in, mirroring the teacher's engine.DefaultRegistry() startup
// wiring. supervisor and clients may be nil — the transcode_media and
// http_request executors report a clear error at Execute time rather
// than panicking when their collaborator is absent.
func DefaultRegistry(supervisor *process.Supervisor, clients *ClientRegistry, promptTimeout time.Duration) *Registry {
	r := NewRegistry()
	r.MustRegister(SetVariableExecutor{})
	r.MustRegister(PrintLogExecutor{})
	r.MustRegister(GroupExecutor{})
	r.MustRegister(ConditionalExecutor{})
	r.MustRegister(LoopRangeExecutor{})
	r.MustRegister(LoopListExecutor{})
	r.MustRegister(LoopWhileExecutor{})
	r.MustRegister(LoopEndExecutor{})
	r.MustRegister(SubflowCallExecutor{})
	r.MustRegister(EndSubflowExecutor{})
	r.MustRegister(InputPromptExecutor{DefaultTimeout: promptTimeout})
	r.MustRegister(AddDataValueExecutor{})
	r.MustRegister(CommitRowExecutor{})
	r.MustRegister(ExportLogsExecutor{})
	r.MustRegister(ExportTableExecutor{})
	r.MustRegister(HTTPRequestExecutor{Clients: clients})
	r.MustRegister(TranscodeMediaExecutor{Supervisor: supervisor})
	r.MustRegister(SchemaValidateExecutor{})
	r.MustRegister(TextOperationExecutor{})
	r.MustRegister(StartFileShareExecutor{})
	r.MustRegister(StartScreenShareExecutor{})
	return r
}
