package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rpacore/engine/pkg/execctx"
	"github.com/rpacore/engine/pkg/process"
)

// TranscodeMediaExecutor wraps the Process Supervisor around an
// ffmpeg-shaped child process, grounded on
// original_source/backend/app/executors/media.py and media_m3u8.py
// (SPEC_FULL §4's "media transcode progress").
type TranscodeMediaExecutor struct {
	Supervisor *process.Supervisor
}

func (TranscodeMediaExecutor) ModuleType() string { return "transcode_media" }

func (TranscodeMediaExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["input"]; !ok {
		return fmt.Errorf("transcode_media: missing required field %q", "input")
	}
	if _, ok := config["output"]; !ok {
		return fmt.Errorf("transcode_media: missing required field %q", "output")
	}
	return nil
}

func (e TranscodeMediaExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	if e.Supervisor == nil {
		return Result{Success: false, Error: "transcode_media: no process supervisor wired into this context"}, nil
	}

	input, err := resolveStringField(config, "input", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	output, err := resolveStringField(config, "output", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	args := []string{"-y", "-i", input}
	if extra, ok := config["args"].([]interface{}); ok {
		for _, a := range extra {
			args = append(args, fmt.Sprint(a))
		}
	}
	args = append(args, output)

	var totalDuration time.Duration
	if seconds, ok := config["duration_seconds"].(float64); ok {
		totalDuration = time.Duration(seconds * float64(time.Second))
	}

	rec, done, err := e.Supervisor.Spawn(ctx, process.Spec{
		OwnerNodeID:   nodeIDFromContext(ctx),
		Command:       "ffmpeg",
		Args:          args,
		TotalDuration: totalDuration,
	}, func(recordID string, p process.Progress) {
		ec.Store.AddLog("info", p.Message, recordID, p.Elapsed.Milliseconds())
	})
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	if waitErr := <-done; waitErr != nil {
		return Result{Success: false, Error: waitErr.Error()}, nil
	}
	return Result{Success: true, Message: fmt.Sprintf("transcoded to %s", output), Data: map[string]interface{}{"record_id": rec.ID, "output": output}}, nil
}

func resolveStringField(config map[string]interface{}, key string, ec *execctx.Context) (string, error) {
	raw, _ := config[key].(string)
	return ec.Resolve(raw)
}

// nodeIDFromContext is a placeholder the scheduler fills by wrapping ctx
// with the current node id (see pkg/scheduler); returns "" if absent so
// tests calling executors directly still work.
func nodeIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(nodeIDContextKey{}).(string); ok {
		return v
	}
	return ""
}

type nodeIDContextKey struct{}

// WithNodeID attaches the current node id to ctx for executors (like
// TranscodeMediaExecutor) that need it for process-record attribution.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, nodeIDContextKey{}, nodeID)
}
