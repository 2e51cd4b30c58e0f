package executor

import (
	"context"
	"testing"
)

func TestTranscodeMediaExecutorRequiresSupervisor(t *testing.T) {
	e := TranscodeMediaExecutor{}
	res, err := e.Execute(context.Background(), map[string]interface{}{
		"input":  "in.mp4",
		"output": "out.mp4",
	}, newTestContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure when no process supervisor is wired in")
	}
}

func TestTranscodeMediaExecutorValidateRequiresInputAndOutput(t *testing.T) {
	e := TranscodeMediaExecutor{}
	if err := e.Validate(map[string]interface{}{}); err == nil {
		t.Fatalf("expected Validate to require input")
	}
	if err := e.Validate(map[string]interface{}{"input": "in.mp4"}); err == nil {
		t.Fatalf("expected Validate to require output")
	}
	if err := e.Validate(map[string]interface{}{"input": "in.mp4", "output": "out.mp4"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithNodeIDRoundTrips(t *testing.T) {
	ctx := WithNodeID(context.Background(), "node-7")
	if got := nodeIDFromContext(ctx); got != "node-7" {
		t.Fatalf("expected node-7, got %q", got)
	}
	if got := nodeIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string when no node id is attached, got %q", got)
	}
}
