package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rpacore/engine/pkg/execctx"
	"github.com/rpacore/engine/pkg/rendezvous"
)

// InputPromptExecutor suspends the worker on the Rendezvous Registry
// until an observer answers a prompt — the canonical example of spec
// §4.5's "let a worker inside an executor issue a request to an
// observer ... and block until the observer replies".
type InputPromptExecutor struct {
	DefaultTimeout time.Duration
}

func (InputPromptExecutor) ModuleType() string { return "input_prompt" }

func (InputPromptExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["question"]; !ok {
		return fmt.Errorf("input_prompt: missing required field %q", "question")
	}
	return nil
}

func (e InputPromptExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	question, _ := config["question"].(string)
	resolved, err := ec.Resolve(question)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	if ec.Rendezvous == nil {
		return Result{Success: false, Error: "input_prompt: no rendezvous registry wired into this context"}, nil
	}

	timeout := e.DefaultTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	id := ec.Rendezvous.Register(rendezvous.CategoryInputPrompt)
	ec.Rendezvous.Dispatch(id, map[string]interface{}{"question": resolved})

	reply, err := ec.Rendezvous.AwaitReply(ctx, id, timeout)
	if err != nil {
		if _, ok := err.(*rendezvous.TimeoutError); ok {
			return Result{Success: false, Error: "input_prompt: timed out waiting for a reply"}, nil
		}
		return Result{Success: false, Error: err.Error()}, err
	}
	if cancelled, _ := reply["cancelled"].(bool); cancelled {
		return Result{Success: false, Error: "input_prompt: cancelled"}, nil
	}

	answer := reply["answer"]
	if name, _ := config["save_as"].(string); name != "" {
		ec.SetVariable(name, answer)
	}
	return Result{Success: true, Data: answer}, nil
}
