// Package console implements an interactive terminal observer for the
// Rendezvous Registry (spec §4.5): it answers input_prompt requests with
// github.com/AlecAivazis/survey/v2 and replies to everything else with a
// synthetic "unsupported in this terminal" payload.
//
// Grounded on tombee-conductor's internal/cli/prompt.SurveyPrompter
// (survey.AskOne usage, an interactive/non-interactive toggle) adapted
// from conductor's config-wizard prompts to answering one-shot
// rendezvous requests dispatched from a running workflow.
package console

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"

	"github.com/rpacore/engine/pkg/rendezvous"
)

// runner is the subset of *bus.Bus the observer needs: delivering a
// reply back to the run that issued the request. Kept as an interface so
// this package never imports pkg/bus directly, avoiding a cycle with any
// future bus-side console wiring.
type runner interface {
	DeliverRendezvousReply(runID, requestID string, reply rendezvous.Reply) error
}

// Observer answers rendezvous requests on the terminal.
type Observer struct {
	interactive bool
}

// NewObserver creates an Observer. When interactive is false, every
// request is answered with a synthetic cancellation instead of blocking
// on terminal input — matching a headless/CI invocation of rpacore run.
func NewObserver(interactive bool) *Observer {
	return &Observer{interactive: interactive}
}

// Dispatch returns a rendezvous.DispatchFunc bound to one run, suitable
// for passing straight to bus.Bus.StartRun.
func (o *Observer) Dispatch(b runner, runID string) rendezvous.DispatchFunc {
	return func(category rendezvous.Category, requestID string, payload interface{}) {
		go o.handle(b, runID, category, requestID, payload)
	}
}

func (o *Observer) handle(b runner, runID string, category rendezvous.Category, requestID string, payload interface{}) {
	if !o.interactive {
		_ = b.DeliverRendezvousReply(runID, requestID, rendezvous.Reply{"cancelled": true, "reason": "non-interactive"})
		return
	}

	switch category {
	case rendezvous.CategoryInputPrompt:
		o.answerInputPrompt(b, runID, requestID, payload)
	default:
		fmt.Printf("rpacore: unsupported rendezvous category %q; auto-cancelling\n", category)
		_ = b.DeliverRendezvousReply(runID, requestID, rendezvous.Reply{"cancelled": true, "reason": "unsupported category"})
	}
}

func (o *Observer) answerInputPrompt(b runner, runID, requestID string, payload interface{}) {
	data, _ := payload.(map[string]interface{})
	question, _ := data["question"].(string)
	if question == "" {
		question = "input required"
	}

	var answer string
	prompt := &survey.Input{Message: question}
	if err := survey.AskOne(prompt, &answer); err != nil {
		_ = b.DeliverRendezvousReply(runID, requestID, rendezvous.Reply{"cancelled": true, "reason": err.Error()})
		return
	}
	_ = b.DeliverRendezvousReply(runID, requestID, rendezvous.Reply{"answer": answer})
}
