package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpacore/engine/cmd/rpacore/internal/console"
	"github.com/rpacore/engine/pkg/bus"
	"github.com/rpacore/engine/pkg/rlog"
	"github.com/rpacore/engine/pkg/workflow"
)

func newRunCommand(verbose *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow.json|workflow.yaml>",
		Short: "Execute a workflow graph to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if *verbose {
				level = "debug"
			}
			logger := rlog.New(rlog.Config{Level: level, Output: os.Stderr})

			wf, err := loadWorkflow(args[0])
			if err != nil {
				return fmt.Errorf("rpacore: loading workflow: %w", err)
			}

			obs := console.NewObserver(!noInteractive(cmd))
			cfg := bus.DefaultConfig()

			// No hotkey listener is wired here: the Bridge's Listener
			// interface (pkg/hotkey) needs a platform-specific OS key
			// capture implementation this CLI doesn't ship.
			b := bus.New(cfg, nil, logger)
			ctx, cancelSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancelSignals()
			b.Start(ctx)
			defer b.Shutdown(context.Background())

			runID := uuid.NewString()
			if err := b.StartRun(ctx, runID, *wf, obs.Dispatch(b, runID)); err != nil {
				return fmt.Errorf("rpacore: starting run: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s started for workflow %q\n", runID, wf.ID)
			result, err := b.Wait(runID)
			if err != nil {
				return fmt.Errorf("rpacore: run failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s finished: status=%s executed=%d failed=%d\n",
				runID, result.Status, result.ExecutedCount, result.FailedCount)
			if result.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", result.Error)
			}
			if string(result.Status) != "completed" {
				return fmt.Errorf("rpacore: run ended with status %q", result.Status)
			}
			return nil
		},
	}
	cmd.Flags().Bool("no-interactive", false, "fail prompts instead of asking on the terminal")

	return cmd
}

func noInteractive(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("no-interactive")
	return v
}

func loadWorkflow(path string) (*workflow.Workflow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return workflow.LoadYAML(path)
	default:
		return workflow.LoadJSON(path)
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.json|workflow.yaml>",
		Short: "Check that a workflow graph indexes cleanly without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(args[0])
			if err != nil {
				return fmt.Errorf("rpacore: loading workflow: %w", err)
			}
			graph, err := workflow.Index(*wf)
			if err != nil {
				return fmt.Errorf("rpacore: %w", err)
			}
			if wf.StartNodeID == "" {
				return fmt.Errorf("rpacore: workflow %q has no start_node_id", wf.ID)
			}
			if _, ok := graph.Node(wf.StartNodeID); !ok {
				return fmt.Errorf("rpacore: workflow %q's start node %q is not in the graph", wf.ID, wf.StartNodeID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is valid: %d nodes, %d edges\n", wf.ID, len(wf.Nodes), len(wf.Edges))
			return nil
		},
	}
}
