package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the rpacore root command. Grounded on
// tombee-conductor's internal/cli.NewRootCommand: SilenceUsage and
// SilenceErrors so main controls the printed error and exit code, and a
// persistent --verbose flag threaded to every subcommand.
func NewRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "rpacore",
		Short: "rpacore runs visual RPA workflow graphs",
		Long: `rpacore is the execution core for a visual RPA node-graph workflow
engine: it loads a workflow definition, walks its graph one node at a
time, and relays interactive prompts to this terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	cmd.AddCommand(newRunCommand(&verbose))
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newServeHotkeyCommand())

	return cmd
}
