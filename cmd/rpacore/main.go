// Command rpacore is the execution core's CLI entry point: it loads a
// workflow definition, wires the Bus singletons, runs the workflow, and
// relays rendezvous prompts to an interactive console observer.
//
// Grounded on the teacher's cmd/server (flag-driven startup, graceful
// shutdown) and on tombee-conductor's internal/cli (cobra root command
// shape, persistent flags, SilenceUsage/SilenceErrors so the command
// layer controls its own exit codes).
package main

import (
	"fmt"
	"os"

	"github.com/rpacore/engine/cmd/rpacore/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
