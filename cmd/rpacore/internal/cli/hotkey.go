package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeHotkeyCommand documents the Hotkey Bridge's plug point: this
// CLI build carries pkg/hotkey's Bridge but no platform-specific
// hotkey.Listener implementation, so running it reports that clearly
// instead of silently doing nothing.
func newServeHotkeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-hotkey",
		Short: "Run the OS-level hotkey bridge standalone (requires a platform listener build)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("rpacore: this build was not compiled with a platform hotkey.Listener; see pkg/hotkey.Listener")
		},
	}
}
