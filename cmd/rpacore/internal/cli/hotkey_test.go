package cli

import "testing"

func TestServeHotkeyCommandReportsMissingListener(t *testing.T) {
	cmd := newServeHotkeyCommand()
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected an error without a compiled-in platform listener")
	}
}
