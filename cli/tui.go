// ABOUTME: TUI subcommand
// ABOUTME: Launches the interactive weekly agenda
package cli

import (
	"time"

	"github.com/harperreed/daybook/sync"
	"github.com/harperreed/daybook/tui"
)

// TUICommand starts the full-screen agenda.
func TUICommand(o *sync.Orchestrator, loc *time.Location, refreshInterval time.Duration) error {
	return tui.Run(o, loc, refreshInterval)
}
