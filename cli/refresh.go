// ABOUTME: Background refresh CLI command
// ABOUTME: Keeps the calendar connection warm on a schedule until interrupted
package cli

import (
	"flag"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/daybook/sync"
)

// minRefreshInterval keeps the refresher from hammering the token endpoint.
const minRefreshInterval = time.Minute

// RefreshCommand silently revalidates the connection once or on an interval.
func RefreshCommand(o *sync.Orchestrator, logger *log.Logger, defaultInterval time.Duration, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	interval := fs.String("interval", defaultInterval.String(), "Refresh interval (e.g., 15m, 1h)")
	once := fs.Bool("once", false, "Refresh once and exit")
	_ = fs.Parse(args)

	if !o.State().HasToken() {
		return fmt.Errorf("not connected. Run 'daybook connect' first")
	}

	ctx, stop := commandContext()
	defer stop()

	if *once {
		refresher := sync.NewRefresher(o, sync.DefaultRefreshSpec, logger)
		if !refresher.RunOnce(ctx) {
			return fmt.Errorf("refresh failed. Run 'daybook connect' to reconnect")
		}
		fmt.Println("✓ Connection refreshed")
		return nil
	}

	d, err := parseInterval(*interval)
	if err != nil {
		return err
	}

	fmt.Printf("Refreshing every %s (Ctrl+C to stop)\n", d)
	refresher := sync.NewRefresher(o, sync.EverySpec(d), logger)
	if err := refresher.Run(ctx); err != nil {
		return err
	}

	fmt.Println("\n✓ Refresher stopped")
	return nil
}

// parseInterval parses a refresh interval and enforces the minimum.
func parseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if d < minRefreshInterval {
		return 0, fmt.Errorf("interval must be at least %s", minRefreshInterval)
	}
	return d, nil
}
