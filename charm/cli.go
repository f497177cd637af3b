// ABOUTME: CLI commands for the Charm KV storage backend
// ABOUTME: Status, manual sync, and wipe for connection data kept in Charm Cloud

package charm

import (
	"flag"
	"fmt"
)

// StatusCommand shows current Charm configuration and stored keys.
func StatusCommand(c *Client, args []string) error {
	fs := flag.NewFlagSet("kv status", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg := c.Config()
	fmt.Println("Charm Storage Status")
	fmt.Println("────────────────────")
	fmt.Printf("Server:    %s\n", cfg.Host)
	fmt.Printf("Auto-sync: %v\n", cfg.AutoSync)

	if id, err := c.ID(); err != nil {
		fmt.Println("\nStatus: Not connected")
	} else {
		fmt.Println("\nStatus: Connected to Charm Cloud")
		fmt.Printf("ID:        %s\n", id)
	}

	connections, err := c.KeysWithPrefix([]byte(connectionPrefix))
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	runs, err := c.KeysWithPrefix([]byte(syncPrefix))
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	fmt.Printf("Connections: %d\n", len(connections))
	fmt.Printf("Sync runs:   %d\n", len(runs))

	fmt.Println("\nCharm uses SSH keys for authentication - no login required!")
	return nil
}

// SyncCommand performs an immediate sync with the Charm server.
func SyncCommand(c *Client, args []string) error {
	fs := flag.NewFlagSet("kv sync", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Show verbose output")
	_ = fs.Parse(args)

	if *verbose {
		fmt.Println("Syncing with server...")
	}

	if err := c.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Println("✓ Synced")
	return nil
}

// WipeCommand deletes all daybook data from the KV store.
func WipeCommand(c *Client, args []string) error {
	fs := flag.NewFlagSet("kv wipe", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "Confirm data wipe")
	_ = fs.Parse(args)

	if !*confirm {
		fmt.Println("WARNING: This will delete the stored calendar connection and sync history!")
		fmt.Println()
		fmt.Println("To confirm, run:")
		fmt.Println("  daybook kv wipe --confirm")
		return nil
	}

	if err := c.Reset(); err != nil {
		return fmt.Errorf("failed to reset KV store: %w", err)
	}

	fmt.Println("✓ All data wiped")
	fmt.Println("Run 'daybook connect' to connect your calendar again.")
	return nil
}
