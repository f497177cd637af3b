// ABOUTME: Entry point for the daybook calendar CLI, TUI, and MCP server
// ABOUTME: Loads config, wires storage, auth, and the calendar API into the orchestrator, then routes commands
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/harperreed/daybook/charm"
	"github.com/harperreed/daybook/cli"
	"github.com/harperreed/daybook/config"
	"github.com/harperreed/daybook/db"
	"github.com/harperreed/daybook/sync"
)

const version = "0.2.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file path (default: ~/.config/daybook/config.yaml)")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/daybook/daybook.db)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	// Handle version flag
	if *showVersion {
		fmt.Printf("daybook version %s\n", version)
		os.Exit(0)
	}

	// Get remaining args after flags
	args := flag.Args()

	// If no command specified, show usage
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)

	// Commands that need no connection
	switch command {
	case "config":
		if err := configCommand(cfg, *configPath, commandArgs); err != nil {
			logger.Fatal("config failed", "err", err)
		}
		return
	case "help":
		printUsage()
		return
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", "err", err)
	}

	store, cleanup, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to open storage", "store", cfg.Store, "err", err)
	}
	defer cleanup()

	prompt := cli.BrowserPrompt
	if command == "mcp" || command == "tui" {
		// stdout belongs to the protocol or the full-screen UI
		prompt = cli.MCPPrompt
	}

	auth := sync.NewOAuthProvider(sync.OAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		CallbackAddr: cfg.CallbackAddr,
	}, prompt, logger)

	orch := sync.NewOrchestrator(sync.Dependencies{
		Auth:     auth,
		API:      sync.NewCalendarClient(),
		Store:    store,
		Logger:   logger,
		Location: loc,
	})

	if err := orch.Restore(context.Background()); err != nil {
		logger.Warn("could not restore saved connection", "err", err)
	}

	if err := route(command, commandArgs, orch, cfg, store, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func route(command string, args []string, orch *sync.Orchestrator, cfg *config.Config, store sync.ConnectionStore, logger *log.Logger) error {
	loc, _ := cfg.Location()

	switch command {
	case "connect":
		return cli.ConnectCommand(orch, args)
	case "disconnect":
		return cli.DisconnectCommand(orch, args)
	case "status":
		return cli.StatusCommand(orch, args)
	case "calendars":
		return cli.CalendarsCommand(orch, args)
	case "select":
		return cli.SelectCommand(orch, args)
	case "events":
		return cli.EventsCommand(orch, loc, cfg.WindowDays, args)
	case "event":
		return cli.EventCommand(orch, loc, args)
	case "refresh":
		return cli.RefreshCommand(orch, logger, cfg.RefreshInterval, args)
	case "tui":
		return cli.TUICommand(orch, loc, cfg.RefreshInterval)
	case "mcp":
		return cli.MCPCommand(orch, logger, loc, cfg.WindowDays, cfg.RefreshInterval, version)
	case "kv":
		kvStore, ok := store.(*charm.ConnectionStore)
		if !ok {
			return fmt.Errorf("kv commands need the charm store (set store: charm in config)")
		}
		return kvCommand(kvStore.Client(), args)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func newLogger(w io.Writer, level string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "daybook",
		ReportTimestamp: true,
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config) (sync.ConnectionStore, func(), error) {
	switch cfg.Store {
	case config.StoreCharm:
		client, err := charm.NewClient(&cfg.Charm)
		if err != nil {
			return nil, nil, err
		}
		return charm.NewConnectionStore(client, db.ProviderGoogle), func() {}, nil
	default:
		database, err := db.OpenDatabase(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return db.NewConnectionStore(database, db.ProviderGoogle), func() { _ = database.Close() }, nil
	}
}

func configCommand(cfg *config.Config, path string, args []string) error {
	if len(args) == 0 || args[0] != "init" {
		return fmt.Errorf("usage: daybook config init [--force]")
	}

	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args[1:])

	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("✓ Config written to %s\n", path)
	return nil
}

func kvCommand(client *charm.Client, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("kv requires a subcommand: status, sync, or wipe")
	}

	switch args[0] {
	case "status":
		return charm.StatusCommand(client, args[1:])
	case "sync":
		return charm.SyncCommand(client, args[1:])
	case "wipe":
		return charm.WipeCommand(client, args[1:])
	default:
		return fmt.Errorf("unknown kv command: %s", args[0])
	}
}

func printUsage() {
	fmt.Printf(`daybook v%s - Google Calendar agenda for the terminal

USAGE:
  daybook [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/daybook/config.yaml)
  --db-path <path>       Database path (default: ~/.local/share/daybook/daybook.db)
  --verbose              Enable debug logging

COMMANDS:
  connect                Sign in to Google and select your primary calendar
  disconnect             Sign out and forget the stored connection
  status                 Show connection status and recent syncs
    --history <n>          Number of recent syncs (default: 5)
  calendars              List available calendars
  select <calendar-id>   Select the calendar to show

  events                 Show the agenda
    --from <YYYY-MM-DD>    First day (default: today)
    --to <YYYY-MM-DD>      Last day, inclusive
    --days <n>             Days to show (default: 7)

  event create           Create an event on the selected calendar
    --title <title>        Event title (required)
    --date <YYYY-MM-DD>    Event date (required)
    --start <HH:MM>        Start time (omit for all-day)
    --end <HH:MM>          End time (default: one hour after start)
    --days <n>             Length of an all-day event (default: 1)
    --description <text>   Description
  event update <id>      Update an event (same flags as create)
  event delete <id>      Delete an event

  refresh                Keep the connection fresh in the background
    --interval <dur>       Refresh interval (default: 15m, minimum 1m)
    --once                 Refresh once and exit

  tui                    Interactive weekly agenda
  mcp                    Start MCP server for Claude Desktop

  config init            Write a config file with defaults
    --force                Overwrite an existing file

  kv status|sync|wipe    Manage Charm KV storage (store: charm)

ENVIRONMENT:
  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET   OAuth client credentials
  DAYBOOK_STORE                            sqlite (default) or charm
  DAYBOOK_TIMEZONE                         IANA zone for the agenda
  DAYBOOK_REFRESH_INTERVAL                 Background refresh interval

EXAMPLES:
  # Connect and show this week
  daybook connect
  daybook events

  # Show the next two weeks of a specific calendar
  daybook select team@example.com
  daybook events --days 14

  # Add a lunch
  daybook event create --title "Lunch" --date 2024-06-11 --start 12:00

`, version)
}
