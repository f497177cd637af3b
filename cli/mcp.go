// ABOUTME: MCP server subcommand
// ABOUTME: Exposes the calendar connection and events as MCP tools over stdio
package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/daybook/handlers"
	"github.com/harperreed/daybook/sync"
)

// NewMCPServer registers the calendar tools on a new server.
func NewMCPServer(o *sync.Orchestrator, loc *time.Location, windowDays int, version string) *mcp.Server {
	calendarHandlers := handlers.NewCalendarHandlers(o, loc, windowDays)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "daybook",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "connection_status",
		Description: "Show the Google Calendar connection phase, selected calendar, last sync, and recent notices",
	}, calendarHandlers.ConnectionStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "connect_calendar",
		Description: "Connect Google Calendar; opens a browser for sign-in when no valid session exists",
	}, calendarHandlers.ConnectCalendar)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_calendars",
		Description: "List calendars available to the connected account",
	}, calendarHandlers.ListCalendars)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_calendar",
		Description: "Select the calendar whose events are fetched and written",
	}, calendarHandlers.SelectCalendar)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_events",
		Description: "Fetch events from the selected calendar for a date window, one entry per day for multi-day events",
	}, calendarHandlers.FetchEvents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_event",
		Description: "Create a timed or all-day event on the selected calendar",
	}, calendarHandlers.CreateEvent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_event",
		Description: "Update the title, description, or time of an event on the selected calendar",
	}, calendarHandlers.UpdateEvent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_event",
		Description: "Delete an event from the selected calendar",
	}, calendarHandlers.DeleteEvent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh_connection",
		Description: "Silently revalidate the connection and refresh the calendar list without prompting",
	}, calendarHandlers.RefreshConnection)

	return server
}

// MCPCommand starts the MCP server on stdio, refreshing the connection in the background.
func MCPCommand(o *sync.Orchestrator, logger *log.Logger, loc *time.Location, windowDays int, refreshInterval time.Duration, version string) error {
	logger.Info("Starting daybook MCP server...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := sync.NewRefresher(o, sync.EverySpec(refreshInterval), logger)
	go func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("background refresh failed", "err", err)
		}
	}()

	// Run server on stdio transport
	return NewMCPServer(o, loc, windowDays, version).Run(ctx, &mcp.StdioTransport{})
}
