// ABOUTME: Connection lifecycle CLI commands
// ABOUTME: connect, disconnect, status, calendars, and select
package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/harperreed/daybook/models"
	"github.com/harperreed/daybook/sync"
)

// ConnectCommand signs in and selects a calendar.
func ConnectCommand(o *sync.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx, stop := commandContext()
	defer stop()

	if err := o.Connect(ctx); err != nil {
		if sync.IsUserCancelled(err) {
			fmt.Println("Sign-in cancelled.")
			return nil
		}
		return fmt.Errorf("%s: %w", messageOrDefault(err), err)
	}

	state := o.State()
	fmt.Printf("\n✓ Connected to Google Calendar\n")
	fmt.Printf("✓ Selected calendar: %s\n\n", calendarLabel(state))
	fmt.Println("Run 'daybook events' to see this week's agenda.")
	return nil
}

// DisconnectCommand signs out and forgets the stored connection.
func DisconnectCommand(o *sync.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("disconnect", flag.ExitOnError)
	_ = fs.Parse(args)

	if err := o.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("disconnect incomplete: %w", err)
	}

	fmt.Println("✓ Disconnected")
	return nil
}

// StatusCommand prints the connection state and recent sync history.
func StatusCommand(o *sync.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	history := fs.Int("history", 5, "Number of recent syncs to show")
	_ = fs.Parse(args)

	ctx := context.Background()
	state := o.State()

	fmt.Println("Calendar Connection")
	fmt.Println("───────────────────")
	fmt.Printf("Status:    %s\n", state.Phase)
	if !o.IsConfigured() {
		fmt.Println("\nGoogle Calendar is not configured.")
		fmt.Println("Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET, then run 'daybook connect'.")
		return nil
	}
	if !state.HasToken() {
		fmt.Println("\nRun 'daybook connect' to connect your calendar.")
		return nil
	}

	fmt.Printf("Calendar:  %s\n", calendarLabel(state))
	if state.ConnectedAt != nil {
		fmt.Printf("Connected: %s\n", formatTimeSince(*state.ConnectedAt))
	}
	if state.LastSyncAt != nil {
		fmt.Printf("Last sync: %s\n", formatTimeSince(*state.LastSyncAt))
	} else {
		fmt.Println("Last sync: never")
	}
	if state.TokenExpiry != nil {
		if state.TokenExpiry.After(time.Now()) {
			fmt.Printf("Token:     valid until %s\n", state.TokenExpiry.Local().Format("Jan 2 15:04"))
		} else {
			fmt.Println("Token:     expired (will refresh on next sync)")
		}
	}
	if state.LastError != "" {
		fmt.Printf("Error:     %s\n", state.LastError)
	}

	runs, err := o.SyncHistory(ctx, *history)
	if err != nil {
		return fmt.Errorf("failed to load sync history: %w", err)
	}
	if len(runs) > 0 {
		fmt.Println("\nRecent syncs:")
		for _, run := range runs {
			marker := "✓"
			detail := fmt.Sprintf("%d events", run.EventCount)
			if !run.Succeeded() {
				marker = "✗"
				detail = run.ErrorMessage
			}
			fmt.Printf("  %s %s  %s\n", marker, run.StartedAt.Local().Format("Jan 2 15:04"), detail)
		}
	}

	return nil
}

// CalendarsCommand lists the calendars available to the connected account.
func CalendarsCommand(o *sync.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("calendars", flag.ExitOnError)
	_ = fs.Parse(args)

	calendars, err := loadCalendars(context.Background(), o)
	if err != nil {
		return err
	}

	selected := o.State().SelectedCalendarID
	fmt.Printf("Calendars (%d):\n\n", len(calendars))
	for _, cal := range calendars {
		marker := " "
		if cal.ID == selected {
			marker = "*"
		}
		access := "read-only"
		if cal.CanWrite() {
			access = "writable"
		}
		fmt.Printf("%s %s\n", marker, cal.Name)
		fmt.Printf("    ID: %s (%s)\n", cal.ID, access)
	}
	return nil
}

// SelectCommand selects the calendar whose events are fetched.
func SelectCommand(o *sync.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("calendar ID is required\nUsage: daybook select <calendar-id>")
	}
	id := fs.Arg(0)

	ctx := context.Background()
	calendars, err := loadCalendars(ctx, o)
	if err != nil {
		return err
	}

	var target *models.CalendarDescriptor
	for i := range calendars {
		if calendars[i].ID == id {
			target = &calendars[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("calendar not found: %s", id)
	}

	if err := o.SelectCalendar(ctx, *target); err != nil {
		return fmt.Errorf("failed to select calendar: %w", err)
	}

	fmt.Printf("✓ Selected calendar: %s\n", target.Name)
	return nil
}

// loadCalendars returns the cached calendar list, refreshing it silently when empty.
func loadCalendars(ctx context.Context, o *sync.Orchestrator) ([]models.CalendarDescriptor, error) {
	if calendars := o.Calendars(); len(calendars) > 0 {
		return calendars, nil
	}
	if !o.State().HasToken() {
		return nil, fmt.Errorf("not connected. Run 'daybook connect' first")
	}
	if !o.RefreshSilently(ctx) {
		return nil, fmt.Errorf("could not reach Google Calendar. Run 'daybook connect' to reconnect")
	}
	return o.Calendars(), nil
}

func calendarLabel(state models.ConnectionState) string {
	switch {
	case state.SelectedCalendarName != "":
		return state.SelectedCalendarName
	case state.SelectedCalendarID != "":
		return state.SelectedCalendarID
	}
	return "(none)"
}

func messageOrDefault(err error) string {
	if msg := sync.UserMessage(err); msg != "" {
		return msg
	}
	return "connection failed"
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}

	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
