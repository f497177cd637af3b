// ABOUTME: Event CLI commands
// ABOUTME: Agenda listing over a date window plus create, update, and delete on the selected calendar
package cli

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/daybook/models"
	"github.com/harperreed/daybook/sync"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// EventsCommand fetches and prints the agenda for a date window.
func EventsCommand(o *sync.Orchestrator, loc *time.Location, defaultDays int, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	from := fs.String("from", "", "First day (YYYY-MM-DD, default today)")
	to := fs.String("to", "", "Last day, inclusive (YYYY-MM-DD)")
	days := fs.Int("days", defaultDays, "Number of days when --to is not given")
	_ = fs.Parse(args)

	start, end, err := eventWindow(time.Now().In(loc), loc, *from, *to, *days)
	if err != nil {
		return err
	}

	ctx, stop := commandContext()
	defer stop()

	events, err := o.FetchEvents(ctx, start, end)
	if err != nil {
		return fmt.Errorf("%s: %w", messageOrDefault(err), err)
	}

	fmt.Printf("%s (%s to %s)\n", calendarLabel(o.State()), start.Format("Jan 2"), end.AddDate(0, 0, -1).Format("Jan 2"))
	if len(events) == 0 {
		fmt.Println("\nNo events.")
		return nil
	}

	for _, group := range groupByDate(events) {
		day, err := time.ParseInLocation(dateLayout, group.date, loc)
		if err != nil {
			day = start
		}
		fmt.Printf("\n%s\n", day.Format("Mon, Jan 2"))
		for _, event := range group.events {
			fmt.Printf("  %-13s %s\n", eventWhen(event), eventTitle(event))
		}
	}
	return nil
}

// EventCommand routes event create|update|delete.
func EventCommand(o *sync.Orchestrator, loc *time.Location, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("event requires a subcommand: create, update, or delete")
	}

	switch args[0] {
	case "create":
		return createEvent(o, loc, args[1:])
	case "update":
		return updateEvent(o, loc, args[1:])
	case "delete":
		return deleteEvent(o, args[1:])
	default:
		return fmt.Errorf("unknown event command: %s", args[0])
	}
}

type eventFlags struct {
	title       *string
	description *string
	date        *string
	start       *string
	end         *string
	allDay      *bool
	days        *int
}

func registerEventFlags(fs *flag.FlagSet) eventFlags {
	return eventFlags{
		title:       fs.String("title", "", "Event title"),
		description: fs.String("description", "", "Event description"),
		date:        fs.String("date", "", "Event date (YYYY-MM-DD)"),
		start:       fs.String("start", "", "Start time (HH:MM)"),
		end:         fs.String("end", "", "End time (HH:MM, default one hour after start)"),
		allDay:      fs.Bool("all-day", false, "All-day event"),
		days:        fs.Int("days", 1, "Length in days for all-day events"),
	}
}

func createEvent(o *sync.Orchestrator, loc *time.Location, args []string) error {
	fs := flag.NewFlagSet("event create", flag.ExitOnError)
	flags := registerEventFlags(fs)
	_ = fs.Parse(args)

	if *flags.title == "" {
		return fmt.Errorf("--title is required")
	}
	if *flags.date == "" {
		return fmt.Errorf("--date is required")
	}

	input, err := buildEventInput(flags, loc)
	if err != nil {
		return err
	}

	ctx, stop := commandContext()
	defer stop()

	event, err := o.CreateEvent(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	fmt.Printf("✓ Created event: %s\n", eventTitleOf(event.Title))
	fmt.Printf("  ID: %s\n", event.ID)
	return nil
}

func updateEvent(o *sync.Orchestrator, loc *time.Location, args []string) error {
	fs := flag.NewFlagSet("event update", flag.ExitOnError)
	flags := registerEventFlags(fs)

	// Accept the ID before or after the flags
	var eventID string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		eventID, args = args[0], args[1:]
	}
	_ = fs.Parse(args)
	if eventID == "" {
		eventID = fs.Arg(0)
	}

	if eventID == "" {
		return fmt.Errorf("event ID is required\nUsage: daybook event update <event-id> [flags]")
	}

	input := models.EventInput{
		Title:       *flags.title,
		Description: *flags.description,
	}
	if *flags.date != "" {
		timed, err := buildEventInput(flags, loc)
		if err != nil {
			return err
		}
		input.Start, input.End, input.AllDay, input.TimeZone = timed.Start, timed.End, timed.AllDay, timed.TimeZone
	}
	if input == (models.EventInput{}) {
		return fmt.Errorf("nothing to update")
	}

	ctx, stop := commandContext()
	defer stop()

	event, err := o.UpdateEvent(ctx, eventID, input)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	fmt.Printf("✓ Updated event: %s\n", eventTitleOf(event.Title))
	return nil
}

func deleteEvent(o *sync.Orchestrator, args []string) error {
	fs := flag.NewFlagSet("event delete", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("event ID is required\nUsage: daybook event delete <event-id>")
	}

	ctx, stop := commandContext()
	defer stop()

	if err := o.DeleteEvent(ctx, fs.Arg(0)); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	fmt.Printf("✓ Deleted event: %s\n", fs.Arg(0))
	return nil
}

// buildEventInput turns date and clock flags into an EventInput in loc.
func buildEventInput(flags eventFlags, loc *time.Location) (models.EventInput, error) {
	day, err := time.ParseInLocation(dateLayout, *flags.date, loc)
	if err != nil {
		return models.EventInput{}, fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", *flags.date)
	}

	input := models.EventInput{
		Title:       *flags.title,
		Description: *flags.description,
		TimeZone:    loc.String(),
	}

	if *flags.allDay || *flags.start == "" {
		days := *flags.days
		if days < 1 {
			days = 1
		}
		input.AllDay = true
		input.Start = day
		input.End = day.AddDate(0, 0, days)
		return input, nil
	}

	start, err := atClock(day, *flags.start)
	if err != nil {
		return models.EventInput{}, err
	}
	end := start.Add(time.Hour)
	if *flags.end != "" {
		if end, err = atClock(day, *flags.end); err != nil {
			return models.EventInput{}, err
		}
	}
	if !end.After(start) {
		return models.EventInput{}, fmt.Errorf("end time must be after start time")
	}

	input.Start = start
	input.End = end
	return input, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// eventWindow returns [start, end) covering whole days in loc.
func eventWindow(now time.Time, loc *time.Location, from, to string, days int) (time.Time, time.Time, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if from != "" {
		parsed, err := time.ParseInLocation(dateLayout, from, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q (want YYYY-MM-DD)", from)
		}
		start = parsed
	}

	if to != "" {
		last, err := time.ParseInLocation(dateLayout, to, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q (want YYYY-MM-DD)", to)
		}
		if last.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("--to is before --from")
		}
		return start, last.AddDate(0, 0, 1), nil
	}

	if days < 1 {
		return time.Time{}, time.Time{}, fmt.Errorf("--days must be at least 1")
	}
	return start, start.AddDate(0, 0, days), nil
}

type dayGroup struct {
	date   string
	events []models.DisplayEvent
}

// groupByDate keeps input order; events arrive sorted by start.
func groupByDate(events []models.DisplayEvent) []dayGroup {
	var groups []dayGroup
	index := map[string]int{}
	for _, event := range events {
		i, ok := index[event.Date]
		if !ok {
			i = len(groups)
			index[event.Date] = i
			groups = append(groups, dayGroup{date: event.Date})
		}
		groups[i].events = append(groups[i].events, event)
	}
	return groups
}

func eventWhen(event models.DisplayEvent) string {
	if event.IsAllDay {
		return "All day"
	}
	if event.EndTime == "" {
		return event.StartTime
	}
	return event.StartTime + "-" + event.EndTime
}

func eventTitle(event models.DisplayEvent) string {
	if event.DayLabel == "" {
		return event.Title
	}
	return fmt.Sprintf("%s (%s)", event.Title, event.DayLabel)
}

func eventTitleOf(title string) string {
	if strings.TrimSpace(title) == "" {
		return "(No title)"
	}
	return title
}
