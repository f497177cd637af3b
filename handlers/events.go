// ABOUTME: Calendar event MCP tool handlers
// ABOUTME: Implements fetch_events, create_event, update_event, and delete_event
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/daybook/models"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

type FetchEventsInput struct {
	StartDate string `json:"start_date,omitempty" jsonschema:"First day in YYYY-MM-DD (default today)"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"Last day inclusive in YYYY-MM-DD"`
	Days      int    `json:"days,omitempty" jsonschema:"Number of days when end_date is omitted (default 7)"`
}

type EventOutput struct {
	ID            string `json:"id"`
	SourceEventID string `json:"source_event_id"`
	Title         string `json:"title"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	AllDay        bool   `json:"all_day"`
	DayLabel      string `json:"day_label,omitempty"`
	Description   string `json:"description,omitempty"`
	Link          string `json:"link,omitempty"`
}

type FetchEventsOutput struct {
	CalendarID string        `json:"calendar_id"`
	StartDate  string        `json:"start_date"`
	EndDate    string        `json:"end_date"`
	Events     []EventOutput `json:"events"`
}

func (h *CalendarHandlers) FetchEvents(ctx context.Context, _ *mcp.CallToolRequest, input FetchEventsInput) (*mcp.CallToolResult, FetchEventsOutput, error) {
	start, end, err := h.window(input)
	if err != nil {
		return nil, FetchEventsOutput{}, err
	}

	events, err := h.orchestrator.FetchEvents(ctx, start, end)
	if err != nil {
		return nil, FetchEventsOutput{}, toolError(err)
	}

	out := FetchEventsOutput{
		CalendarID: h.orchestrator.State().SelectedCalendarID,
		StartDate:  start.Format(dateLayout),
		EndDate:    end.AddDate(0, 0, -1).Format(dateLayout),
		Events:     make([]EventOutput, 0, len(events)),
	}
	for _, e := range events {
		out.Events = append(out.Events, EventOutput{
			ID:            e.ID,
			SourceEventID: e.SourceEventID,
			Title:         e.Title,
			Date:          e.Date,
			StartTime:     e.StartTime,
			EndTime:       e.EndTime,
			AllDay:        e.IsAllDay,
			DayLabel:      e.DayLabel,
			Description:   e.Description,
			Link:          e.HTMLLink,
		})
	}
	return nil, out, nil
}

func (h *CalendarHandlers) window(input FetchEventsInput) (time.Time, time.Time, error) {
	now := time.Now().In(h.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	if input.StartDate != "" {
		parsed, err := time.ParseInLocation(dateLayout, input.StartDate, h.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date: %s (want YYYY-MM-DD)", input.StartDate)
		}
		start = parsed
	}

	if input.EndDate != "" {
		last, err := time.ParseInLocation(dateLayout, input.EndDate, h.loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date: %s (want YYYY-MM-DD)", input.EndDate)
		}
		if last.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("end_date is before start_date")
		}
		return start, last.AddDate(0, 0, 1), nil
	}

	days := input.Days
	if days <= 0 {
		days = h.windowDays
	}
	return start, start.AddDate(0, 0, days), nil
}

type CreateEventInput struct {
	Title       string `json:"title" jsonschema:"Event title (required)"`
	Date        string `json:"date" jsonschema:"Event date in YYYY-MM-DD (required)"`
	StartTime   string `json:"start_time,omitempty" jsonschema:"Start time HH:MM; omit for an all-day event"`
	EndTime     string `json:"end_time,omitempty" jsonschema:"End time HH:MM (default one hour after start)"`
	Days        int    `json:"days,omitempty" jsonschema:"Length in days for all-day events (default 1)"`
	Description string `json:"description,omitempty" jsonschema:"Event description"`
}

type WrittenEventOutput struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Link  string `json:"link,omitempty"`
}

func (h *CalendarHandlers) CreateEvent(ctx context.Context, _ *mcp.CallToolRequest, input CreateEventInput) (*mcp.CallToolResult, WrittenEventOutput, error) {
	if input.Title == "" {
		return nil, WrittenEventOutput{}, fmt.Errorf("title is required")
	}
	if input.Date == "" {
		return nil, WrittenEventOutput{}, fmt.Errorf("date is required")
	}

	eventInput, err := h.eventInput(input)
	if err != nil {
		return nil, WrittenEventOutput{}, err
	}

	event, err := h.orchestrator.CreateEvent(ctx, eventInput)
	if err != nil {
		return nil, WrittenEventOutput{}, toolError(err)
	}
	return nil, WrittenEventOutput{ID: event.ID, Title: event.Title, Link: event.HTMLLink}, nil
}

type UpdateEventInput struct {
	EventID     string `json:"event_id" jsonschema:"Source event ID (required)"`
	Title       string `json:"title,omitempty" jsonschema:"New title"`
	Date        string `json:"date,omitempty" jsonschema:"New date in YYYY-MM-DD; required when changing times"`
	StartTime   string `json:"start_time,omitempty" jsonschema:"New start time HH:MM; omit for all-day"`
	EndTime     string `json:"end_time,omitempty" jsonschema:"New end time HH:MM"`
	Days        int    `json:"days,omitempty" jsonschema:"Length in days for all-day events"`
	Description string `json:"description,omitempty" jsonschema:"New description"`
}

func (h *CalendarHandlers) UpdateEvent(ctx context.Context, _ *mcp.CallToolRequest, input UpdateEventInput) (*mcp.CallToolResult, WrittenEventOutput, error) {
	if input.EventID == "" {
		return nil, WrittenEventOutput{}, fmt.Errorf("event_id is required")
	}

	eventInput := models.EventInput{Title: input.Title, Description: input.Description}
	if input.Date != "" {
		timed, err := h.eventInput(CreateEventInput{
			Title:       input.Title,
			Date:        input.Date,
			StartTime:   input.StartTime,
			EndTime:     input.EndTime,
			Days:        input.Days,
			Description: input.Description,
		})
		if err != nil {
			return nil, WrittenEventOutput{}, err
		}
		eventInput = timed
	}
	if eventInput == (models.EventInput{}) {
		return nil, WrittenEventOutput{}, fmt.Errorf("nothing to update")
	}

	event, err := h.orchestrator.UpdateEvent(ctx, input.EventID, eventInput)
	if err != nil {
		return nil, WrittenEventOutput{}, toolError(err)
	}
	return nil, WrittenEventOutput{ID: event.ID, Title: event.Title, Link: event.HTMLLink}, nil
}

type DeleteEventInput struct {
	EventID string `json:"event_id" jsonschema:"Source event ID (required)"`
}

type DeleteEventOutput struct {
	Deleted bool   `json:"deleted"`
	EventID string `json:"event_id"`
}

func (h *CalendarHandlers) DeleteEvent(ctx context.Context, _ *mcp.CallToolRequest, input DeleteEventInput) (*mcp.CallToolResult, DeleteEventOutput, error) {
	if input.EventID == "" {
		return nil, DeleteEventOutput{}, fmt.Errorf("event_id is required")
	}

	if err := h.orchestrator.DeleteEvent(ctx, input.EventID); err != nil {
		return nil, DeleteEventOutput{}, toolError(err)
	}
	return nil, DeleteEventOutput{Deleted: true, EventID: input.EventID}, nil
}

func (h *CalendarHandlers) eventInput(input CreateEventInput) (models.EventInput, error) {
	day, err := time.ParseInLocation(dateLayout, input.Date, h.loc)
	if err != nil {
		return models.EventInput{}, fmt.Errorf("invalid date: %s (want YYYY-MM-DD)", input.Date)
	}

	out := models.EventInput{
		Title:       input.Title,
		Description: input.Description,
		TimeZone:    h.loc.String(),
	}

	if input.StartTime == "" {
		days := input.Days
		if days < 1 {
			days = 1
		}
		out.AllDay = true
		out.Start = day
		out.End = day.AddDate(0, 0, days)
		return out, nil
	}

	start, err := atClock(day, input.StartTime)
	if err != nil {
		return models.EventInput{}, err
	}
	end := start.Add(time.Hour)
	if input.EndTime != "" {
		if end, err = atClock(day, input.EndTime); err != nil {
			return models.EventInput{}, err
		}
	}
	if !end.After(start) {
		return models.EventInput{}, fmt.Errorf("end_time must be after start_time")
	}

	out.Start = start
	out.End = end
	return out, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time: %s (want HH:MM)", clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
