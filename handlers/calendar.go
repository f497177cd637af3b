// ABOUTME: Calendar connection MCP tool handlers
// ABOUTME: Implements connection_status, connect_calendar, list_calendars, select_calendar, and refresh_connection
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/daybook/models"
	"github.com/harperreed/daybook/sync"
)

type CalendarHandlers struct {
	orchestrator *sync.Orchestrator
	loc          *time.Location
	windowDays   int
}

func NewCalendarHandlers(o *sync.Orchestrator, loc *time.Location, windowDays int) *CalendarHandlers {
	if loc == nil {
		loc = time.Local
	}
	if windowDays <= 0 {
		windowDays = 7
	}
	return &CalendarHandlers{orchestrator: o, loc: loc, windowDays: windowDays}
}

type EmptyInput struct{}

type NoticeOutput struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type StatusOutput struct {
	Phase        string         `json:"phase"`
	Configured   bool           `json:"configured"`
	Connected    bool           `json:"connected"`
	CalendarID   string         `json:"calendar_id,omitempty"`
	CalendarName string         `json:"calendar_name,omitempty"`
	LastSyncAt   string         `json:"last_sync_at,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	Notices      []NoticeOutput `json:"notices,omitempty"`
}

func (h *CalendarHandlers) ConnectionStatus(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
	return nil, h.status(), nil
}

func (h *CalendarHandlers) ConnectCalendar(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
	if err := h.orchestrator.Connect(ctx); err != nil {
		return nil, StatusOutput{}, toolError(err)
	}
	return nil, h.status(), nil
}

func (h *CalendarHandlers) status() StatusOutput {
	state := h.orchestrator.State()
	out := StatusOutput{
		Phase:        string(state.Phase),
		Configured:   h.orchestrator.IsConfigured(),
		Connected:    state.HasToken() && (state.Phase == models.PhaseConnected || state.Phase == models.PhaseSyncing),
		CalendarID:   state.SelectedCalendarID,
		CalendarName: state.SelectedCalendarName,
		LastError:    state.LastError,
	}
	if state.LastSyncAt != nil {
		out.LastSyncAt = state.LastSyncAt.Format(time.RFC3339)
	}
	for _, n := range h.orchestrator.Notices() {
		out.Notices = append(out.Notices, NoticeOutput{
			Level:     string(n.Level),
			Message:   n.Message,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

type CalendarOutput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Primary  bool   `json:"primary"`
	Writable bool   `json:"writable"`
	Selected bool   `json:"selected"`
}

type ListCalendarsOutput struct {
	Calendars []CalendarOutput `json:"calendars"`
}

func (h *CalendarHandlers) ListCalendars(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, ListCalendarsOutput, error) {
	calendars, err := h.calendars(ctx)
	if err != nil {
		return nil, ListCalendarsOutput{}, err
	}

	selected := h.orchestrator.State().SelectedCalendarID
	out := ListCalendarsOutput{Calendars: make([]CalendarOutput, 0, len(calendars))}
	for _, cal := range calendars {
		out.Calendars = append(out.Calendars, CalendarOutput{
			ID:       cal.ID,
			Name:     cal.Name,
			Primary:  cal.Primary,
			Writable: cal.CanWrite(),
			Selected: cal.ID == selected,
		})
	}
	return nil, out, nil
}

type SelectCalendarInput struct {
	CalendarID string `json:"calendar_id" jsonschema:"Calendar ID from list_calendars (required)"`
}

func (h *CalendarHandlers) SelectCalendar(ctx context.Context, _ *mcp.CallToolRequest, input SelectCalendarInput) (*mcp.CallToolResult, StatusOutput, error) {
	if input.CalendarID == "" {
		return nil, StatusOutput{}, fmt.Errorf("calendar_id is required")
	}

	calendars, err := h.calendars(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	for _, cal := range calendars {
		if cal.ID == input.CalendarID {
			if err := h.orchestrator.SelectCalendar(ctx, cal); err != nil {
				return nil, StatusOutput{}, toolError(err)
			}
			return nil, h.status(), nil
		}
	}
	return nil, StatusOutput{}, fmt.Errorf("calendar not found: %s", input.CalendarID)
}

type RefreshOutput struct {
	Refreshed bool   `json:"refreshed"`
	Phase     string `json:"phase"`
}

func (h *CalendarHandlers) RefreshConnection(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, RefreshOutput, error) {
	ok := h.orchestrator.RefreshSilently(ctx)
	return nil, RefreshOutput{Refreshed: ok, Phase: string(h.orchestrator.Phase())}, nil
}

// calendars returns the cached list, refreshing silently when it is empty.
func (h *CalendarHandlers) calendars(ctx context.Context) ([]models.CalendarDescriptor, error) {
	if cached := h.orchestrator.Calendars(); len(cached) > 0 {
		return cached, nil
	}
	if !h.orchestrator.State().HasToken() {
		return nil, fmt.Errorf("not connected: use connect_calendar first")
	}
	if !h.orchestrator.RefreshSilently(ctx) {
		return nil, fmt.Errorf("could not reach Google Calendar: reconnect with connect_calendar")
	}
	return h.orchestrator.Calendars(), nil
}

// toolError prefers the user-facing message and keeps the cause for errors.Is.
func toolError(err error) error {
	if msg := sync.UserMessage(err); msg != "" {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return err
}
