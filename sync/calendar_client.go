// ABOUTME: Calendar API client wrappers for Google Calendar
// ABOUTME: Stateless list/create/update/delete calls returning tagged results, bearer token per call
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/mo"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/harperreed/daybook/models"
)

// eventsPageSize caps a single events listing.
const eventsPageSize = 100

// CalendarAPI is the remote calendar surface the orchestrator depends on.
type CalendarAPI interface {
	ListCalendars(ctx context.Context, token string) mo.Result[[]models.CalendarDescriptor]
	ListEvents(ctx context.Context, token, calendarID string, timeMin, timeMax time.Time) mo.Result[[]models.ProviderEvent]
	CreateEvent(ctx context.Context, token, calendarID string, input models.EventInput) mo.Result[models.ProviderEvent]
	UpdateEvent(ctx context.Context, token, calendarID, eventID string, input models.EventInput) mo.Result[models.ProviderEvent]
	DeleteEvent(ctx context.Context, token, calendarID, eventID string) mo.Result[bool]
}

// CalendarClient talks to the Google Calendar v3 REST API.
type CalendarClient struct {
	httpClient *http.Client
	endpoint   string
}

// ClientOption configures a CalendarClient.
type ClientOption func(*CalendarClient)

// WithEndpoint points the client at a different API base URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *CalendarClient) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets the base HTTP client; the bearer transport wraps its Transport.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *CalendarClient) {
		c.httpClient = client
	}
}

// NewCalendarClient creates a Calendar API client.
func NewCalendarClient(opts ...ClientOption) *CalendarClient {
	c := &CalendarClient{httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// service builds a Calendar service authenticated with the given bearer token.
func (c *CalendarClient) service(ctx context.Context, token string) (*calendar.Service, error) {
	if token == "" {
		return nil, ErrSessionExpired
	}

	httpClient := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.httpClient.Transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

// ListCalendars returns every calendar the account can access.
func (c *CalendarClient) ListCalendars(ctx context.Context, token string) mo.Result[[]models.CalendarDescriptor] {
	const op = "listCalendars"

	service, err := c.service(ctx, token)
	if err != nil {
		return mo.Err[[]models.CalendarDescriptor](classifyError(op, err))
	}

	list, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return mo.Err[[]models.CalendarDescriptor](classifyError(op, err))
	}

	calendars := make([]models.CalendarDescriptor, 0, len(list.Items))
	for _, item := range list.Items {
		name := item.SummaryOverride
		if name == "" {
			name = item.Summary
		}
		calendars = append(calendars, models.CalendarDescriptor{
			ID:         item.Id,
			Name:       name,
			Primary:    item.Primary,
			AccessRole: models.AccessRole(item.AccessRole),
		})
	}

	return mo.Ok(calendars)
}

// ListEvents returns up to one page of events in [timeMin, timeMax], recurring
// events expanded server-side, ordered by start time. Cancelled events are dropped.
func (c *CalendarClient) ListEvents(ctx context.Context, token, calendarID string, timeMin, timeMax time.Time) mo.Result[[]models.ProviderEvent] {
	const op = "listEvents"

	service, err := c.service(ctx, token)
	if err != nil {
		return mo.Err[[]models.ProviderEvent](classifyError(op, err))
	}

	events, err := service.Events.List(calendarID).
		Context(ctx).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(eventsPageSize).
		Do()
	if err != nil {
		return mo.Err[[]models.ProviderEvent](classifyError(op, err))
	}

	out := make([]models.ProviderEvent, 0, len(events.Items))
	for _, item := range events.Items {
		if item == nil || item.Status == string(models.StatusCancelled) {
			continue
		}
		out = append(out, fromGoogleEvent(item))
	}

	return mo.Ok(out)
}

// CreateEvent inserts a new event.
func (c *CalendarClient) CreateEvent(ctx context.Context, token, calendarID string, input models.EventInput) mo.Result[models.ProviderEvent] {
	const op = "createEvent"

	service, err := c.service(ctx, token)
	if err != nil {
		return mo.Err[models.ProviderEvent](classifyError(op, err))
	}

	created, err := service.Events.Insert(calendarID, toGoogleEvent(input)).Context(ctx).Do()
	if err != nil {
		return mo.Err[models.ProviderEvent](classifyError(op, err))
	}

	return mo.Ok(fromGoogleEvent(created))
}

// UpdateEvent patches an existing event; zero fields in input are not sent.
func (c *CalendarClient) UpdateEvent(ctx context.Context, token, calendarID, eventID string, input models.EventInput) mo.Result[models.ProviderEvent] {
	const op = "updateEvent"

	service, err := c.service(ctx, token)
	if err != nil {
		return mo.Err[models.ProviderEvent](classifyError(op, err))
	}

	updated, err := service.Events.Patch(calendarID, eventID, toGoogleEvent(input)).Context(ctx).Do()
	if err != nil {
		return mo.Err[models.ProviderEvent](classifyError(op, err))
	}

	return mo.Ok(fromGoogleEvent(updated))
}

// DeleteEvent removes an event. Deleting an already-deleted event succeeds.
func (c *CalendarClient) DeleteEvent(ctx context.Context, token, calendarID, eventID string) mo.Result[bool] {
	const op = "deleteEvent"

	service, err := c.service(ctx, token)
	if err != nil {
		return mo.Err[bool](classifyError(op, err))
	}

	err = service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			return mo.Ok(true)
		}
		return mo.Err[bool](classifyError(op, err))
	}

	return mo.Ok(true)
}

// classifyError turns any failure into a RemoteError tagged with the operation.
func classifyError(op string, err error) error {
	if errors.Is(err, ErrSessionExpired) {
		return &RemoteError{Operation: op, Status: http.StatusUnauthorized, Details: "no access token", Err: err}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		details := apiErr.Message
		if details == "" {
			details = http.StatusText(apiErr.Code)
		}
		return &RemoteError{Operation: op, Status: apiErr.Code, Details: details, Err: err}
	}

	return &RemoteError{Operation: op, Details: "network error: " + err.Error(), Err: err}
}

func fromGoogleEvent(item *calendar.Event) models.ProviderEvent {
	event := models.ProviderEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Status:      models.EventStatus(item.Status),
		HTMLLink:    item.HtmlLink,
	}
	if item.Start != nil {
		event.Start = models.EventTime{DateTime: item.Start.DateTime, Date: item.Start.Date, TimeZone: item.Start.TimeZone}
	}
	if item.End != nil {
		event.End = models.EventTime{DateTime: item.End.DateTime, Date: item.End.Date, TimeZone: item.End.TimeZone}
	}
	if event.Status == "" {
		event.Status = models.StatusConfirmed
	}
	return event
}

func toGoogleEvent(input models.EventInput) *calendar.Event {
	event := &calendar.Event{
		Summary:     input.Title,
		Description: input.Description,
	}
	if !input.Start.IsZero() {
		event.Start = toGoogleTime(input.Start, input.AllDay, input.TimeZone)
	}
	if !input.End.IsZero() {
		event.End = toGoogleTime(input.End, input.AllDay, input.TimeZone)
	}
	return event
}

func toGoogleTime(t time.Time, allDay bool, tz string) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format(dateLayout)}
	}
	if tz == "" {
		tz = t.Location().String()
	}
	if tz == "Local" {
		tz = ""
	}
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: tz}
}
