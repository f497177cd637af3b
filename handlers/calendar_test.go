// ABOUTME: Tests for calendar MCP tool handlers
// ABOUTME: Drives a real orchestrator over in-memory auth, API, and store fakes
package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/daybook/models"
	"github.com/harperreed/daybook/sync"
	"github.com/harperreed/daybook/sync/synctest"
)

var testNow = time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

type handlerFixture struct {
	handler *CalendarHandlers
	orch    *sync.Orchestrator
	auth    *synctest.FakeAuth
	api     *synctest.FakeAPI
}

func setupHandlers(t *testing.T) *handlerFixture {
	t.Helper()

	auth := synctest.NewFakeAuth()
	auth.Grant.Expiry = testNow.Add(time.Hour)
	api := &synctest.FakeAPI{
		CalendarList: []models.CalendarDescriptor{
			{ID: "work", Name: "Work", AccessRole: models.RoleReader},
			{ID: "me@example.com", Name: "Me", Primary: true, AccessRole: models.RoleOwner},
		},
		EventList: []models.ProviderEvent{
			{ID: "a", Title: "Offsite", Start: models.EventTime{Date: "2024-06-10"}, End: models.EventTime{Date: "2024-06-13"}, Status: models.StatusConfirmed},
			{ID: "b", Title: "Standup", Start: models.EventTime{DateTime: "2024-06-11T09:00:00Z"}, End: models.EventTime{DateTime: "2024-06-11T09:15:00Z"}, Status: models.StatusConfirmed},
		},
	}

	orch := sync.NewOrchestrator(sync.Dependencies{
		Auth:     auth,
		API:      api,
		Store:    &synctest.MemoryStore{},
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})

	return &handlerFixture{
		handler: NewCalendarHandlers(orch, time.UTC, 7),
		orch:    orch,
		auth:    auth,
		api:     api,
	}
}

func (f *handlerFixture) connect(t *testing.T) {
	t.Helper()
	_, out, err := f.handler.ConnectCalendar(context.Background(), nil, EmptyInput{})
	require.NoError(t, err)
	require.True(t, out.Connected)
}

func TestConnectionStatusDisconnected(t *testing.T) {
	f := setupHandlers(t)

	_, out, err := f.handler.ConnectionStatus(context.Background(), nil, EmptyInput{})
	require.NoError(t, err)
	assert.Equal(t, string(models.PhaseDisconnected), out.Phase)
	assert.True(t, out.Configured)
	assert.False(t, out.Connected)
	assert.Empty(t, out.CalendarID)
}

func TestConnectCalendarSelectsPrimary(t *testing.T) {
	f := setupHandlers(t)
	f.connect(t)

	_, out, err := f.handler.ConnectionStatus(context.Background(), nil, EmptyInput{})
	require.NoError(t, err)
	assert.Equal(t, string(models.PhaseConnected), out.Phase)
	assert.Equal(t, "me@example.com", out.CalendarID)
	assert.Equal(t, "Me", out.CalendarName)
	require.NotEmpty(t, out.Notices)
	assert.Equal(t, string(models.NoticeInfo), out.Notices[len(out.Notices)-1].Level)
}

func TestConnectCalendarNotConfigured(t *testing.T) {
	f := setupHandlers(t)
	f.auth.Configured = false

	_, _, err := f.handler.ConnectCalendar(context.Background(), nil, EmptyInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sync.ErrConfigurationMissing))
	assert.Contains(t, err.Error(), "not configured")
}

func TestListAndSelectCalendar(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	_, _, err := f.handler.ListCalendars(ctx, nil, EmptyInput{})
	assert.Error(t, err, "listing before connecting should fail")

	f.connect(t)

	_, list, err := f.handler.ListCalendars(ctx, nil, EmptyInput{})
	require.NoError(t, err)
	require.Len(t, list.Calendars, 2)
	assert.False(t, list.Calendars[0].Writable)
	assert.True(t, list.Calendars[1].Selected)

	_, status, err := f.handler.SelectCalendar(ctx, nil, SelectCalendarInput{CalendarID: "work"})
	require.NoError(t, err)
	assert.Equal(t, "work", status.CalendarID)
	assert.Equal(t, "Work", status.CalendarName)

	_, _, err = f.handler.SelectCalendar(ctx, nil, SelectCalendarInput{CalendarID: "missing"})
	assert.Error(t, err)

	_, _, err = f.handler.SelectCalendar(ctx, nil, SelectCalendarInput{})
	assert.Error(t, err)
}

func TestRefreshConnection(t *testing.T) {
	f := setupHandlers(t)
	ctx := context.Background()

	_, out, err := f.handler.RefreshConnection(ctx, nil, EmptyInput{})
	require.NoError(t, err)
	assert.False(t, out.Refreshed, "nothing to refresh while disconnected")

	f.connect(t)
	_, out, err = f.handler.RefreshConnection(ctx, nil, EmptyInput{})
	require.NoError(t, err)
	assert.True(t, out.Refreshed)
	assert.Equal(t, string(models.PhaseConnected), out.Phase)
}

func TestFetchEventsExpandsMultiDay(t *testing.T) {
	f := setupHandlers(t)
	f.connect(t)

	_, out, err := f.handler.FetchEvents(context.Background(), nil, FetchEventsInput{
		StartDate: "2024-06-10",
		EndDate:   "2024-06-16",
	})
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", out.CalendarID)
	assert.Equal(t, "2024-06-10", out.StartDate)
	assert.Equal(t, "2024-06-16", out.EndDate)
	require.Len(t, out.Events, 4)

	var labels []string
	for _, e := range out.Events {
		if e.SourceEventID == "a" {
			labels = append(labels, e.DayLabel)
			assert.True(t, e.AllDay)
		}
	}
	assert.Equal(t, []string{"Day 1 of 3", "Day 2 of 3", "Day 3 of 3"}, labels)
}

func TestFetchEventsValidation(t *testing.T) {
	f := setupHandlers(t)
	f.connect(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input FetchEventsInput
	}{
		{"bad start", FetchEventsInput{StartDate: "06/10/2024"}},
		{"bad end", FetchEventsInput{StartDate: "2024-06-10", EndDate: "soon"}},
		{"end before start", FetchEventsInput{StartDate: "2024-06-10", EndDate: "2024-06-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.handler.FetchEvents(ctx, nil, tt.input)
			assert.Error(t, err)
		})
	}
	assert.Zero(t, f.api.ListEventsCalls)
}

func TestFetchEventsRemoteFailure(t *testing.T) {
	f := setupHandlers(t)
	f.connect(t)
	f.api.ListEventsErr = &sync.RemoteError{Operation: "listEvents", Status: 500, Details: "backend error"}

	_, out, err := f.handler.FetchEvents(context.Background(), nil, FetchEventsInput{StartDate: "2024-06-10", Days: 7})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sync.ErrRemoteRequestFailed))
	assert.Empty(t, out.Events)
}

func TestWindowDefaults(t *testing.T) {
	h := NewCalendarHandlers(nil, time.UTC, 0)

	start, end, err := h.window(FetchEventsInput{StartDate: "2024-06-10"})
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, end.Sub(start))

	start, end, err = h.window(FetchEventsInput{StartDate: "2024-06-10", Days: 2})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), start)
}
