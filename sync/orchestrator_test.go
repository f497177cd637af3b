// ABOUTME: Tests for the connection orchestrator state machine
// ABOUTME: Uses synctest fakes for auth, calendar API, and storage
package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/daybook/models"
	"github.com/harperreed/daybook/sync/synctest"
)

var testNow = time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

type orchestratorFixture struct {
	orch    *Orchestrator
	auth    *synctest.FakeAuth
	api     *synctest.FakeAPI
	store   *synctest.MemoryStore
	notices *NoticeLog
}

func setupOrchestrator(t *testing.T) *orchestratorFixture {
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
	store := &synctest.MemoryStore{}
	notices := NewNoticeLog(10)

	orch := NewOrchestrator(Dependencies{
		Auth:     auth,
		API:      api,
		Store:    store,
		Notifier: notices,
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})

	return &orchestratorFixture{orch: orch, auth: auth, api: api, store: store, notices: notices}
}

func weekRange() (time.Time, time.Time) {
	return testNow, testNow.AddDate(0, 0, 7)
}

func TestConnectSelectsPrimaryCalendar(t *testing.T) {
	f := setupOrchestrator(t)

	require.NoError(t, f.orch.Connect(context.Background()))

	state := f.orch.State()
	assert.Equal(t, models.PhaseConnected, state.Phase)
	assert.Equal(t, "token-1", state.AccessToken)
	assert.Equal(t, "me@example.com", state.SelectedCalendarID)
	assert.Equal(t, "Me", state.SelectedCalendarName)
	assert.Contains(t, state.GrantedScopes, CapabilityCalendarRead)
	assert.Empty(t, state.LastError)
	assert.Len(t, f.orch.Calendars(), 2)
	assert.Equal(t, 1, f.auth.InitCalls)

	saved, ok := f.store.Saved()
	require.True(t, ok)
	assert.Equal(t, "token-1", saved.AccessToken)
	assert.Equal(t, "me@example.com", saved.SelectedCalendarID)
	assert.Empty(t, saved.Phase)

	latest, ok := f.notices.Latest()
	require.True(t, ok)
	assert.Equal(t, models.NoticeInfo, latest.Level)
}

func TestConnectFallsBackToFirstCalendar(t *testing.T) {
	f := setupOrchestrator(t)
	f.api.CalendarList = []models.CalendarDescriptor{{ID: "one", Name: "One"}, {ID: "two", Name: "Two"}}

	require.NoError(t, f.orch.Connect(context.Background()))
	assert.Equal(t, "one", f.orch.State().SelectedCalendarID)
}

func TestConnectTwiceIsNoOp(t *testing.T) {
	f := setupOrchestrator(t)

	require.NoError(t, f.orch.Connect(context.Background()))
	require.NoError(t, f.orch.Connect(context.Background()))

	assert.Equal(t, 1, f.auth.SignInCalls)
	assert.Equal(t, 1, f.api.ListCalendarCalls)
}

func TestConnectNoCalendars(t *testing.T) {
	f := setupOrchestrator(t)
	f.api.CalendarList = nil

	err := f.orch.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCalendars)
	assert.Contains(t, err.Error(), "no calendars found")

	assert.Equal(t, models.PhaseDisconnected, f.orch.Phase())
	assert.Equal(t, "No calendars found for this account.", f.orch.LastError())

	latest, ok := f.notices.Latest()
	require.True(t, ok)
	assert.Equal(t, models.NoticeError, latest.Level)
}

func TestConnectConfigurationMissing(t *testing.T) {
	f := setupOrchestrator(t)
	f.auth.Configured = false

	err := f.orch.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConfigurationMissing)
	assert.False(t, f.orch.IsConfigured())
	assert.Equal(t, 0, f.auth.InitCalls)
	assert.Equal(t, 0, f.auth.SignInCalls)
	assert.Equal(t, 0, f.api.ListCalendarCalls)
	assert.Equal(t, models.PhaseDisconnected, f.orch.Phase())
	assert.Contains(t, f.orch.LastError(), "not configured")
}

func TestConnectWhileConnectedIgnoresMissingConfiguration(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))
	f.auth.Configured = false

	require.NoError(t, f.orch.Connect(context.Background()))

	state := f.orch.State()
	assert.Equal(t, models.PhaseConnected, state.Phase)
	assert.Equal(t, "token-1", state.AccessToken)
	assert.Equal(t, "me@example.com", state.SelectedCalendarID)
	assert.Empty(t, state.LastError)
	assert.Equal(t, 1, f.auth.InitCalls)
}

func TestConnectCancelledIsSilent(t *testing.T) {
	f := setupOrchestrator(t)
	f.auth.SignInErr = ErrUserCancelled

	err := f.orch.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsUserCancelled(err))

	assert.Equal(t, models.PhaseDisconnected, f.orch.Phase())
	assert.Empty(t, f.orch.LastError())
	assert.Empty(t, f.orch.Notices())
	assert.Equal(t, 0, f.api.ListCalendarCalls)
}

func TestConnectSessionExpiredDropsToken(t *testing.T) {
	f := setupOrchestrator(t)
	f.api.ListCalendarErr = &RemoteError{Operation: "listCalendars", Status: 401, Details: "Invalid Credentials"}

	err := f.orch.Connect(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)

	state := f.orch.State()
	assert.Equal(t, models.PhaseDisconnected, state.Phase)
	assert.False(t, state.HasToken())
	assert.Empty(t, state.SelectedCalendarID)
	assert.Equal(t, "Your calendar session expired. Please reconnect.", state.LastError)
}

func TestDisconnectThenConnectMatchesFirstConnect(t *testing.T) {
	f := setupOrchestrator(t)

	require.NoError(t, f.orch.Connect(context.Background()))
	first := f.orch.State()

	require.NoError(t, f.orch.Disconnect(context.Background()))

	cleared := f.orch.State()
	assert.Equal(t, models.ConnectionState{Phase: models.PhaseDisconnected}, cleared)
	assert.Empty(t, f.orch.Calendars())
	assert.Empty(t, f.orch.Events())
	assert.Equal(t, 1, f.auth.SignOutCalls)
	_, saved := f.store.Saved()
	assert.False(t, saved)

	require.NoError(t, f.orch.Connect(context.Background()))
	assert.Equal(t, first, f.orch.State())
	assert.Equal(t, 2, f.auth.SignInCalls)
}

func TestFetchEventsNormalizes(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))

	start, end := weekRange()
	events, err := f.orch.FetchEvents(context.Background(), start, end)
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, "Day 1 of 3", events[0].DayLabel)
	assert.Equal(t, "gcal-b", events[3].ID)
	assert.Equal(t, events, f.orch.Events())

	state := f.orch.State()
	assert.Equal(t, models.PhaseConnected, state.Phase)
	require.NotNil(t, state.LastSyncAt)
	assert.Equal(t, testNow, *state.LastSyncAt)

	runs, err := f.orch.SyncHistory(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Succeeded())
	assert.Equal(t, 4, runs[0].EventCount)
	assert.Equal(t, "me@example.com", runs[0].CalendarID)
}

func TestFetchEventsUnauthorizedKeepsConnection(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))

	start, end := weekRange()
	_, err := f.orch.FetchEvents(context.Background(), start, end)
	require.NoError(t, err)
	cached := f.orch.Events()

	f.api.ListEventsErr = &RemoteError{Operation: "listEvents", Status: 401, Details: "Invalid Credentials"}
	events, err := f.orch.FetchEvents(context.Background(), start, end)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotNil(t, events)
	assert.Empty(t, events)
	assert.Equal(t, models.PhaseConnected, f.orch.Phase())
	assert.Equal(t, "Your calendar session expired. Please reconnect.", f.orch.LastError())
	assert.Equal(t, cached, f.orch.Events())

	runs, err := f.orch.SyncHistory(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Succeeded())
}

func TestFetchEventsFailureAfterDisconnectLeavesStateCleared(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))

	f.api.ListEventsErr = &RemoteError{Operation: "listEvents", Status: 500, Details: "Backend Error"}
	f.api.OnListEvents = func() {
		require.NoError(t, f.orch.Disconnect(context.Background()))
	}
	saves := f.store.SaveCalls

	start, end := weekRange()
	events, err := f.orch.FetchEvents(context.Background(), start, end)

	assert.ErrorIs(t, err, ErrRemoteRequestFailed)
	assert.Empty(t, events)

	state := f.orch.State()
	assert.Equal(t, models.PhaseDisconnected, state.Phase)
	assert.False(t, state.HasToken())
	assert.Empty(t, state.LastError)

	_, saved := f.store.Saved()
	assert.False(t, saved, "a cleared store must stay cleared")
	assert.Equal(t, saves, f.store.SaveCalls)
}

func TestFetchEventsSuccessAfterDisconnectIsDiscarded(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))

	f.api.OnListEvents = func() {
		require.NoError(t, f.orch.Disconnect(context.Background()))
	}

	start, end := weekRange()
	_, err := f.orch.FetchEvents(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, models.PhaseDisconnected, f.orch.Phase())
	assert.Empty(t, f.orch.Events())
	_, saved := f.store.Saved()
	assert.False(t, saved)
}

func TestFetchEventsRefreshRacingDisconnectKeepsTokenCleared(t *testing.T) {
	f := setupOrchestrator(t)
	// An already expired grant forces a silent refresh on fetch.
	f.auth.Grant.Expiry = testNow
	require.NoError(t, f.orch.Connect(context.Background()))

	f.auth.RefreshFn = func() (models.AuthState, error) {
		require.NoError(t, f.orch.Disconnect(context.Background()))
		return models.AuthState{
			AccessToken:   "token-2",
			GrantedScopes: []string{CapabilityCalendarRead},
			Expiry:        testNow.Add(time.Hour),
		}, nil
	}

	start, end := weekRange()
	events, err := f.orch.FetchEvents(context.Background(), start, end)

	assert.ErrorIs(t, err, ErrInvalidPhase)
	assert.Empty(t, events)
	assert.Equal(t, 1, f.auth.RefreshCalls)
	assert.Equal(t, 0, f.api.ListEventsCalls)

	state := f.orch.State()
	assert.Equal(t, models.PhaseDisconnected, state.Phase)
	assert.False(t, state.HasToken())
	_, saved := f.store.Saved()
	assert.False(t, saved)
}

func TestFetchEventsFailureAfterReselectReturnsToConnected(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))

	f.api.ListEventsErr = &RemoteError{Operation: "listEvents", Status: 500, Details: "Backend Error"}
	f.api.OnListEvents = func() {
		require.NoError(t, f.orch.SelectCalendar(context.Background(), models.CalendarDescriptor{ID: "work"}))
	}

	start, end := weekRange()
	_, err := f.orch.FetchEvents(context.Background(), start, end)
	require.Error(t, err)

	state := f.orch.State()
	assert.Equal(t, models.PhaseConnected, state.Phase)
	assert.Equal(t, "work", state.SelectedCalendarID)
	assert.Empty(t, state.LastError)
}

func TestFetchEventsWithoutUsableTokenSkipsNetwork(t *testing.T) {
	f := setupOrchestrator(t)
	expired := testNow.Add(-time.Hour)
	require.NoError(t, f.store.Save(context.Background(), models.ConnectionState{
		AccessToken:        "stale",
		TokenExpiry:        &expired,
		GrantedScopes:      []string{CapabilityCalendarRead},
		SelectedCalendarID: "me@example.com",
	}))
	require.NoError(t, f.orch.Restore(context.Background()))
	require.Equal(t, models.PhaseConnected, f.orch.Phase())

	start, end := weekRange()
	events, err := f.orch.FetchEvents(context.Background(), start, end)

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, events)
	assert.Equal(t, 0, f.api.ListEventsCalls)
	assert.Equal(t, 0, f.auth.SignInCalls)
	assert.Equal(t, "Your calendar session expired. Please reconnect.", f.orch.LastError())

	latest, ok := f.notices.Latest()
	require.True(t, ok)
	assert.Equal(t, models.NoticeWarn, latest.Level)
}

func TestFetchEventsRequiresSelection(t *testing.T) {
	f := setupOrchestrator(t)

	start, end := weekRange()
	_, err := f.orch.FetchEvents(context.Background(), start, end)
	assert.ErrorIs(t, err, ErrNoCalendarSelected)
}

func TestSelectCalendarClearsEvents(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))

	start, end := weekRange()
	_, err := f.orch.FetchEvents(context.Background(), start, end)
	require.NoError(t, err)
	require.NotEmpty(t, f.orch.Events())

	require.NoError(t, f.orch.SelectCalendar(context.Background(), models.CalendarDescriptor{ID: "work"}))

	state := f.orch.State()
	assert.Equal(t, "work", state.SelectedCalendarID)
	assert.Equal(t, "Work", state.SelectedCalendarName)
	assert.Empty(t, f.orch.Events())

	saved, _ := f.store.Saved()
	assert.Equal(t, "work", saved.SelectedCalendarID)
}

func TestSelectCalendarRequiresConnection(t *testing.T) {
	f := setupOrchestrator(t)

	err := f.orch.SelectCalendar(context.Background(), models.CalendarDescriptor{ID: "work"})
	assert.ErrorIs(t, err, ErrInvalidPhase)
	assert.Empty(t, f.orch.State().SelectedCalendarID)
}

func TestRefreshSilently(t *testing.T) {
	f := setupOrchestrator(t)
	assert.False(t, f.orch.RefreshSilently(context.Background()))

	require.NoError(t, f.orch.Connect(context.Background()))
	f.api.CalendarList = append(f.api.CalendarList, models.CalendarDescriptor{ID: "new", Name: "New"})

	assert.True(t, f.orch.RefreshSilently(context.Background()))
	assert.Len(t, f.orch.Calendars(), 3)
	assert.Equal(t, 1, f.auth.SignInCalls)
}

func TestRefreshSilentlyFailureLeavesStateUntouched(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))
	before := f.orch.State()
	noticesBefore := len(f.orch.Notices())

	f.api.ListCalendarErr = &RemoteError{Operation: "listCalendars", Details: "connection refused"}

	assert.False(t, f.orch.RefreshSilently(context.Background()))
	assert.Equal(t, before, f.orch.State())
	assert.Len(t, f.orch.Calendars(), 2)
	assert.Len(t, f.orch.Notices(), noticesBefore)
}

func TestValidateConnection(t *testing.T) {
	f := setupOrchestrator(t)
	assert.False(t, f.orch.ValidateConnection(context.Background()))

	require.NoError(t, f.orch.Connect(context.Background()))
	assert.True(t, f.orch.ValidateConnection(context.Background()))
}

func TestCreateEventRequestsWriteScope(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))

	event, err := f.orch.CreateEvent(context.Background(), models.EventInput{Title: "Lunch"})
	require.NoError(t, err)
	assert.Equal(t, "Lunch", event.Title)

	assert.Equal(t, 1, f.auth.SignInCalls)
	assert.Equal(t, 1, f.auth.ScopesCalls)
	assert.ElementsMatch(t, []string{CapabilityCalendarRead, CapabilityCalendarWrite}, f.orch.State().GrantedScopes)

	// The write scope is now held, so no further grant is needed.
	require.NoError(t, f.orch.DeleteEvent(context.Background(), event.ID))
	assert.Equal(t, 1, f.auth.ScopesCalls)
	assert.Equal(t, []string{event.ID}, f.api.Deleted)
}

func TestUpdateEventFailureSurfacesError(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.orch.Connect(context.Background()))
	f.api.WriteErr = &RemoteError{Operation: "updateEvent", Status: 500, Details: "Backend Error"}

	_, err := f.orch.UpdateEvent(context.Background(), "evt", models.EventInput{Title: "x"})
	assert.ErrorIs(t, err, ErrRemoteRequestFailed)
	assert.Equal(t, "Could not reach Google Calendar. Please try again later.", f.orch.LastError())
	assert.Equal(t, models.PhaseConnected, f.orch.Phase())
}

func TestRestoreWithoutTokenStaysDisconnected(t *testing.T) {
	f := setupOrchestrator(t)
	require.NoError(t, f.store.Save(context.Background(), models.ConnectionState{SelectedCalendarID: "orphan"}))

	require.NoError(t, f.orch.Restore(context.Background()))

	state := f.orch.State()
	assert.Equal(t, models.PhaseDisconnected, state.Phase)
	assert.Empty(t, state.SelectedCalendarID)
}
