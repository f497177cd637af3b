// ABOUTME: In-memory fakes for the calendar sync collaborators
// ABOUTME: FakeAuth, FakeAPI, and MemoryStore with call counters for tests

// Package synctest provides fakes for testing code built on the sync package.
package synctest

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/samber/mo"

	"github.com/harperreed/daybook/models"
)

// FakeAuth is a scriptable auth provider. Set the Err fields to make calls
// fail and Grant to control what sign-in returns.
type FakeAuth struct {
	mu sync.Mutex

	Configured bool
	// Grant is returned by SignIn. Its scopes are extended with the requested capability.
	Grant      models.AuthState
	// RefreshFn runs without the fake's lock held, so it may call back into the caller.
	RefreshFn  func() (models.AuthState, error)
	Held       models.AuthState
	SignInErr  error
	ScopesErr  error
	InitErr    error
	SignOutErr error

	InitCalls    int
	SignInCalls  int
	ScopesCalls  int
	RefreshCalls int
	SignOutCalls int
}

// NewFakeAuth returns a configured fake that signs in with token "token-1".
func NewFakeAuth() *FakeAuth {
	return &FakeAuth{
		Configured: true,
		Grant: models.AuthState{
			AccessToken: "token-1",
			Expiry:      time.Now().Add(time.Hour),
		},
	}
}

func (f *FakeAuth) IsConfigured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Configured
}

func (f *FakeAuth) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitCalls++
	return f.InitErr
}

func (f *FakeAuth) SignIn(_ context.Context, capability string) (models.AuthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SignInCalls++
	if f.SignInErr != nil {
		return models.AuthState{}, f.SignInErr
	}
	grant := f.Grant
	grant.GrantedScopes = withScope(f.Grant.GrantedScopes, capability)
	f.Held = grant
	return grant, nil
}

func (f *FakeAuth) RequestAdditionalScopes(_ context.Context, capability string) (models.AuthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ScopesCalls++
	if f.ScopesErr != nil {
		return models.AuthState{}, f.ScopesErr
	}
	grant := f.Held
	if grant.AccessToken == "" {
		grant = f.Grant
	}
	grant.GrantedScopes = withScope(grant.GrantedScopes, capability)
	f.Held = grant
	return grant, nil
}

func (f *FakeAuth) Refresh(context.Context) (models.AuthState, error) {
	f.mu.Lock()
	f.RefreshCalls++
	refresh := f.RefreshFn
	f.mu.Unlock()

	if refresh == nil {
		return models.AuthState{}, errNoRefresh
	}
	grant, err := refresh()
	if err == nil {
		f.mu.Lock()
		f.Held = grant
		f.mu.Unlock()
	}
	return grant, err
}

func (f *FakeAuth) State() models.AuthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	held := f.Held
	held.GrantedScopes = slices.Clone(held.GrantedScopes)
	return held
}

func (f *FakeAuth) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SignOutCalls++
	f.Held = models.AuthState{}
	return f.SignOutErr
}

func withScope(scopes []string, capability string) []string {
	out := slices.Clone(scopes)
	if !slices.Contains(out, capability) {
		out = append(out, capability)
	}
	return out
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errNoRefresh = fakeError("no refresh token")

// FakeAPI is an in-memory calendar API. Err fields force failures.
type FakeAPI struct {
	mu sync.Mutex

	CalendarList    []models.CalendarDescriptor
	EventList       []models.ProviderEvent
	ListCalendarErr error
	ListEventsErr   error
	WriteErr        error
	// OnListEvents runs before ListEvents answers, without the fake's lock held.
	OnListEvents    func()

	ListCalendarCalls int
	ListEventsCalls   int
	Created           []models.EventInput
	Updated           map[string]models.EventInput
	Deleted           []string
	Tokens            []string
}

func (f *FakeAPI) ListCalendars(_ context.Context, token string) mo.Result[[]models.CalendarDescriptor] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalendarCalls++
	f.Tokens = append(f.Tokens, token)
	if f.ListCalendarErr != nil {
		return mo.Err[[]models.CalendarDescriptor](f.ListCalendarErr)
	}
	return mo.Ok(slices.Clone(f.CalendarList))
}

func (f *FakeAPI) ListEvents(_ context.Context, token, _ string, _, _ time.Time) mo.Result[[]models.ProviderEvent] {
	f.mu.Lock()
	hook := f.OnListEvents
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListEventsCalls++
	f.Tokens = append(f.Tokens, token)
	if f.ListEventsErr != nil {
		return mo.Err[[]models.ProviderEvent](f.ListEventsErr)
	}
	events := make([]models.ProviderEvent, 0, len(f.EventList))
	for _, e := range f.EventList {
		if e.Status != models.StatusCancelled {
			events = append(events, e)
		}
	}
	return mo.Ok(events)
}

func (f *FakeAPI) CreateEvent(_ context.Context, token, _ string, input models.EventInput) mo.Result[models.ProviderEvent] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tokens = append(f.Tokens, token)
	if f.WriteErr != nil {
		return mo.Err[models.ProviderEvent](f.WriteErr)
	}
	f.Created = append(f.Created, input)
	return mo.Ok(models.ProviderEvent{
		ID:     "created-" + strconv.Itoa(len(f.Created)),
		Title:  input.Title,
		Status: models.StatusConfirmed,
	})
}

func (f *FakeAPI) UpdateEvent(_ context.Context, token, _, eventID string, input models.EventInput) mo.Result[models.ProviderEvent] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tokens = append(f.Tokens, token)
	if f.WriteErr != nil {
		return mo.Err[models.ProviderEvent](f.WriteErr)
	}
	if f.Updated == nil {
		f.Updated = make(map[string]models.EventInput)
	}
	f.Updated[eventID] = input
	return mo.Ok(models.ProviderEvent{ID: eventID, Title: input.Title, Status: models.StatusConfirmed})
}

func (f *FakeAPI) DeleteEvent(_ context.Context, token, _, eventID string) mo.Result[bool] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tokens = append(f.Tokens, token)
	if f.WriteErr != nil {
		return mo.Err[bool](f.WriteErr)
	}
	f.Deleted = append(f.Deleted, eventID)
	return mo.Ok(true)
}

// MemoryStore is an in-memory connection store and sync log.
type MemoryStore struct {
	mu sync.Mutex

	state   models.ConnectionState
	saved   bool
	runs    []models.SyncRun
	SaveErr error

	SaveCalls  int
	ClearCalls int
}

func (m *MemoryStore) Load(context.Context) (models.ConnectionState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), m.saved, nil
}

func (m *MemoryStore) Save(_ context.Context, state models.ConnectionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	state.Phase = ""
	state.LastError = ""
	m.state = state.Clone()
	m.saved = true
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
	m.state = models.ConnectionState{}
	m.saved = false
	return nil
}

// Saved returns the last persisted state and whether one exists.
func (m *MemoryStore) Saved() (models.ConnectionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), m.saved
}

func (m *MemoryStore) RecordSync(_ context.Context, run models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// RecentSyncs returns runs newest first.
func (m *MemoryStore) RecentSyncs(_ context.Context, limit int) ([]models.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SyncRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
