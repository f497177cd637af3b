// ABOUTME: Connection orchestrator owning the calendar connection state machine
// ABOUTME: Drives connect, disconnect, calendar selection, event fetch, and silent refresh
package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/harperreed/daybook/models"
)

// ConnectionStore persists the durable part of ConnectionState.
type ConnectionStore interface {
	Load(ctx context.Context) (models.ConnectionState, bool, error)
	Save(ctx context.Context, state models.ConnectionState) error
	Clear(ctx context.Context) error
}

// SyncLog is implemented by stores that keep a history of fetches.
type SyncLog interface {
	RecordSync(ctx context.Context, run models.SyncRun) error
	RecentSyncs(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// Dependencies are the collaborators injected into an Orchestrator.
type Dependencies struct {
	Auth     AuthProvider
	API      CalendarAPI
	Store    ConnectionStore
	Notifier Notifier
	Logger   *log.Logger
	// Location is used to lay events out on calendar days; nil means time.Local.
	Location *time.Location
	Now      func() time.Time
}

// Orchestrator is the only component that mutates ConnectionState.
// The mutex guards fields only and is never held across network calls.
type Orchestrator struct {
	auth       AuthProvider
	api        CalendarAPI
	store      ConnectionStore
	notifier   Notifier
	logger     *log.Logger
	validator  *TokenValidator
	normalizer Normalizer
	now        func() time.Time

	mu         gosync.Mutex
	state      models.ConnectionState
	calendars  []models.CalendarDescriptor
	events     []models.DisplayEvent
	generation uint64
}

// NewOrchestrator wires an orchestrator from its dependencies.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = NewNoticeLog(defaultNoticeCapacity)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	validator := NewTokenValidator(deps.Auth, deps.Logger)
	validator.now = deps.Now

	return &Orchestrator{
		auth:       deps.Auth,
		api:        deps.API,
		store:      deps.Store,
		notifier:   deps.Notifier,
		logger:     deps.Logger.With("component", "orchestrator"),
		validator:  validator,
		normalizer: Normalizer{Location: deps.Location},
		now:        deps.Now,
		state:      models.ConnectionState{Phase: models.PhaseDisconnected},
	}
}

// Restore loads persisted state. A restored token puts the orchestrator in
// connected without any network call; the token is validated on first use.
func (o *Orchestrator) Restore(ctx context.Context) error {
	saved, ok, err := o.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load connection state: %w", err)
	}
	if !ok {
		return nil
	}

	saved.LastError = ""
	saved.Phase = models.PhaseDisconnected
	if saved.HasToken() {
		saved.Phase = models.PhaseConnected
	}
	if !saved.HasToken() || !ScopeSatisfies(saved.GrantedScopes, CapabilityCalendarRead) {
		saved.SelectedCalendarID = ""
		saved.SelectedCalendarName = ""
	}

	o.mu.Lock()
	o.state = saved
	o.mu.Unlock()

	o.logger.Debug("restored connection state", "phase", saved.Phase, "calendar", saved.SelectedCalendarID)
	return nil
}

// IsConfigured reports whether the provider integration is set up.
func (o *Orchestrator) IsConfigured() bool {
	return o.auth.IsConfigured()
}

// Connect signs in, loads calendars, and selects one. Connecting while already
// connected is a no-op.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	switch o.state.Phase {
	case models.PhaseConnected, models.PhaseSyncing:
		o.mu.Unlock()
		return nil
	case models.PhaseConnecting:
		o.mu.Unlock()
		return ErrInvalidPhase
	}
	if !o.auth.IsConfigured() {
		o.mu.Unlock()
		return o.failConnect(ctx, ErrConfigurationMissing)
	}
	o.state.Phase = models.PhaseConnecting
	o.state.LastError = ""
	current := o.state.Clone()
	generation := o.generation
	o.mu.Unlock()

	if err := o.auth.Initialize(ctx); err != nil {
		return o.failConnect(ctx, fmt.Errorf("failed to initialize auth provider: %w", err))
	}

	grant, err := o.validator.EnsureToken(ctx, current, CapabilityCalendarRead)
	if err != nil {
		return o.failConnect(ctx, err)
	}

	calendars, err := o.api.ListCalendars(ctx, grant.AccessToken).Get()
	if err != nil {
		return o.failConnect(ctx, err)
	}
	if len(calendars) == 0 {
		return o.failConnect(ctx, ErrNoCalendars)
	}

	o.mu.Lock()
	if o.generation != generation {
		o.mu.Unlock()
		return fmt.Errorf("%w: disconnected while connecting", ErrUserCancelled)
	}
	o.applyGrantLocked(grant)
	o.calendars = calendars
	if !containsCalendar(calendars, o.state.SelectedCalendarID) {
		chosen := primaryCalendar(calendars)
		o.state.SelectedCalendarID = chosen.ID
		o.state.SelectedCalendarName = chosen.Name
		o.events = nil
	}
	o.state.Phase = models.PhaseConnected
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	o.logger.Info("connected", "calendar", snapshot.SelectedCalendarID, "calendars", len(calendars))
	o.notifier.Notify(models.NoticeInfo, fmt.Sprintf("Connected to %s", snapshot.SelectedCalendarName))
	return nil
}

// failConnect records a connect failure and leaves the orchestrator disconnected.
func (o *Orchestrator) failConnect(ctx context.Context, err error) error {
	cancelled := IsUserCancelled(err)
	dropToken := errors.Is(err, ErrSessionExpired) && !cancelled

	o.mu.Lock()
	o.state.Phase = models.PhaseError
	o.state.LastError = UserMessage(err)
	if dropToken {
		o.clearTokenLocked()
	}
	o.state.Phase = models.PhaseDisconnected
	snapshot := o.state.Clone()
	o.mu.Unlock()

	if dropToken {
		o.persist(ctx, snapshot)
	}

	if cancelled {
		o.logger.Debug("connect cancelled by user")
		return err
	}
	o.logger.Error("connect failed", "err", err)
	o.notifier.Notify(models.NoticeError, UserMessage(err))
	return err
}

// Disconnect clears the session, cached lists, and stored state. No network call is made.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	o.mu.Lock()
	o.state = models.ConnectionState{Phase: models.PhaseDisconnected}
	o.calendars = nil
	o.events = nil
	o.generation++
	o.mu.Unlock()

	var errs error
	if err := o.store.Clear(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to clear connection state: %w", err))
	}
	if signOuter, ok := o.auth.(SignOuter); ok {
		if err := signOuter.SignOut(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to sign out: %w", err))
		}
	}

	o.logger.Info("disconnected")
	return errs
}

// SelectCalendar switches the calendar events are fetched from. Cached events
// are dropped since they belong to the previous calendar.
func (o *Orchestrator) SelectCalendar(ctx context.Context, calendar models.CalendarDescriptor) error {
	if calendar.ID == "" {
		return fmt.Errorf("calendar id is required")
	}

	o.mu.Lock()
	if !o.activeLocked() || !ScopeSatisfies(o.state.GrantedScopes, CapabilityCalendarRead) {
		o.mu.Unlock()
		return ErrInvalidPhase
	}
	if calendar.Name == "" {
		if known, ok := findCalendar(o.calendars, calendar.ID); ok {
			calendar.Name = known.Name
		}
	}
	o.state.SelectedCalendarID = calendar.ID
	o.state.SelectedCalendarName = calendar.Name
	o.events = nil
	o.generation++
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	o.logger.Info("selected calendar", "calendar", calendar.ID)
	return nil
}

// FetchEvents loads and normalizes events for [start, end] on the selected
// calendar. Failures return an empty list and keep previously cached events.
func (o *Orchestrator) FetchEvents(ctx context.Context, start, end time.Time) ([]models.DisplayEvent, error) {
	o.mu.Lock()
	if o.state.SelectedCalendarID == "" {
		o.mu.Unlock()
		return []models.DisplayEvent{}, ErrNoCalendarSelected
	}
	if !o.activeLocked() {
		o.mu.Unlock()
		return []models.DisplayEvent{}, ErrInvalidPhase
	}
	current := o.state.Clone()
	calendarID := o.state.SelectedCalendarID
	generation := o.generation
	o.mu.Unlock()

	grant, ok := o.validator.Revalidate(ctx, current, CapabilityCalendarRead)
	if !ok {
		err := fmt.Errorf("%w: no usable token to fetch events", ErrSessionExpired)
		o.mu.Lock()
		if o.generation != generation {
			o.mu.Unlock()
			return []models.DisplayEvent{}, errConnectionChanged
		}
		o.state.LastError = UserMessage(err)
		o.mu.Unlock()
		o.logger.Warn("fetch skipped", "err", err)
		o.notifier.Notify(models.NoticeWarn, UserMessage(err))
		return []models.DisplayEvent{}, err
	}

	o.mu.Lock()
	if o.generation != generation {
		// Disconnected or switched calendars while revalidating.
		o.mu.Unlock()
		return []models.DisplayEvent{}, errConnectionChanged
	}
	o.applyGrantLocked(grant)
	o.state.Phase = models.PhaseSyncing
	o.mu.Unlock()

	run := models.SyncRun{
		ID:         ulid.Make().String(),
		CalendarID: calendarID,
		RangeStart: start,
		RangeEnd:   end,
		StartedAt:  o.now(),
	}

	raw, err := o.api.ListEvents(ctx, grant.AccessToken, calendarID, start, end).Get()
	run.FinishedAt = o.now()

	if err != nil {
		run.ErrorMessage = err.Error()

		o.mu.Lock()
		if o.generation != generation {
			if o.state.Phase == models.PhaseSyncing {
				o.state.Phase = models.PhaseConnected
			}
			o.mu.Unlock()
			o.recordSync(ctx, run)
			o.logger.Debug("discarding failed fetch for a stale connection", "calendar", calendarID, "err", err)
			return []models.DisplayEvent{}, err
		}
		o.state.Phase = models.PhaseConnected
		o.state.LastError = UserMessage(err)
		if errors.Is(err, ErrSessionExpired) {
			// Force a silent refresh on the next attempt.
			expired := run.FinishedAt
			o.state.TokenExpiry = &expired
		}
		snapshot := o.state.Clone()
		o.mu.Unlock()

		o.persist(ctx, snapshot)
		o.recordSync(ctx, run)
		o.logger.Warn("fetch events failed", "calendar", calendarID, "err", err)
		o.notifier.Notify(models.NoticeError, UserMessage(err))
		return []models.DisplayEvent{}, err
	}

	events := o.normalizer.Normalize(raw)
	run.EventCount = len(events)

	o.mu.Lock()
	if o.generation != generation {
		// Disconnected or switched calendars mid-fetch; the results are stale.
		if o.state.Phase == models.PhaseSyncing {
			o.state.Phase = models.PhaseConnected
		}
		o.mu.Unlock()
		o.recordSync(ctx, run)
		return slices.Clone(events), nil
	}
	o.events = events
	syncedAt := run.FinishedAt
	o.state.LastSyncAt = &syncedAt
	o.state.LastError = ""
	o.state.Phase = models.PhaseConnected
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	o.recordSync(ctx, run)
	o.logger.Debug("fetched events", "calendar", calendarID, "raw", len(raw), "display", len(events))
	return slices.Clone(events), nil
}

// RefreshSilently revalidates the token and refreshes the calendar list.
// It never prompts and never surfaces failures; it reports whether it refreshed.
func (o *Orchestrator) RefreshSilently(ctx context.Context) bool {
	o.mu.Lock()
	if o.state.Phase != models.PhaseConnected {
		o.mu.Unlock()
		return false
	}
	current := o.state.Clone()
	generation := o.generation
	o.mu.Unlock()

	grant, ok := o.validator.Revalidate(ctx, current, CapabilityCalendarRead)
	if !ok {
		o.logger.Debug("silent refresh found no usable token")
		return false
	}

	calendars, err := o.api.ListCalendars(ctx, grant.AccessToken).Get()
	if err != nil {
		o.logger.Debug("silent refresh could not list calendars", "err", err)
		return false
	}

	o.mu.Lock()
	if o.generation != generation || !o.state.HasToken() {
		o.mu.Unlock()
		return false
	}
	o.applyGrantLocked(grant)
	o.calendars = calendars
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	o.logger.Debug("silent refresh complete", "calendars", len(calendars))
	return true
}

// ValidateConnection reports whether a usable read token can be produced silently.
func (o *Orchestrator) ValidateConnection(ctx context.Context) bool {
	o.mu.Lock()
	current := o.state.Clone()
	o.mu.Unlock()

	if !current.HasToken() {
		return false
	}

	grant, ok := o.validator.Revalidate(ctx, current, CapabilityCalendarRead)
	if !ok {
		return false
	}

	o.mu.Lock()
	if !o.state.HasToken() {
		o.mu.Unlock()
		return false
	}
	o.applyGrantLocked(grant)
	snapshot := o.state.Clone()
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	return true
}

// CreateEvent adds an event to the selected calendar.
func (o *Orchestrator) CreateEvent(ctx context.Context, input models.EventInput) (models.ProviderEvent, error) {
	calendarID, token, err := o.writeAccess(ctx)
	if err != nil {
		return models.ProviderEvent{}, err
	}

	event, err := o.api.CreateEvent(ctx, token, calendarID, input).Get()
	if err != nil {
		return models.ProviderEvent{}, o.surface(err)
	}
	o.logger.Info("created event", "calendar", calendarID, "event", event.ID)
	return event, nil
}

// UpdateEvent patches an event on the selected calendar.
func (o *Orchestrator) UpdateEvent(ctx context.Context, eventID string, input models.EventInput) (models.ProviderEvent, error) {
	calendarID, token, err := o.writeAccess(ctx)
	if err != nil {
		return models.ProviderEvent{}, err
	}

	event, err := o.api.UpdateEvent(ctx, token, calendarID, eventID, input).Get()
	if err != nil {
		return models.ProviderEvent{}, o.surface(err)
	}
	o.logger.Info("updated event", "calendar", calendarID, "event", eventID)
	return event, nil
}

// DeleteEvent removes an event from the selected calendar.
func (o *Orchestrator) DeleteEvent(ctx context.Context, eventID string) error {
	calendarID, token, err := o.writeAccess(ctx)
	if err != nil {
		return err
	}

	if _, err := o.api.DeleteEvent(ctx, token, calendarID, eventID).Get(); err != nil {
		return o.surface(err)
	}
	o.logger.Info("deleted event", "calendar", calendarID, "event", eventID)
	return nil
}

// writeAccess acquires a write-capable token for the selected calendar,
// requesting an incremental grant when only read access is held.
func (o *Orchestrator) writeAccess(ctx context.Context) (string, string, error) {
	o.mu.Lock()
	if o.state.SelectedCalendarID == "" {
		o.mu.Unlock()
		return "", "", ErrNoCalendarSelected
	}
	if !o.activeLocked() {
		o.mu.Unlock()
		return "", "", ErrInvalidPhase
	}
	current := o.state.Clone()
	calendarID := o.state.SelectedCalendarID
	o.mu.Unlock()

	grant, err := o.validator.EnsureToken(ctx, current, CapabilityCalendarWrite)
	if err != nil {
		return "", "", o.surface(err)
	}

	o.mu.Lock()
	o.applyGrantLocked(grant)
	snapshot := o.state.Clone()
	o.mu.Unlock()
	o.persist(ctx, snapshot)

	return calendarID, grant.AccessToken, nil
}

// surface records err as the last error and notifies, unless the user cancelled.
func (o *Orchestrator) surface(err error) error {
	if IsUserCancelled(err) {
		return err
	}
	msg := UserMessage(err)
	o.mu.Lock()
	o.state.LastError = msg
	o.mu.Unlock()
	o.logger.Warn("calendar request failed", "err", err)
	o.notifier.Notify(models.NoticeError, msg)
	return err
}

// State returns a copy of the connection state.
func (o *Orchestrator) State() models.ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Phase returns the current connection phase.
func (o *Orchestrator) Phase() models.Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Phase
}

// LastError returns the last user-facing error message.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.LastError
}

// Calendars returns the cached calendar list.
func (o *Orchestrator) Calendars() []models.CalendarDescriptor {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.calendars)
}

// Events returns the most recently fetched display events.
func (o *Orchestrator) Events() []models.DisplayEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.events)
}

// Notices returns recent notices when the notifier keeps them.
func (o *Orchestrator) Notices() []models.Notice {
	if recent, ok := o.notifier.(interface{ Recent() []models.Notice }); ok {
		return recent.Recent()
	}
	return nil
}

// SyncHistory returns recent fetch runs when the store keeps a sync log.
func (o *Orchestrator) SyncHistory(ctx context.Context, limit int) ([]models.SyncRun, error) {
	syncLog, ok := o.store.(SyncLog)
	if !ok {
		return nil, nil
	}
	runs, err := syncLog.RecentSyncs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync history: %w", err)
	}
	return runs, nil
}

func (o *Orchestrator) activeLocked() bool {
	return o.state.HasToken() &&
		(o.state.Phase == models.PhaseConnected || o.state.Phase == models.PhaseSyncing)
}

func (o *Orchestrator) applyGrantLocked(grant models.AuthState) {
	now := o.now()

	o.state.AccessToken = grant.AccessToken
	o.state.GrantedScopes = slices.Clone(grant.GrantedScopes)
	o.state.TokenExpiry = nil
	if !grant.Expiry.IsZero() {
		expiry := grant.Expiry
		o.state.TokenExpiry = &expiry
	}
	if o.state.ConnectedAt == nil {
		connectedAt := grant.ConnectedAt
		if connectedAt.IsZero() {
			connectedAt = now
		}
		o.state.ConnectedAt = &connectedAt
	}
	validated := grant.LastValidated
	if validated.IsZero() {
		validated = now
	}
	o.state.LastValidated = &validated
}

func (o *Orchestrator) clearTokenLocked() {
	o.state.AccessToken = ""
	o.state.TokenExpiry = nil
	o.state.GrantedScopes = nil
	o.state.LastValidated = nil
	o.state.SelectedCalendarID = ""
	o.state.SelectedCalendarName = ""
}

func (o *Orchestrator) persist(ctx context.Context, state models.ConnectionState) {
	if err := o.store.Save(ctx, state); err != nil {
		o.logger.Warn("failed to persist connection state", "err", err)
	}
}

func (o *Orchestrator) recordSync(ctx context.Context, run models.SyncRun) {
	syncLog, ok := o.store.(SyncLog)
	if !ok {
		return
	}
	if err := syncLog.RecordSync(ctx, run); err != nil {
		o.logger.Warn("failed to record sync run", "err", err)
	}
}

func containsCalendar(calendars []models.CalendarDescriptor, id string) bool {
	_, ok := findCalendar(calendars, id)
	return ok
}

func findCalendar(calendars []models.CalendarDescriptor, id string) (models.CalendarDescriptor, bool) {
	if id == "" {
		return models.CalendarDescriptor{}, false
	}
	for _, c := range calendars {
		if c.ID == id {
			return c, true
		}
	}
	return models.CalendarDescriptor{}, false
}

// primaryCalendar returns the first primary calendar, else the first one.
func primaryCalendar(calendars []models.CalendarDescriptor) models.CalendarDescriptor {
	for _, c := range calendars {
		if c.Primary {
			return c
		}
	}
	return calendars[0]
}
