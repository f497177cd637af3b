// ABOUTME: Data models for calendar connection and event display
// ABOUTME: Defines ConnectionState, ProviderEvent, DisplayEvent, CalendarDescriptor, and friends
package models

import (
	"slices"
	"time"
)

// Phase is the lifecycle phase of a calendar connection.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseSyncing      Phase = "syncing"
	PhaseError        Phase = "error"
)

// ConnectionState is the single per-session connection record.
// Phase and LastError are transient and never persisted.
type ConnectionState struct {
	AccessToken          string     `json:"access_token,omitempty"`
	TokenExpiry          *time.Time `json:"token_expiry,omitempty"`
	GrantedScopes        []string   `json:"granted_scopes,omitempty"`
	ConnectedAt          *time.Time `json:"connected_at,omitempty"`
	LastValidated        *time.Time `json:"last_validated,omitempty"`
	SelectedCalendarID   string     `json:"selected_calendar_id,omitempty"`
	SelectedCalendarName string     `json:"selected_calendar_name,omitempty"`
	LastSyncAt           *time.Time `json:"last_sync_at,omitempty"`
	LastError            string     `json:"-"`
	Phase                Phase      `json:"-"`
}

// HasToken reports whether an access token is held.
func (s ConnectionState) HasToken() bool {
	return s.AccessToken != ""
}

// Clone returns a deep copy so callers can't alias the orchestrator's slices.
func (s ConnectionState) Clone() ConnectionState {
	c := s
	c.GrantedScopes = slices.Clone(s.GrantedScopes)
	return c
}

// AuthState is what an auth provider reports about its current token.
type AuthState struct {
	AccessToken   string
	Expiry        time.Time
	GrantedScopes []string
	ConnectedAt   time.Time
	LastValidated time.Time
}

// EventStatus is the provider-side status of an event.
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

// EventTime is either a precise RFC3339 instant (DateTime) or a whole-day date (Date).
type EventTime struct {
	DateTime string `json:"date_time,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"time_zone,omitempty"`
}

// IsAllDay reports whether the time is a whole-day date.
func (t EventTime) IsAllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// ProviderEvent is an event as returned by the calendar provider.
type ProviderEvent struct {
	ID          string      `json:"id"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Start       EventTime   `json:"start"`
	End         EventTime   `json:"end"`
	Status      EventStatus `json:"status"`
	HTMLLink    string      `json:"html_link,omitempty"`
}

// DisplayEvent is a single-day record ready for display.
type DisplayEvent struct {
	ID            string `json:"id"`
	SourceEventID string `json:"source_event_id"`
	Title         string `json:"title"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	IsAllDay      bool   `json:"is_all_day"`
	IsMultiDay    bool   `json:"is_multi_day"`
	DayLabel      string `json:"day_label,omitempty"`
	Description   string `json:"description,omitempty"`
	HTMLLink      string `json:"html_link,omitempty"`
}

// AccessRole is the caller's access level on a calendar.
type AccessRole string

const (
	RoleOwner          AccessRole = "owner"
	RoleWriter         AccessRole = "writer"
	RoleReader         AccessRole = "reader"
	RoleFreeBusyReader AccessRole = "freeBusyReader"
)

// CalendarDescriptor describes one calendar the account can access.
type CalendarDescriptor struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Primary    bool       `json:"primary"`
	AccessRole AccessRole `json:"access_role"`
}

// CanWrite reports whether events on the calendar can be modified.
func (c CalendarDescriptor) CanWrite() bool {
	return c.AccessRole == RoleOwner || c.AccessRole == RoleWriter
}

// EventInput is the payload for creating or patching an event.
// Zero fields are left untouched on update.
type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	TimeZone    string
}

// NoticeLevel is the severity of a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a transient user-facing notification.
type Notice struct {
	ID        string      `json:"id"`
	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}

// SyncRun records one event fetch attempt.
type SyncRun struct {
	ID           string    `json:"id"`
	CalendarID   string    `json:"calendar_id"`
	RangeStart   time.Time `json:"range_start"`
	RangeEnd     time.Time `json:"range_end"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	EventCount   int       `json:"event_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Succeeded reports whether the run finished without error.
func (r SyncRun) Succeeded() bool {
	return r.ErrorMessage == ""
}
