// ABOUTME: Error taxonomy for calendar connection and sync
// ABOUTME: Sentinel errors, remote request failures, and user-facing message mapping
package sync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfigurationMissing means the provider integration is not set up.
	ErrConfigurationMissing = errors.New("calendar integration not configured")

	// ErrSessionExpired means the token is absent, invalid, or lacks a scope.
	ErrSessionExpired = errors.New("calendar session expired")

	// ErrRemoteRequestFailed means a provider call returned non-2xx or never completed.
	ErrRemoteRequestFailed = errors.New("remote request failed")

	// ErrUserCancelled means the user dismissed the sign-in prompt.
	ErrUserCancelled = errors.New("sign-in cancelled by user")

	// ErrConnectionFailed is the generic failure for unexpected auth errors.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNoCalendars means the account has no calendars to select.
	ErrNoCalendars = errors.New("no calendars found")

	// ErrNoCalendarSelected means an event operation ran before a calendar was selected.
	ErrNoCalendarSelected = errors.New("no calendar selected")

	// ErrInvalidPhase means the operation is not allowed in the current connection phase.
	ErrInvalidPhase = errors.New("operation not valid in current connection phase")
)

// errConnectionChanged reports a fetch abandoned because the session was
// disconnected or switched to another calendar while it ran.
var errConnectionChanged = fmt.Errorf("%w: connection changed during fetch", ErrInvalidPhase)

// RemoteError is a classified failure from the calendar REST surface.
// Status is 0 when no response was received.
type RemoteError struct {
	Operation string
	Status    int
	Details   string
	Err       error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Operation, e.Status, e.Details)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the taxonomy sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteRequestFailed:
		return true
	case ErrSessionExpired:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// IsUserCancelled reports whether err stems from the user dismissing sign-in.
func IsUserCancelled(err error) bool {
	return errors.Is(err, ErrUserCancelled)
}

// UserMessage maps an error to the text shown to the user.
// Cancellation maps to the empty string: nothing is shown.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserCancelled):
		return ""
	case errors.Is(err, ErrConfigurationMissing):
		return "Google Calendar is not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET, then reconnect."
	case errors.Is(err, ErrSessionExpired):
		return "Your calendar session expired. Please reconnect."
	case errors.Is(err, ErrNoCalendars):
		return "No calendars found for this account."
	case errors.Is(err, ErrNoCalendarSelected):
		return "Select a calendar first."
	case errors.Is(err, ErrInvalidPhase):
		return "Please wait for the current connection attempt to finish."
	default:
		return "Could not reach Google Calendar. Please try again later."
	}
}
