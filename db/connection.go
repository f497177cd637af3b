// ABOUTME: Database operations for the connection_state table
// ABOUTME: Persists the durable subset of a calendar connection per provider
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/daybook/models"
)

// ProviderGoogle is the provider key for Google Calendar connections.
const ProviderGoogle = "google"

// GetConnection retrieves the stored connection for a provider. It returns nil
// when nothing is stored.
func GetConnection(ctx context.Context, db *sql.DB, provider string) (*models.ConnectionState, error) {
	var state models.ConnectionState
	var scopes string
	var tokenExpiry, connectedAt, lastValidated, lastSyncAt sql.NullTime

	err := db.QueryRowContext(ctx, `
		SELECT access_token, token_expiry, granted_scopes, connected_at, last_validated,
			selected_calendar_id, selected_calendar_name, last_sync_at
		FROM connection_state
		WHERE provider = ?
	`, provider).Scan(
		&state.AccessToken,
		&tokenExpiry,
		&scopes,
		&connectedAt,
		&lastValidated,
		&state.SelectedCalendarID,
		&state.SelectedCalendarName,
		&lastSyncAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection state: %w", err)
	}

	state.GrantedScopes = strings.Fields(scopes)
	state.TokenExpiry = timePtr(tokenExpiry)
	state.ConnectedAt = timePtr(connectedAt)
	state.LastValidated = timePtr(lastValidated)
	state.LastSyncAt = timePtr(lastSyncAt)

	return &state, nil
}

// SaveConnection upserts the durable fields of state. Phase and LastError are not stored.
func SaveConnection(ctx context.Context, db *sql.DB, provider string, state models.ConnectionState) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO connection_state (provider, access_token, token_expiry, granted_scopes, connected_at,
			last_validated, selected_calendar_id, selected_calendar_name, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			token_expiry = excluded.token_expiry,
			granted_scopes = excluded.granted_scopes,
			connected_at = excluded.connected_at,
			last_validated = excluded.last_validated,
			selected_calendar_id = excluded.selected_calendar_id,
			selected_calendar_name = excluded.selected_calendar_name,
			last_sync_at = excluded.last_sync_at,
			updated_at = CURRENT_TIMESTAMP
	`,
		provider,
		state.AccessToken,
		nullTime(state.TokenExpiry),
		strings.Join(state.GrantedScopes, " "),
		nullTime(state.ConnectedAt),
		nullTime(state.LastValidated),
		state.SelectedCalendarID,
		state.SelectedCalendarName,
		nullTime(state.LastSyncAt),
	)

	if err != nil {
		return fmt.Errorf("failed to save connection state: %w", err)
	}

	return nil
}

// DeleteConnection removes the stored connection for a provider.
func DeleteConnection(ctx context.Context, db *sql.DB, provider string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM connection_state WHERE provider = ?`, provider); err != nil {
		return fmt.Errorf("failed to delete connection state: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
