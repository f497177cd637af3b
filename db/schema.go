// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for connection state and the sync log
package db

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS connection_state (
	provider TEXT PRIMARY KEY,
	access_token TEXT NOT NULL DEFAULT '',
	token_expiry DATETIME,
	granted_scopes TEXT NOT NULL DEFAULT '',
	connected_at DATETIME,
	last_validated DATETIME,
	selected_calendar_id TEXT NOT NULL DEFAULT '',
	selected_calendar_name TEXT NOT NULL DEFAULT '',
	last_sync_at DATETIME,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_log (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	calendar_id TEXT NOT NULL,
	range_start DATETIME NOT NULL,
	range_end DATETIME NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	event_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_log_provider ON sync_log(provider, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sync_log_calendar ON sync_log(calendar_id);
`

func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
