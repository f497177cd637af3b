// ABOUTME: Database operations for the sync_log table
// ABOUTME: Records each event fetch and lists recent runs per provider
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harperreed/daybook/models"
)

// RecordSyncRun creates a sync log entry for a fetch attempt.
func RecordSyncRun(ctx context.Context, db *sql.DB, provider string, run models.SyncRun) error {
	var errorMsg sql.NullString
	if run.ErrorMessage != "" {
		errorMsg = sql.NullString{String: run.ErrorMessage, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_log (id, provider, calendar_id, range_start, range_end, started_at, finished_at, event_count, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		provider,
		run.CalendarID,
		run.RangeStart.UTC(),
		run.RangeEnd.UTC(),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.EventCount,
		errorMsg,
	)

	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	return nil
}

// RecentSyncRuns returns up to limit runs for a provider, newest first.
func RecentSyncRuns(ctx context.Context, db *sql.DB, provider string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, calendar_id, range_start, range_end, started_at, finished_at, event_count, error_message
		FROM sync_log
		WHERE provider = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var errorMsg sql.NullString

		err := rows.Scan(
			&run.ID,
			&run.CalendarID,
			&run.RangeStart,
			&run.RangeEnd,
			&run.StartedAt,
			&run.FinishedAt,
			&run.EventCount,
			&errorMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		if errorMsg.Valid {
			run.ErrorMessage = errorMsg.String
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}

	return runs, nil
}
