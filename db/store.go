// ABOUTME: SQLite-backed connection store for the sync orchestrator
// ABOUTME: Adapts the connection_state and sync_log tables to the store interfaces
package db

import (
	"context"
	"database/sql"

	"github.com/harperreed/daybook/models"
)

// ConnectionStore persists one provider's connection in SQLite.
type ConnectionStore struct {
	db       *sql.DB
	provider string
}

// NewConnectionStore creates a store for provider. An empty provider means Google.
func NewConnectionStore(db *sql.DB, provider string) *ConnectionStore {
	if provider == "" {
		provider = ProviderGoogle
	}
	return &ConnectionStore{db: db, provider: provider}
}

func (s *ConnectionStore) Load(ctx context.Context) (models.ConnectionState, bool, error) {
	state, err := GetConnection(ctx, s.db, s.provider)
	if err != nil {
		return models.ConnectionState{}, false, err
	}
	if state == nil {
		return models.ConnectionState{}, false, nil
	}
	return *state, true, nil
}

func (s *ConnectionStore) Save(ctx context.Context, state models.ConnectionState) error {
	return SaveConnection(ctx, s.db, s.provider, state)
}

func (s *ConnectionStore) Clear(ctx context.Context) error {
	return DeleteConnection(ctx, s.db, s.provider)
}

func (s *ConnectionStore) RecordSync(ctx context.Context, run models.SyncRun) error {
	return RecordSyncRun(ctx, s.db, s.provider, run)
}

func (s *ConnectionStore) RecentSyncs(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return RecentSyncRuns(ctx, s.db, s.provider, limit)
}
