// ABOUTME: Charm KV-backed connection store for the sync orchestrator
// ABOUTME: Stores connection state and sync runs as JSON under prefixed keys

package charm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"github.com/harperreed/daybook/models"
)

const (
	connectionPrefix = "connection/"
	syncPrefix       = "sync/"
)

// ConnectionStore persists one provider's connection in Charm KV.
type ConnectionStore struct {
	client   *Client
	provider string
}

// NewConnectionStore creates a store for provider. An empty provider means Google.
func NewConnectionStore(client *Client, provider string) *ConnectionStore {
	if provider == "" {
		provider = "google"
	}
	return &ConnectionStore{client: client, provider: provider}
}

func (s *ConnectionStore) key() []byte {
	return []byte(connectionPrefix + s.provider)
}

func (s *ConnectionStore) Load(_ context.Context) (models.ConnectionState, bool, error) {
	data, err := s.client.Get(s.key())
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.ConnectionState{}, false, nil
	}
	if err != nil {
		return models.ConnectionState{}, false, fmt.Errorf("failed to get connection state: %w", err)
	}

	var state models.ConnectionState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.ConnectionState{}, false, fmt.Errorf("failed to decode connection state: %w", err)
	}
	return state, true, nil
}

// Save stores the durable fields; Phase and LastError are excluded by their JSON tags.
func (s *ConnectionStore) Save(_ context.Context, state models.ConnectionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode connection state: %w", err)
	}
	if err := s.client.Set(s.key(), data); err != nil {
		return fmt.Errorf("failed to save connection state: %w", err)
	}
	return nil
}

func (s *ConnectionStore) Clear(_ context.Context) error {
	err := s.client.Delete(s.key())
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete connection state: %w", err)
	}
	return nil
}

// syncRecord tags a run with its provider inside the shared sync/ namespace.
type syncRecord struct {
	Provider string         `json:"provider"`
	Run      models.SyncRun `json:"run"`
}

// RecordSync stores a run under sync/<id>. Run IDs are ULIDs, so key order is time order.
func (s *ConnectionStore) RecordSync(_ context.Context, run models.SyncRun) error {
	data, err := json.Marshal(syncRecord{Provider: s.provider, Run: run})
	if err != nil {
		return fmt.Errorf("failed to encode sync run: %w", err)
	}
	if err := s.client.Set([]byte(syncPrefix+run.ID), data); err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// RecentSyncs returns up to limit runs for this provider, newest first.
func (s *ConnectionStore) RecentSyncs(_ context.Context, limit int) ([]models.SyncRun, error) {
	keys, err := s.client.KeysWithPrefix([]byte(syncPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}

	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) > string(keys[j]) })

	var runs []models.SyncRun
	for _, key := range keys {
		if limit > 0 && len(runs) == limit {
			break
		}

		data, err := s.client.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to get sync run %s: %w", key, err)
		}

		var record syncRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to decode sync run %s: %w", key, err)
		}
		if record.Provider != s.provider {
			continue
		}
		runs = append(runs, record.Run)
	}

	return runs, nil
}

// Client returns the underlying KV client.
func (s *ConnectionStore) Client() *Client {
	return s.client
}
