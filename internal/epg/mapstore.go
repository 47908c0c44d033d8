package epg

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// MapStore persists channel-to-guide ID pins in sqlite so a mapping found by
// fuzzy matching survives restarts and is reused as a pinned mapping on the
// next cycle.
type MapStore struct {
	db *sql.DB
}

// OpenMapStore opens (or creates) the mapping database at path.
func OpenMapStore(path string) (*MapStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open map store: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS epg_mappings (
		channel_id  TEXT PRIMARY KEY,
		external_id TEXT NOT NULL,
		method      TEXT NOT NULL,
		updated_at  INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init map store: %w", err)
	}
	return &MapStore{db: db}, nil
}

// Get returns the pinned guide ID for a channel, if one was stored.
func (m *MapStore) Get(channelID string) (externalID string, ok bool) {
	err := m.db.QueryRow(`SELECT external_id FROM epg_mappings WHERE channel_id = ?`, channelID).Scan(&externalID)
	if err != nil {
		return "", false
	}
	return externalID, externalID != ""
}

// Put stores or replaces the pin for a channel.
func (m *MapStore) Put(channelID, externalID, method string) error {
	_, err := m.db.Exec(
		`INSERT INTO epg_mappings (channel_id, external_id, method, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET external_id = excluded.external_id, method = excluded.method, updated_at = excluded.updated_at`,
		channelID, externalID, method, time.Now().Unix())
	return err
}

// Delete removes a pin. Used when an operator clears a bad mapping.
func (m *MapStore) Delete(channelID string) error {
	_, err := m.db.Exec(`DELETE FROM epg_mappings WHERE channel_id = ?`, channelID)
	return err
}

// Count returns the number of stored pins.
func (m *MapStore) Count() (int, error) {
	var n int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM epg_mappings`).Scan(&n)
	return n, err
}

func (m *MapStore) Close() error { return m.db.Close() }
