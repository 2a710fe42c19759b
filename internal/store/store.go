// Package store persists browsing state as JSON snapshots in SQLite.
// Each collection lives in one keyed slot of the state table; the in-memory
// state owned by the session layer stays authoritative, the store only ever
// holds serialized snapshots fetched on demand.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"browsernerd/internal/logging"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed snapshot store.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS state (
		slot TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create state table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Save encodes v and upserts it into the slot. Persistence is best-effort:
// encode or exec failures are logged at debug and never propagated, the
// caller's in-memory state remains authoritative.
func (s *Store) Save(slot string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.StoreDebug("skip save %s: encode: %v", slot, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO state (slot, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(slot) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		slot, string(data),
	)
	if err != nil {
		logging.StoreDebug("skip save %s: exec: %v", slot, err)
		return
	}
	logging.StoreDebug("saved slot %s (%d bytes)", slot, len(data))
}

// Load decodes the slot into v. A missing row or corrupt JSON leaves v at
// its zero value; decode failure must not fail the caller.
func (s *Store) Load(slot string, v interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM state WHERE slot = ?`, slot).Scan(&raw)
	if err != nil {
		if err != sql.ErrNoRows {
			logging.StoreDebug("load %s: query: %v", slot, err)
		}
		return
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		// Deliberate per the recovery policy: corrupt data degrades to the
		// empty collection and is not reported as an error.
		logging.StoreDebug("load %s: decode: %v", slot, err)
	}
}

// Corrupt overwrites a slot with non-JSON text. Test hook for the decode
// degradation path.
func (s *Store) Corrupt(slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO state (slot, value) VALUES (?, 'not json{')
		 ON CONFLICT(slot) DO UPDATE SET value = 'not json{'`,
		slot,
	)
	return err
}
