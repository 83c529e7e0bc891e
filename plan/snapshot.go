package plan

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS plans (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	document   TEXT NOT NULL,
	saved_at   DATETIME NOT NULL
);
`

// SnapshotStore persists point-in-time copies of the plan set to SQLite.
// The in-memory Store stays authoritative; this is the durability escape
// hatch behind the export/import endpoints.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore opens (or creates) a SQLite database at dbPath and ensures
// the plans table exists. The caller is responsible for calling Close.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SnapshotStore) Close() error { return s.db.Close() }

// Save writes every plan in the store, replacing any previous snapshot of
// the same plan.
func (s *SnapshotStore) Save(store *Store) error {
	plans := store.List()
	now := time.Now().UTC()
	for _, p := range plans {
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal plan %s: %w", p.ID, err)
		}
		_, err = s.db.Exec(`
			INSERT OR REPLACE INTO plans (id, title, status, document, saved_at)
			VALUES (?,?,?,?,?)`,
			p.ID, p.Title, string(p.Status), string(doc), now,
		)
		if err != nil {
			return fmt.Errorf("save plan %s: %w", p.ID, err)
		}
	}
	return nil
}

// Load reads every snapshotted plan back into a fresh Store.
func (s *SnapshotStore) Load() (*Store, error) {
	rows, err := s.db.Query(`SELECT document FROM plans ORDER BY saved_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load plans: %w", err)
	}
	defer rows.Close()

	store := NewStore()
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p Plan
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		store.plans[p.ID] = &p
	}
	return store, rows.Err()
}
