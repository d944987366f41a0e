// Package store persists targets and tracker snapshots in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

// ErrNotFound is returned when a target or snapshot id is unknown.
var ErrNotFound = errors.New("not found")

// #region schema
// stage, composite, status and archetype are denormalized from record_json
// so queries can filter and sort without decoding every row.
const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id           TEXT PRIMARY KEY,
	stage        TEXT NOT NULL,
	composite    REAL NOT NULL,
	status       TEXT NOT NULL,
	archetype    TEXT,
	record_json  TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_targets_stage ON targets(stage);
CREATE INDEX IF NOT EXISTS idx_targets_composite ON targets(composite);

CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id   TEXT PRIMARY KEY,
	parent_id     TEXT,
	target_count  INTEGER NOT NULL,
	snapshot_json TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES snapshots(snapshot_id)
);

CREATE TABLE IF NOT EXISTS active_snapshot (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	snapshot_id  TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(snapshot_id)
);
`

// #endregion schema

// #region store-struct
// Store is safe for concurrent use; database/sql pools the connection.
type Store struct {
	db    *sql.DB
	model *belief.Model
}

// #endregion store-struct

// #region constructor
// Open opens a SQLite database at path and runs migrations. A nil model
// uses the default tables for the denormalized stage and composite columns.
func Open(path string, model *belief.Model) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if model == nil {
		model = belief.NewModel(nil)
	}
	return &Store{db: db, model: model}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB so the event log can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}
