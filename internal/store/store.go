package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// #region schema

// All record kinds share one physical store; every table carries its
// lineage_id and an entity_kind discriminator column.
const schema = `
CREATE TABLE IF NOT EXISTS genome_versions (
	lineage_id    TEXT NOT NULL,
	version_id    TEXT NOT NULL,
	entity_kind   TEXT NOT NULL DEFAULT 'version',
	content_hash  TEXT NOT NULL,
	parent_hash   TEXT NOT NULL,
	origin        TEXT NOT NULL,
	lifecycle     TEXT NOT NULL,
	rationale     TEXT,
	payload       BLOB NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (lineage_id, version_id),
	UNIQUE (lineage_id, content_hash)
);

CREATE TABLE IF NOT EXISTS active_pointers (
	lineage_id    TEXT PRIMARY KEY,
	entity_kind   TEXT NOT NULL DEFAULT 'pointer',
	version_id    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evolution_runs (
	run_id             TEXT PRIMARY KEY,
	lineage_id         TEXT NOT NULL,
	entity_kind        TEXT NOT NULL DEFAULT 'run',
	trigger_reason     TEXT NOT NULL,
	base_version_id    TEXT NOT NULL,
	stage              TEXT NOT NULL,
	status             TEXT NOT NULL,
	judge_retries      INTEGER NOT NULL DEFAULT 0,
	supervisor_retries INTEGER NOT NULL DEFAULT 0,
	transitions_json   TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_lineage ON evolution_runs(lineage_id);

CREATE TABLE IF NOT EXISTS challengers (
	run_id        TEXT NOT NULL,
	generation    INTEGER NOT NULL,
	attempt_index INTEGER NOT NULL,
	lineage_id    TEXT NOT NULL,
	entity_kind   TEXT NOT NULL DEFAULT 'challenger',
	content_hash  TEXT NOT NULL,
	rationale     TEXT,
	payload       BLOB NOT NULL,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (run_id, generation, attempt_index)
);

CREATE TABLE IF NOT EXISTS tickets (
	ticket_id     TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	lineage_id    TEXT NOT NULL,
	entity_kind   TEXT NOT NULL DEFAULT 'ticket',
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL,
	reason        TEXT NOT NULL,
	history_json  TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	resolved_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_tickets_lineage ON tickets(lineage_id);
`

// #endregion schema

// #region store-struct

// Store manages genome lineages in SQLite: write-once versions, the per
// lineage active pointer, evolution runs, challengers, and tickets.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an already-open database. Used by tests that need
// raw access to the schema.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor

// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor
