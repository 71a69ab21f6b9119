// Package store is the SQLite persistence layer for the code property graph:
// content-addressed blobs, named revisions mapping paths to blobs, and the
// per-blob node/edge/symbol/call artifacts derived from them.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer. Artifact rows are keyed by
// (blob_hash, file_id), never by revision, so revisions sharing identical
// file content share artifacts for free.
type Store struct {
	db   *sql.DB
	path string

	// fts reports whether the fts_code virtual table is available. Checked
	// once during Migrate; when false SearchCode degrades to a LIKE filter
	// over file paths.
	fts bool

	lock *flock
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, path: dbPath, lock: newFlock(dbPath + ".lock")}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.lock.release()
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FTSEnabled reports whether full-text search is available.
func (s *Store) FTSEnabled() bool {
	return s.fts
}

// Migrate creates all tables and indexes. Idempotent. Full-text search is
// feature-detected: when the runtime SQLite lacks FTS5 the store still works,
// minus content search.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO meta(key, value) VALUES('schema_version', ?)`, schemaVersion); err != nil {
		return fmt.Errorf("migrate: schema version: %w", err)
	}
	if _, err := s.db.Exec(ftsDDL); err != nil {
		s.fts = false
		slog.Warn("full-text search unavailable, content search degrades to path match", "error", err)
	} else {
		s.fts = true
	}
	return nil
}

const schemaVersion = "1"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
  key    TEXT PRIMARY KEY,
  value  TEXT
);

CREATE TABLE IF NOT EXISTS revisions (
  rev         TEXT PRIMARY KEY,
  base_rev    TEXT,
  created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
  file_id  INTEGER PRIMARY KEY AUTOINCREMENT,
  path     TEXT NOT NULL UNIQUE,
  lang     TEXT
);

CREATE TABLE IF NOT EXISTS file_versions (
  rev        TEXT NOT NULL REFERENCES revisions(rev) ON DELETE CASCADE,
  file_id    INTEGER NOT NULL REFERENCES files(file_id) ON DELETE CASCADE,
  blob_hash  TEXT NOT NULL,
  size       INTEGER,
  mtime      INTEGER,
  PRIMARY KEY (rev, file_id)
);

CREATE TABLE IF NOT EXISTS blobs (
  blob_hash   TEXT PRIMARY KEY,
  compressed  INTEGER NOT NULL DEFAULT 0,
  content     BLOB
);

CREATE TABLE IF NOT EXISTS nodes (
  node_id     TEXT PRIMARY KEY,
  blob_hash   TEXT NOT NULL,
  file_id     INTEGER REFERENCES files(file_id) ON DELETE CASCADE,
  lang        TEXT,
  kind        TEXT,
  start_byte  INTEGER,
  end_byte    INTEGER,
  start_line  INTEGER,
  start_col   INTEGER,
  end_line    INTEGER,
  end_col     INTEGER,
  attrs       TEXT
);

CREATE TABLE IF NOT EXISTS edges (
  blob_hash  TEXT NOT NULL,
  file_id    INTEGER REFERENCES files(file_id) ON DELETE CASCADE,
  src        TEXT NOT NULL,
  dst        TEXT NOT NULL,
  kind       TEXT NOT NULL,
  attrs      TEXT
);

CREATE TABLE IF NOT EXISTS symbols (
  symbol_id   TEXT PRIMARY KEY,
  blob_hash   TEXT NOT NULL,
  file_id     INTEGER REFERENCES files(file_id) ON DELETE CASCADE,
  lang        TEXT,
  name        TEXT NOT NULL,
  kind        TEXT,
  start_line  INTEGER,
  start_col   INTEGER,
  end_line    INTEGER,
  end_col     INTEGER,
  attrs       TEXT
);

CREATE TABLE IF NOT EXISTS calls (
  blob_hash   TEXT NOT NULL,
  file_id     INTEGER REFERENCES files(file_id) ON DELETE CASCADE,
  src_node    TEXT NOT NULL,
  dst_name    TEXT NOT NULL,
  dst_symbol  TEXT,
  resolved    INTEGER NOT NULL DEFAULT 0,
  attrs       TEXT
);

CREATE INDEX IF NOT EXISTS idx_nodes_blob ON nodes(blob_hash);
CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_id);
CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src, kind);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst, kind);
CREATE INDEX IF NOT EXISTS idx_sym_name ON symbols(name, lang);
CREATE INDEX IF NOT EXISTS idx_sym_blob ON symbols(blob_hash);
CREATE INDEX IF NOT EXISTS idx_calls_unres ON calls(dst_name, resolved);
CREATE INDEX IF NOT EXISTS idx_calls_src ON calls(src_node);
`

const ftsDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS fts_code USING fts5(
  path, lang, content, blob_hash UNINDEXED
);
`
