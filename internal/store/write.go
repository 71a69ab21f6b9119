package store

import (
	"bytes"
	"compress/zlib"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// BeginTx opens a write transaction. The indexing orchestrator wraps one
// whole revision in a single transaction so a failure rolls the revision
// back instead of leaving it half-indexed.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// BeginRevision records (or refreshes) the revision row.
func (s *Store) BeginRevision(tx *sql.Tx, rev, baseRev string) error {
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO revisions(rev, base_rev, created_at) VALUES(?, ?, ?)`,
		rev, nullIfEmpty(baseRev), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("begin revision %s: %w", rev, err)
	}
	return nil
}

// UpsertFile inserts the path row, updating lang on conflict, and returns the
// file id.
func (s *Store) UpsertFile(tx *sql.Tx, path, lang string) (int64, error) {
	_, err := tx.Exec(
		`INSERT INTO files(path, lang) VALUES(?, ?)
		 ON CONFLICT(path) DO UPDATE SET lang = excluded.lang`, path, lang)
	if err != nil {
		return 0, fmt.Errorf("upsert file %s: %w", path, err)
	}
	var id int64
	if err := tx.QueryRow(`SELECT file_id FROM files WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert file %s: read id: %w", path, err)
	}
	return id, nil
}

// UpsertFileVersion writes the (rev, file) -> blob mapping with replace
// semantics.
func (s *Store) UpsertFileVersion(tx *sql.Tx, rev string, fileID int64, blobHash string, size, mtime int64) error {
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO file_versions(rev, file_id, blob_hash, size, mtime) VALUES(?, ?, ?, ?, ?)`,
		rev, fileID, blobHash, size, mtime)
	if err != nil {
		return fmt.Errorf("upsert file version %s file=%d: %w", rev, fileID, err)
	}
	return nil
}

// UpsertBlob stores content under its hash, zlib-compressed. Blobs are
// immutable; an existing hash is left untouched.
func (s *Store) UpsertBlob(tx *sql.Tx, blobHash string, content []byte) error {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, 6)
	if err != nil {
		return fmt.Errorf("upsert blob: %w", err)
	}
	if _, err := zw.Write(content); err != nil {
		zw.Close()
		return fmt.Errorf("upsert blob: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("upsert blob: compress: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO blobs(blob_hash, compressed, content) VALUES(?, 1, ?)`,
		blobHash, buf.Bytes()); err != nil {
		return fmt.Errorf("upsert blob %s: %w", blobHash, err)
	}
	return nil
}

// HasBlobArtifacts reports whether any node exists for the blob; the gate
// that makes re-indexing unchanged content a no-op.
func (s *Store) HasBlobArtifacts(tx *sql.Tx, blobHash string) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM nodes WHERE blob_hash = ? LIMIT 1`, blobHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has blob artifacts %s: %w", blobHash, err)
	}
	return true, nil
}

// Artifacts bundles one file's derived rows plus the metadata the full-text
// index wants.
type Artifacts struct {
	Path    string
	Lang    string
	Content []byte

	Nodes   []Node
	Edges   []Edge
	Symbols []Symbol
	Calls   []Call
}

// PutFileArtifacts bulk-writes one blob's derived rows. Nodes are
// insert-or-ignore (deterministic ids repeat across revisions sharing a
// blob), symbols insert-or-replace, edges and calls plain inserts cleaned up
// by the resolution rebuild. The full-text row is best effort.
func (s *Store) PutFileArtifacts(tx *sql.Tx, blobHash string, fileID int64, a Artifacts) error {
	nodeStmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO nodes(node_id, blob_hash, file_id, lang, kind,
		  start_byte, end_byte, start_line, start_col, end_line, end_col, attrs)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("put artifacts: prepare nodes: %w", err)
	}
	defer nodeStmt.Close()
	for _, n := range a.Nodes {
		if _, err := nodeStmt.Exec(n.NodeID, blobHash, fileID, n.Lang, n.Kind,
			n.StartByte, n.EndByte, n.StartLine, n.StartCol, n.EndLine, n.EndCol, n.Attrs); err != nil {
			return fmt.Errorf("put artifacts: node %s: %w", n.NodeID, err)
		}
	}

	edgeStmt, err := tx.Prepare(
		`INSERT INTO edges(blob_hash, file_id, src, dst, kind, attrs) VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("put artifacts: prepare edges: %w", err)
	}
	defer edgeStmt.Close()
	for _, e := range a.Edges {
		if _, err := edgeStmt.Exec(blobHash, fileID, e.Src, e.Dst, e.Kind, e.Attrs); err != nil {
			return fmt.Errorf("put artifacts: edge %s->%s: %w", e.Src, e.Dst, err)
		}
	}

	symStmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO symbols(symbol_id, blob_hash, file_id, lang, name, kind,
		  start_line, start_col, end_line, end_col, attrs)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("put artifacts: prepare symbols: %w", err)
	}
	defer symStmt.Close()
	for _, sym := range a.Symbols {
		if _, err := symStmt.Exec(sym.SymbolID, blobHash, fileID, sym.Lang, sym.Name, sym.Kind,
			sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol, sym.Attrs); err != nil {
			return fmt.Errorf("put artifacts: symbol %s: %w", sym.SymbolID, err)
		}
	}

	callStmt, err := tx.Prepare(
		`INSERT INTO calls(blob_hash, file_id, src_node, dst_name, dst_symbol, resolved, attrs)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("put artifacts: prepare calls: %w", err)
	}
	defer callStmt.Close()
	for _, c := range a.Calls {
		resolved := 0
		if c.Resolved {
			resolved = 1
		}
		if _, err := callStmt.Exec(blobHash, fileID, c.SrcNode, c.DstName, c.DstSymbol, resolved, c.Attrs); err != nil {
			return fmt.Errorf("put artifacts: call %s: %w", c.SrcNode, err)
		}
	}

	if s.fts && len(a.Content) > 0 {
		if _, err := tx.Exec(
			`INSERT INTO fts_code(path, lang, content, blob_hash) VALUES(?, ?, ?, ?)`,
			a.Path, a.Lang, string(a.Content), blobHash); err != nil {
			slog.Warn("full-text insert failed", "path", a.Path, "error", err)
		}
	}
	return nil
}

// SetMeta writes a meta key.
func (s *Store) SetMeta(tx *sql.Tx, key, value string) error {
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES(?, ?)`, key, value); err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// GetMeta reads a meta key; ok is false when absent.
func (s *Store) GetMeta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return v, true, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
