package store

import (
	"bytes"
	"compress/zlib"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

// LatestRevision returns the most recently created revision.
func (s *Store) LatestRevision() (string, error) {
	var rev string
	err := s.db.QueryRow(`SELECT rev FROM revisions ORDER BY created_at DESC, rev DESC LIMIT 1`).Scan(&rev)
	if err == sql.ErrNoRows {
		return "", ErrNoRevisions
	}
	if err != nil {
		return "", fmt.Errorf("latest revision: %w", err)
	}
	return rev, nil
}

// RequireRevision resolves the revision selector: empty means latest, a named
// revision must exist.
func (s *Store) RequireRevision(rev string) (string, error) {
	if rev == "" {
		return s.LatestRevision()
	}
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM revisions WHERE rev = ?`, rev).Scan(&one)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %q", ErrUnknownRevision, rev)
	}
	if err != nil {
		return "", fmt.Errorf("require revision %s: %w", rev, err)
	}
	return rev, nil
}

// Revisions lists all revisions, newest first.
func (s *Store) Revisions() ([]Revision, error) {
	rows, err := s.db.Query(`SELECT rev, COALESCE(base_rev, ''), created_at FROM revisions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("revisions: %w", err)
	}
	defer rows.Close()
	var out []Revision
	for rows.Next() {
		var r Revision
		if err := rows.Scan(&r.Rev, &r.BaseRev, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("revisions: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FileVersionBlob returns the blob hash and file id for path at rev.
func (s *Store) FileVersionBlob(rev, path string) (blobHash string, fileID int64, err error) {
	err = s.db.QueryRow(`
		SELECT fv.blob_hash, fv.file_id
		FROM file_versions fv JOIN files f ON f.file_id = fv.file_id
		WHERE fv.rev = ? AND f.path = ?`, rev, path).Scan(&blobHash, &fileID)
	if err == sql.ErrNoRows {
		return "", 0, fmt.Errorf("%w: file %q at rev %q", ErrNotFound, path, rev)
	}
	if err != nil {
		return "", 0, fmt.Errorf("file version %s@%s: %w", path, rev, err)
	}
	return blobHash, fileID, nil
}

// FileExistsAtRev reports whether path has a version at rev.
func (s *Store) FileExistsAtRev(rev, path string) (bool, error) {
	_, _, err := s.FileVersionBlob(rev, path)
	if err == nil {
		return true, nil
	}
	if strings.Contains(err.Error(), ErrNotFound.Error()) {
		return false, nil
	}
	return false, err
}

// FileBlob pairs a path with its blob at one revision.
type FileBlob struct {
	Path     string
	Lang     string
	BlobHash string
}

// FilesMatching returns the files at rev whose path matches the SQL LIKE
// pattern, sorted by path.
func (s *Store) FilesMatching(rev, likePattern string) ([]FileBlob, error) {
	rows, err := s.db.Query(`
		SELECT f.path, COALESCE(f.lang, ''), fv.blob_hash
		FROM file_versions fv JOIN files f ON f.file_id = fv.file_id
		WHERE fv.rev = ? AND f.path LIKE ?
		ORDER BY f.path`, rev, likePattern)
	if err != nil {
		return nil, fmt.Errorf("files matching %s: %w", likePattern, err)
	}
	defer rows.Close()
	var out []FileBlob
	for rows.Next() {
		var fb FileBlob
		if err := rows.Scan(&fb.Path, &fb.Lang, &fb.BlobHash); err != nil {
			return nil, fmt.Errorf("files matching: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// BlobContent returns the decompressed content of a stored blob.
func (s *Store) BlobContent(blobHash string) ([]byte, error) {
	var compressed int
	var content []byte
	err := s.db.QueryRow(`SELECT compressed, content FROM blobs WHERE blob_hash = ?`, blobHash).
		Scan(&compressed, &content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: blob %s not stored", ErrNotFound, blobHash)
	}
	if err != nil {
		return nil, fmt.Errorf("blob content %s: %w", blobHash, err)
	}
	if compressed == 0 {
		return content, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("blob content %s: decompress: %w", blobHash, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("blob content %s: decompress: %w", blobHash, err)
	}
	return data, nil
}

// NodeByID returns one node row.
func (s *Store) NodeByID(nodeID string) (Node, error) {
	var n Node
	err := s.db.QueryRow(`
		SELECT node_id, blob_hash, COALESCE(file_id, 0), COALESCE(lang, ''), COALESCE(kind, ''),
		       COALESCE(start_byte, 0), COALESCE(end_byte, 0),
		       COALESCE(start_line, 0), COALESCE(start_col, 0),
		       COALESCE(end_line, 0), COALESCE(end_col, 0), COALESCE(attrs, '{}')
		FROM nodes WHERE node_id = ?`, nodeID).
		Scan(&n.NodeID, &n.BlobHash, &n.FileID, &n.Lang, &n.Kind,
			&n.StartByte, &n.EndByte, &n.StartLine, &n.StartCol, &n.EndLine, &n.EndCol, &n.Attrs)
	if err == sql.ErrNoRows {
		return n, fmt.Errorf("%w: node %s", ErrNotFound, nodeID)
	}
	if err != nil {
		return n, fmt.Errorf("node %s: %w", nodeID, err)
	}
	return n, nil
}

// NodeLocations resolves node ids to file locations in one query.
func (s *Store) NodeLocations(ids []string) (map[string]Location, error) {
	if len(ids) == 0 {
		return map[string]Location{}, nil
	}
	query := fmt.Sprintf(`
		SELECT n.node_id, COALESCE(f.path, ''), COALESCE(n.start_line, 0), COALESCE(n.start_col, 0),
		       COALESCE(n.end_line, 0), COALESCE(n.end_col, 0)
		FROM nodes n LEFT JOIN files f ON f.file_id = n.file_id
		WHERE n.node_id IN (%s)`, placeholderList(len(ids)))
	rows, err := s.db.Query(query, stringsToArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("node locations: %w", err)
	}
	defer rows.Close()
	out := make(map[string]Location, len(ids))
	for rows.Next() {
		var id string
		var loc Location
		if err := rows.Scan(&id, &loc.FilePath, &loc.StartLine, &loc.StartCol, &loc.EndLine, &loc.EndCol); err != nil {
			return nil, fmt.Errorf("node locations: %w", err)
		}
		out[id] = loc
	}
	return out, rows.Err()
}

// SymbolHit pairs a symbol row with its file path.
type SymbolHit struct {
	Symbol
	Path string
}

const symbolHitCols = `
	s.symbol_id, s.blob_hash, s.file_id, COALESCE(s.lang, ''), s.name, COALESCE(s.kind, ''),
	COALESCE(s.start_line, 0), COALESCE(s.start_col, 0), COALESCE(s.end_line, 0), COALESCE(s.end_col, 0),
	COALESCE(s.attrs, '{}'), f.path`

func scanSymbolHits(rows *sql.Rows) ([]SymbolHit, error) {
	defer rows.Close()
	var out []SymbolHit
	for rows.Next() {
		var h SymbolHit
		if err := rows.Scan(&h.SymbolID, &h.BlobHash, &h.FileID, &h.Lang, &h.Name, &h.Kind,
			&h.StartLine, &h.StartCol, &h.EndLine, &h.EndCol, &h.Attrs, &h.Path); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SymbolsByName finds symbols visible at rev by exact name, optionally
// scoped by language. Exact lookups that find nothing may be retried by the
// caller with SymbolsLike.
func (s *Store) SymbolsByName(rev, name, langFilter string, limit int) ([]SymbolHit, error) {
	return s.symbolQuery(rev, `s.name = ?`, name, langFilter, limit)
}

// SymbolsLike is SymbolsByName with a LIKE pattern.
func (s *Store) SymbolsLike(rev, pattern, langFilter string, limit int) ([]SymbolHit, error) {
	return s.symbolQuery(rev, `s.name LIKE ?`, pattern, langFilter, limit)
}

func (s *Store) symbolQuery(rev, nameCond string, nameArg, langFilter string, limit int) ([]SymbolHit, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + symbolHitCols + `
		FROM symbols s
		JOIN files f ON f.file_id = s.file_id
		JOIN file_versions fv ON fv.file_id = s.file_id AND fv.blob_hash = s.blob_hash
		WHERE fv.rev = ? AND ` + nameCond
	args := []any{rev, nameArg}
	if langFilter != "" {
		query += ` AND s.lang = ?`
		args = append(args, langFilter)
	}
	query += ` ORDER BY s.symbol_id LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	hits, err := scanSymbolHits(rows)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	return hits, nil
}

// SymbolAt returns the symbol row for id, requiring its blob to be part of
// rev.
func (s *Store) SymbolAt(rev, symbolID string) (SymbolHit, error) {
	query := `SELECT ` + symbolHitCols + `
		FROM symbols s
		JOIN files f ON f.file_id = s.file_id
		JOIN file_versions fv ON fv.file_id = s.file_id AND fv.blob_hash = s.blob_hash
		WHERE fv.rev = ? AND s.symbol_id = ?`
	rows, err := s.db.Query(query, rev, symbolID)
	if err != nil {
		return SymbolHit{}, fmt.Errorf("symbol at: %w", err)
	}
	hits, err := scanSymbolHits(rows)
	if err != nil {
		return SymbolHit{}, fmt.Errorf("symbol at: %w", err)
	}
	if len(hits) == 0 {
		return SymbolHit{}, fmt.Errorf("%w: symbol %s at rev %s", ErrNotFound, symbolID, rev)
	}
	return hits[0], nil
}

// SymbolsByBlob lists the symbols derived from one blob, in id order.
func (s *Store) SymbolsByBlob(blobHash string) ([]Symbol, error) {
	rows, err := s.db.Query(`
		SELECT symbol_id, blob_hash, file_id, COALESCE(lang, ''), name, COALESCE(kind, ''),
		       COALESCE(start_line, 0), COALESCE(start_col, 0), COALESCE(end_line, 0), COALESCE(end_col, 0),
		       COALESCE(attrs, '{}')
		FROM symbols WHERE blob_hash = ? ORDER BY symbol_id`, blobHash)
	if err != nil {
		return nil, fmt.Errorf("symbols by blob: %w", err)
	}
	defer rows.Close()
	var out []Symbol
	for rows.Next() {
		var sym Symbol
		if err := rows.Scan(&sym.SymbolID, &sym.BlobHash, &sym.FileID, &sym.Lang, &sym.Name, &sym.Kind,
			&sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol, &sym.Attrs); err != nil {
			return nil, fmt.Errorf("symbols by blob: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// CallsByBlob lists the call rows derived from one blob.
func (s *Store) CallsByBlob(blobHash string) ([]Call, error) {
	rows, err := s.db.Query(`
		SELECT blob_hash, file_id, src_node, dst_name, dst_symbol, resolved, COALESCE(attrs, '{}')
		FROM calls WHERE blob_hash = ?`, blobHash)
	if err != nil {
		return nil, fmt.Errorf("calls by blob: %w", err)
	}
	defer rows.Close()
	var out []Call
	for rows.Next() {
		var c Call
		var resolved int
		if err := rows.Scan(&c.BlobHash, &c.FileID, &c.SrcNode, &c.DstName, &c.DstSymbol, &resolved, &c.Attrs); err != nil {
			return nil, fmt.Errorf("calls by blob: %w", err)
		}
		c.Resolved = resolved == 1
		out = append(out, c)
	}
	return out, rows.Err()
}
