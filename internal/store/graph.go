package store

import (
	"fmt"
	"strings"
)

// DirOut and DirIn select which end of an edge to match in neighbor queries.
const (
	DirOut = "out"
	DirIn  = "in"
)

func scanEdges(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
	Close() error
}) ([]Edge, error) {
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.BlobHash, &e.FileID, &e.Src, &e.Dst, &e.Kind, &e.Attrs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Neighbors returns up to limit edges touching nodeID in the given
// direction, optionally filtered by edge kinds.
func (s *Store) Neighbors(nodeID, direction string, kinds []string, limit int) ([]Edge, error) {
	return s.NeighborsMulti([]string{nodeID}, direction, kinds, limit)
}

// NeighborsMulti is Neighbors over a frontier of ids in one query.
func (s *Store) NeighborsMulti(ids []string, direction string, kinds []string, limit int) ([]Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	col := "src"
	if direction == DirIn {
		col = "dst"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb,
		`SELECT blob_hash, file_id, src, dst, kind, COALESCE(attrs, '{}') FROM edges WHERE %s IN (%s)`,
		col, placeholderList(len(ids)))
	args := stringsToArgs(ids)
	if len(kinds) > 0 {
		fmt.Fprintf(&sb, ` AND kind IN (%s)`, placeholderList(len(kinds)))
		args = append(args, stringsToArgs(kinds)...)
	}
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	edges, err := scanEdges(rows)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	return edges, nil
}

// NeighborsRev is NeighborsMulti restricted to edges whose owning file
// version belongs to rev, so traversals never leak across revisions.
func (s *Store) NeighborsRev(rev string, ids []string, direction string, kinds []string, limit int) ([]Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	col := "e.src"
	if direction == DirIn {
		col = "e.dst"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT e.blob_hash, e.file_id, e.src, e.dst, e.kind, COALESCE(e.attrs, '{}')
		FROM edges e
		JOIN file_versions fv ON fv.file_id = e.file_id AND fv.blob_hash = e.blob_hash
		WHERE fv.rev = ? AND %s IN (%s)`, col, placeholderList(len(ids)))
	args := append([]any{rev}, stringsToArgs(ids)...)
	if len(kinds) > 0 {
		fmt.Fprintf(&sb, ` AND e.kind IN (%s)`, placeholderList(len(kinds)))
		args = append(args, stringsToArgs(kinds)...)
	}
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}
	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("neighbors rev %s: %w", rev, err)
	}
	edges, err := scanEdges(rows)
	if err != nil {
		return nil, fmt.Errorf("neighbors rev %s: %w", rev, err)
	}
	return edges, nil
}

// CallSitesByNames returns call rows at rev whose callee name is in names,
// optionally scoped by file language.
func (s *Store) CallSitesByNames(rev string, names []string, langFilter string) ([]CallSite, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT c.src_node, c.dst_name, COALESCE(c.dst_symbol, ''), c.resolved, f.path, COALESCE(f.lang, '')
		FROM calls c
		JOIN files f ON f.file_id = c.file_id
		JOIN file_versions fv ON fv.file_id = c.file_id AND fv.blob_hash = c.blob_hash
		WHERE fv.rev = ? AND c.dst_name IN (%s)`, placeholderList(len(names)))
	args := append([]any{rev}, stringsToArgs(names)...)
	if langFilter != "" {
		sb.WriteString(` AND f.lang = ?`)
		args = append(args, langFilter)
	}
	rows, err := s.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("call sites: %w", err)
	}
	defer rows.Close()
	var out []CallSite
	for rows.Next() {
		var cs CallSite
		var resolved int
		if err := rows.Scan(&cs.SrcNode, &cs.DstName, &cs.DstSym, &resolved, &cs.Path, &cs.Lang); err != nil {
			return nil, fmt.Errorf("call sites: %w", err)
		}
		cs.Resolved = resolved == 1
		out = append(out, cs)
	}
	return out, rows.Err()
}

// SearchCode runs a full-text search over stored blob content, returning
// path/lang/snippet hits. Without FTS5 it degrades to a substring match on
// file paths only; reduced recall, not an error.
func (s *Store) SearchCode(query, langFilter string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.fts {
		sql := `SELECT path, lang, snippet(fts_code, 2, '[', ']', '…', 8)
			FROM fts_code WHERE fts_code MATCH ?`
		args := []any{query}
		if langFilter != "" {
			sql += ` AND lang = ?`
			args = append(args, langFilter)
		}
		sql += ` LIMIT ?`
		args = append(args, limit)
		rows, err := s.db.Query(sql, args...)
		if err == nil {
			defer rows.Close()
			var out []SearchHit
			for rows.Next() {
				var h SearchHit
				if err := rows.Scan(&h.Path, &h.Lang, &h.Snippet); err != nil {
					return nil, fmt.Errorf("search code: %w", err)
				}
				out = append(out, h)
			}
			return out, rows.Err()
		}
		// Bad MATCH syntax and similar fall through to the path filter.
	}
	sql := `SELECT path, COALESCE(lang, '') FROM files WHERE path LIKE ?`
	args := []any{"%" + query + "%"}
	if langFilter != "" {
		sql += ` AND lang = ?`
		args = append(args, langFilter)
	}
	sql += ` ORDER BY path LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.Query(sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search code: %w", err)
	}
	defer rows.Close()
	var out []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.Path, &h.Lang); err != nil {
			return nil, fmt.Errorf("search code: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Stats counts rows in every artifact table.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dst   *int64
	}{
		{"files", &st.Files},
		{"file_versions", &st.FileVersions},
		{"blobs", &st.Blobs},
		{"nodes", &st.Nodes},
		{"edges", &st.Edges},
		{"symbols", &st.Symbols},
		{"calls", &st.Calls},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + c.table).Scan(c.dst); err != nil {
			return st, fmt.Errorf("stats: count %s: %w", c.table, err)
		}
	}
	return st, nil
}
