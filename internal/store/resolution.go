package store

import (
	"database/sql"
	"fmt"
)

// ResolveCalls matches unresolved call rows against the symbol table and
// rebuilds the derived call edges. On a name collision the lowest symbol id
// wins; deterministic but heuristic. The CALL/CFG_IP_CALL/CFG_IP_RET edge
// kinds are deleted wholesale and re-inserted from the calls table, so this
// must run exactly once per indexing pass, after every file is loaded, and
// never interleaved with another writer.
//
// langFilter, when non-empty, restricts both the candidate symbols and the
// call rows (by file language) touched by the matching step; the edge
// rebuild is always global.
func (s *Store) ResolveCalls(tx *sql.Tx, langFilter string) error {
	matchSQL := `
		UPDATE calls SET dst_symbol = (
			SELECT MIN(symbol_id) FROM symbols
			WHERE symbols.name = calls.dst_name AND (?1 = '' OR symbols.lang = ?1)
		)
		WHERE resolved = 0
		  AND (?1 = '' OR file_id IN (SELECT file_id FROM files WHERE lang = ?1))`
	if _, err := tx.Exec(matchSQL, langFilter); err != nil {
		return fmt.Errorf("resolve calls: match: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE calls SET resolved = 1 WHERE resolved = 0 AND dst_symbol IS NOT NULL`); err != nil {
		return fmt.Errorf("resolve calls: mark: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM edges WHERE kind IN ('CFG_IP_CALL', 'CFG_IP_RET', 'CALL')`); err != nil {
		return fmt.Errorf("resolve calls: clear derived edges: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO edges(blob_hash, file_id, src, dst, kind, attrs)
		SELECT blob_hash, file_id, src_node,
		       CASE WHEN resolved = 1 THEN dst_symbol ELSE dst_name END,
		       'CALL',
		       CASE WHEN resolved = 1 THEN '{}' ELSE '{"unresolved":"true"}' END
		FROM calls`); err != nil {
		return fmt.Errorf("resolve calls: rebuild CALL: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO edges(blob_hash, file_id, src, dst, kind, attrs)
		SELECT blob_hash, file_id, src_node, dst_symbol, 'CFG_IP_CALL', '{}'
		FROM calls WHERE resolved = 1`); err != nil {
		return fmt.Errorf("resolve calls: rebuild CFG_IP_CALL: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO edges(blob_hash, file_id, src, dst, kind, attrs)
		SELECT blob_hash, file_id, dst_symbol, src_node, 'CFG_IP_RET', '{}'
		FROM calls WHERE resolved = 1`); err != nil {
		return fmt.Errorf("resolve calls: rebuild CFG_IP_RET: %w", err)
	}
	return nil
}
