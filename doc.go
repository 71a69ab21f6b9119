// Package arbor builds a lightweight code property graph over a repository
// snapshot and serves bounded graph queries from a SQLite revision store.
// It combines AST, control-flow, data-flow, and call edges extracted with
// tree-sitter for Go, Java, Python, Ruby, and TypeScript.
//
// # Pipeline
//
// Arbor indexes in two phases:
//
//  1. Build: scan the repository, parse each supported file, flatten the
//     syntax tree into nodes and edges, run the lightweight CFG and def-use
//     passes, and persist the per-blob artifacts. Artifacts are keyed by
//     content hash, so a file whose bytes were already indexed under any
//     revision is skipped entirely.
//
//  2. Resolve: match every recorded call site against the symbol table,
//     then delete and rebuild the CALL, CFG_IP_CALL, and CFG_IP_RET edges
//     from the resolved calls table. This runs once per indexing pass.
//
// # Usage
//
// Create an Engine, index a repository snapshot, and query:
//
//	e, err := arbor.New("arbor.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	stats, err := e.IndexRepository(ctx, "path/to/repo", "head", "")
//
//	q := e.Query()
//	res, err := q.SymbolSearch("", "helper", "", 0)
//
// Queries take a revision selector; the empty string means the most recently
// created revision. A named revision that does not exist is an error, never
// silently substituted.
package arbor
