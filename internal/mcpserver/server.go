// Package mcpserver exposes the query surface as MCP tools over stdio.
//
// Every tool returns the JSON result envelope as text content, so an agent
// consuming these tools can always distinguish "no results" from "could not
// compute" by inspecting the ok flag.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/arbor"
)

// Server wraps the MCP server with tool handlers bound to one engine.
type Server struct {
	mcp    *mcp.Server
	engine *arbor.Engine
}

// NewServer creates an MCP server with all tools registered.
func NewServer(e *arbor.Engine, version string) *Server {
	srv := &Server{
		engine: e,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "arbor",
				Version: version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves tool calls over stdio until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

const revProperty = `"rev": {
	"type": "string",
	"description": "Revision to query. Empty selects the most recent revision."
}`

const graphProperties = `
	"edge_kinds": {
		"type": "array",
		"items": {"type": "string"},
		"description": "Edge kinds to follow: AST, CFG, CFG_BRANCH, CALL, CFG_IP_CALL, CFG_IP_RET, DDG. Empty uses the default non-AST set."
	},
	"max_nodes": {
		"type": "integer",
		"description": "Result budget for visited nodes (default 500)"
	},
	"per_node_limit": {
		"type": "integer",
		"description": "Edge fan-out cap per visited node (default 200)"
	}`

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "index_repository",
		Description: "Index a repository snapshot into the code property graph under a revision label. Scans supported source files, builds per-file AST/CFG/DDG artifacts keyed by content hash, and resolves cross-file calls. Unchanged file contents are reused from previous revisions.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"repo_path": {
					"type": "string",
					"description": "Absolute path of the repository to index"
				},
				"rev": {
					"type": "string",
					"description": "Revision label for this snapshot (e.g. a commit hash or 'head')"
				},
				"base_rev": {
					"type": "string",
					"description": "Optional prior revision this snapshot derives from"
				}
			},
			"required": ["repo_path", "rev"]
		}`),
	}, s.handleIndexRepository)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "symbol_search",
		Description: "Search declared symbols by name. Exact matches first, substring matches as fallback. Results carry declaration locations and known call sites of the matched names.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"query": {"type": "string", "description": "Symbol name or substring"},
				"lang": {"type": "string", "description": "Optional language filter (python, typescript, go, java, ruby)"},
				"limit": {"type": "integer", "description": "Maximum symbols returned (default 50)"}
			},
			"required": ["query"]
		}`),
	}, s.handleSymbolSearch)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "search_code",
		Description: "Full-text search over indexed file contents, with a path-substring fallback when the sqlite build lacks FTS5.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search terms"},
				"lang": {"type": "string", "description": "Optional language filter"},
				"limit": {"type": "integer", "description": "Maximum hits returned (default 20)"}
			},
			"required": ["query"]
		}`),
	}, s.handleSearchCode)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "ast_index",
		Description: "Per-file index of definitions, call sites, and import statements at a revision. The file is re-parsed from its stored blob, so results reflect exactly the indexed content.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"path": {"type": "string", "description": "Repository-relative file path"}
			},
			"required": ["path"]
		}`),
	}, s.handleASTIndex)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_signature",
		Description: "First line of a symbol or node region, with its location. Accepts a symbol id, a node id, or a symbol name.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"id": {"type": "string", "description": "Symbol id, node id, or symbol name"}
			},
			"required": ["id"]
		}`),
	}, s.handleGetSignature)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "cpg_summary",
		Description: "Cheap behavioral summary of a symbol or node region: whether it returns a value, may raise, and has visible side effects, derived from the region text.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"id": {"type": "string", "description": "Symbol id, node id, or symbol name"}
			},
			"required": ["id"]
		}`),
	}, s.handleSummary)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "resolve_import",
		Description: "Strict, proof-based import resolution. Verifies that the named import binding is actually provided by repository content at the revision, and returns location evidence. Fails with an explicit reason (missing_hint, module_not_found, name_not_exported, unsupported_specifier) rather than guessing.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"lang": {"type": "string", "description": "Language of the import (python, typescript, go, java, ruby)"},
				"from_module": {"type": "string", "description": "Module specifier as written in the import"},
				"name": {"type": "string", "description": "Imported binding name"},
				"repo_root_hint": {"type": "string", "description": "Repository-relative source root hint (required for go and java)"},
				"importer_path": {"type": "string", "description": "Path of the importing file (required for relative specifiers)"},
				"max_depth": {"type": "integer", "description": "Re-export chase bound (default 5)"}
			},
			"required": ["lang", "from_module", "name"]
		}`),
	}, s.handleResolveImport)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "cpg_query_forward",
		Description: "BFS over outgoing graph edges from the given node ids. Returns visited nodes with locations and the traversed edges, truncated at the node budget.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"node_ids": {"type": "array", "items": {"type": "string"}, "description": "Start node or symbol ids"},
				` + graphProperties + `
			},
			"required": ["node_ids"]
		}`),
	}, s.handleQueryForward)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "cpg_query_backward",
		Description: "BFS over incoming graph edges from the given node ids. Returns visited nodes with locations and the traversed edges, truncated at the node budget.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"node_ids": {"type": "array", "items": {"type": "string"}, "description": "Start node or symbol ids"},
				` + graphProperties + `
			},
			"required": ["node_ids"]
		}`),
	}, s.handleQueryBackward)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "cpg_slice",
		Description: "Program slice from criterion nodes in the chosen direction, following the selected edge kinds until the node budget is reached.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"criteria": {"type": "array", "items": {"type": "string"}, "description": "Slicing criterion node ids"},
				"direction": {"type": "string", "enum": ["forward", "backward"], "description": "Slice direction (default forward)"},
				` + graphProperties + `
			},
			"required": ["criteria"]
		}`),
	}, s.handleSlice)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "cpg_reachability",
		Description: "Whether a target node is reachable from a source node over the selected edge kinds, with one shortest witness path when reachable.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"source": {"type": "string", "description": "Source node or symbol id"},
				"target": {"type": "string", "description": "Target node or symbol id"},
				` + graphProperties + `
			},
			"required": ["source", "target"]
		}`),
	}, s.handleReachability)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "cpg_callgraph",
		Description: "Depth-bounded call-graph neighborhood of a symbol or call node, following CALL and interprocedural CFG edges.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"id": {"type": "string", "description": "Symbol id or call node id"},
				"direction": {"type": "string", "enum": ["out", "in"], "description": "Callees (out) or callers (in), default out"},
				"depth": {"type": "integer", "description": "Maximum hop count (default 2)"},
				` + graphProperties + `
			},
			"required": ["id"]
		}`),
	}, s.handleCallgraph)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "cpg_cfg_region",
		Description: "Depth-bounded control-flow region around a node, following only CFG and CFG_BRANCH edges.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"id": {"type": "string", "description": "CFG node id"},
				"direction": {"type": "string", "enum": ["out", "in"], "description": "Successors (out) or predecessors (in), default out"},
				"depth": {"type": "integer", "description": "Maximum hop count (default 2)"},
				` + graphProperties + `
			},
			"required": ["id"]
		}`),
	}, s.handleCFGRegion)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "cpg_taint",
		Description: "Taint propagation between configured source and sink call sites over data-flow and interprocedural edges, pruning paths through sanitizers. Forward walks source to sink, backward walks sink to source.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				` + revProperty + `,
				"lang": {"type": "string", "description": "Language whose source/sink tables apply"},
				"direction": {"type": "string", "enum": ["forward", "backward"], "description": "Walk direction (default forward)"},
				"max_steps": {"type": "integer", "description": "DFS step bound per start (default 80)"},
				"max_paths": {"type": "integer", "description": "Maximum reported paths (default 50)"}
			},
			"required": ["lang"]
		}`),
	}, s.handleTaint)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "stats",
		Description: "Row counts per store table: files, file versions, blobs, nodes, edges, symbols, calls.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleStats)
}
