package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/lang"
)

func (s *Server) handleIndexRepository(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	repoPath := getStringArg(args, "repo_path")
	rev := getStringArg(args, "rev")
	if repoPath == "" || rev == "" {
		return errResult("repo_path and rev are required"), nil
	}

	stats, err := s.engine.IndexRepository(ctx, repoPath, rev, getStringArg(args, "base_rev"))
	return envResult(stats, err), nil
}

func (s *Server) handleSymbolSearch(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	query := getStringArg(args, "query")
	if query == "" {
		return errResult("query is required"), nil
	}

	data, err := s.engine.Query().SymbolSearch(
		getStringArg(args, "rev"), query, getStringArg(args, "lang"), getIntArg(args, "limit", 50))
	return envResult(data, err), nil
}

func (s *Server) handleSearchCode(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	query := getStringArg(args, "query")
	if query == "" {
		return errResult("query is required"), nil
	}

	hits, err := s.engine.Query().Search(query, getStringArg(args, "lang"), getIntArg(args, "limit", 20))
	return envResult(map[string]any{"hits": hits}, err), nil
}

func (s *Server) handleASTIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	path := getStringArg(args, "path")
	if path == "" {
		return errResult("path is required"), nil
	}

	data, err := s.engine.Query().ASTIndex(ctx, getStringArg(args, "rev"), path)
	return envResult(data, err), nil
}

func (s *Server) handleGetSignature(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	id := getStringArg(args, "id")
	if id == "" {
		return errResult("id is required"), nil
	}

	data, err := s.engine.Query().Signature(getStringArg(args, "rev"), id)
	return envResult(data, err), nil
}

func (s *Server) handleSummary(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	id := getStringArg(args, "id")
	if id == "" {
		return errResult("id is required"), nil
	}

	data, err := s.engine.Query().Summary(getStringArg(args, "rev"), id)
	return envResult(data, err), nil
}

func (s *Server) handleResolveImport(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	langArg := getStringArg(args, "lang")
	fromModule := getStringArg(args, "from_module")
	name := getStringArg(args, "name")
	if langArg == "" || fromModule == "" || name == "" {
		return errResult("lang, from_module and name are required"), nil
	}
	l, err := lang.Normalize(langArg)
	if err != nil {
		return envResult(nil, err), nil
	}

	proof, err := s.engine.ResolveImport(ctx, arbor.ResolveRequest{
		Lang:         l,
		FromModule:   fromModule,
		Name:         name,
		RepoRootHint: getStringArg(args, "repo_root_hint"),
		ImporterPath: getStringArg(args, "importer_path"),
		MaxDepth:     getIntArg(args, "max_depth", 0),
		Rev:          getStringArg(args, "rev"),
	})
	return envResult(proof, err), nil
}

func (s *Server) handleQueryForward(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleQuery(req, "out")
}

func (s *Server) handleQueryBackward(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handleQuery(req, "in")
}

func (s *Server) handleQuery(req *mcp.CallToolRequest, direction string) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	ids := getStringSliceArg(args, "node_ids")
	if len(ids) == 0 {
		return errResult("node_ids is required"), nil
	}

	rev := getStringArg(args, "rev")
	opt := graphOptions(args)
	var data *arbor.GraphData
	if direction == "in" {
		data, err = s.engine.Query().QueryBackward(rev, ids, opt)
	} else {
		data, err = s.engine.Query().QueryForward(rev, ids, opt)
	}
	return envResult(data, err), nil
}

func (s *Server) handleSlice(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	criteria := getStringSliceArg(args, "criteria")
	if len(criteria) == 0 {
		return errResult("criteria is required"), nil
	}

	data, err := s.engine.Query().Slice(
		getStringArg(args, "rev"), criteria, getStringArg(args, "direction"), graphOptions(args))
	return envResult(data, err), nil
}

func (s *Server) handleReachability(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	source := getStringArg(args, "source")
	target := getStringArg(args, "target")
	if source == "" || target == "" {
		return errResult("source and target are required"), nil
	}

	data, err := s.engine.Query().Reachability(getStringArg(args, "rev"), source, target, graphOptions(args))
	return envResult(data, err), nil
}

func (s *Server) handleCallgraph(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	id := getStringArg(args, "id")
	if id == "" {
		return errResult("id is required"), nil
	}

	data, err := s.engine.Query().Callgraph(
		getStringArg(args, "rev"), id, getStringArg(args, "direction"),
		getIntArg(args, "depth", 0), graphOptions(args))
	return envResult(data, err), nil
}

func (s *Server) handleCFGRegion(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	id := getStringArg(args, "id")
	if id == "" {
		return errResult("id is required"), nil
	}

	data, err := s.engine.Query().CFGRegion(
		getStringArg(args, "rev"), id, getStringArg(args, "direction"),
		getIntArg(args, "depth", 0), graphOptions(args))
	return envResult(data, err), nil
}

func (s *Server) handleTaint(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	langArg := getStringArg(args, "lang")
	if langArg == "" {
		return errResult("lang is required"), nil
	}
	l, err := lang.Normalize(langArg)
	if err != nil {
		return envResult(nil, err), nil
	}

	opt := arbor.TaintOptions{
		MaxSteps: getIntArg(args, "max_steps", 0),
		MaxPaths: getIntArg(args, "max_paths", 0),
	}
	rev := getStringArg(args, "rev")
	var data *arbor.TaintData
	if getStringArg(args, "direction") == "backward" {
		data, err = s.engine.Query().TaintBackward(rev, l, opt)
	} else {
		data, err = s.engine.Query().TaintForward(rev, l, opt)
	}
	return envResult(data, err), nil
}

func (s *Server) handleStats(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.engine.Store().Stats()
	return envResult(stats, err), nil
}

func graphOptions(args map[string]any) arbor.GraphOptions {
	return arbor.GraphOptions{
		EdgeKinds:    getStringSliceArg(args, "edge_kinds"),
		MaxNodes:     getIntArg(args, "max_nodes", 0),
		PerNodeLimit: getIntArg(args, "per_node_limit", 0),
	}
}

// envResult serializes the result envelope as text content. Tool failures
// ride inside the envelope so callers always get a well-formed result.
func envResult(data any, err error) *mcp.CallToolResult {
	return jsonResult(arbor.Envelope(data, err))
}

func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult reports a malformed tool call.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

func getStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// getIntArg extracts an integer argument. JSON numbers decode as float64.
func getIntArg(args map[string]any, key string, defaultVal int) int {
	f, ok := args[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(f)
}

func getStringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
