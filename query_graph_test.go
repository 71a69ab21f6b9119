package arbor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// indexFixture indexes files at revision "head" and returns the engine's
// query builder.
func indexFixture(t *testing.T, files map[string]string) (*Engine, *QueryBuilder) {
	t.Helper()
	e := newTestEngine(t)
	root := writeRepo(t, files)
	_, err := e.IndexRepository(context.Background(), root, "head", "")
	require.NoError(t, err)
	return e, e.Query()
}

func TestQueryForwardBackward_FollowResolvedCall(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"a.py": "def helper():\n    return 1\n",
		"b.py": "from a import helper\n\ndef main():\n    return helper()\n",
	})

	res, err := q.SymbolSearch("", "helper", "", 0)
	require.NoError(t, err)
	require.Len(t, res.Symbols, 1)
	var callNode string
	for _, cs := range res.CallSites {
		if cs.Resolved {
			callNode = cs.SrcNode
		}
	}
	require.NotEmpty(t, callNode)

	fwd, err := q.QueryForward("", []string{callNode}, GraphOptions{})
	require.NoError(t, err)
	var ids []string
	for _, n := range fwd.Nodes {
		ids = append(ids, n.NodeID)
	}
	assert.Contains(t, ids, res.Symbols[0].SymbolID)

	back, err := q.QueryBackward("", []string{res.Symbols[0].SymbolID}, GraphOptions{})
	require.NoError(t, err)
	ids = ids[:0]
	for _, n := range back.Nodes {
		ids = append(ids, n.NodeID)
	}
	assert.Contains(t, ids, callNode)
}

func TestSlice_MaxNodesBound(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"big.py": "def f():\n    a = 1\n    b = a\n    c = b\n    d = c\n    return d\n",
	})

	sig, err := q.SymbolSearch("", "f", "", 0)
	require.NoError(t, err)
	require.Len(t, sig.Symbols, 1)

	// Slice forward from the function's first AST node, capped hard at 3.
	start := sig.Symbols[0].SymbolID
	node := nodeForSymbol(t, q, start)

	out, err := q.Slice("", []string{node}, "out", GraphOptions{EdgeKinds: []string{"AST", "CFG", "DDG"}, MaxNodes: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out.Nodes), 3)
	assert.True(t, out.Truncated)
}

// nodeForSymbol finds the stored AST node covering the symbol's span by id
// shape: symbol ids are node ids in this graph model.
func nodeForSymbol(t *testing.T, q *QueryBuilder, symbolID string) string {
	t.Helper()
	require.True(t, isNodeID(symbolID))
	return symbolID
}

func TestSlice_TerminatesOnCycles(t *testing.T) {
	t.Parallel()
	// while loop yields CFG edges that revisit statements.
	_, q := indexFixture(t, map[string]string{
		"loop.py": "def spin():\n    i = 0\n    while i:\n        i = i\n    return i\n",
	})

	sig, err := q.SymbolSearch("", "spin", "", 0)
	require.NoError(t, err)
	require.Len(t, sig.Symbols, 1)

	out, err := q.Slice("", []string{sig.Symbols[0].SymbolID}, "out", GraphOptions{EdgeKinds: []string{"AST", "CFG", "CFG_BRANCH", "DDG"}})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out.Nodes), DefaultMaxNodes)
}

func TestSlice_InvalidDirection(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{"m.py": "x = 1\n"})

	_, err := q.Slice("", []string{"deadbeef:0-1"}, "sideways", GraphOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "direction")
}

func TestReachability_PathAndMiss(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"a.py": "def helper():\n    return 1\n",
		"b.py": "from a import helper\n\ndef main():\n    return helper()\n",
	})

	res, err := q.SymbolSearch("", "helper", "", 0)
	require.NoError(t, err)
	require.Len(t, res.Symbols, 1)
	var callNode string
	for _, cs := range res.CallSites {
		if cs.Resolved {
			callNode = cs.SrcNode
		}
	}
	require.NotEmpty(t, callNode)

	reach, err := q.Reachability("", callNode, res.Symbols[0].SymbolID, GraphOptions{})
	require.NoError(t, err)
	assert.True(t, reach.Reachable)
	require.NotEmpty(t, reach.Path)
	assert.Equal(t, callNode, reach.Path[0].NodeID)
	assert.Equal(t, res.Symbols[0].SymbolID, reach.Path[len(reach.Path)-1].NodeID)
	assert.Len(t, reach.PathEdges, len(reach.Path)-1)

	// Restricted to data-flow edges only, the symbol cannot reach back to
	// its call site.
	miss, err := q.Reachability("", res.Symbols[0].SymbolID, callNode, GraphOptions{EdgeKinds: []string{"DDG"}})
	require.NoError(t, err)
	assert.False(t, miss.Reachable)
	assert.Empty(t, miss.Path)
}

func TestCallgraph_DepthBounded(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"chain.py": "def a():\n    return b()\n\ndef b():\n    return c()\n\ndef c():\n    return 1\n",
	})

	res, err := q.SymbolSearch("", "b", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.Symbols)

	// Callers of b: one hop along incoming CALL edges finds a's call site.
	in, err := q.Callgraph("", res.Symbols[0].SymbolID, "in", 1, GraphOptions{})
	require.NoError(t, err)
	assert.Greater(t, len(in.Nodes), 1)
	for _, ed := range in.Edges {
		assert.Contains(t, CallgraphEdgeKinds(), ed.Kind)
	}
}

func TestCFGRegion_OnlyControlFlowKinds(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"ctl.py": "def g(x):\n    if x:\n        y = 1\n    else:\n        y = 2\n    return y\n",
	})

	res, err := q.SymbolSearch("", "g", "", 0)
	require.NoError(t, err)
	require.Len(t, res.Symbols, 1)

	region, err := q.CFGRegion("", res.Symbols[0].SymbolID, "out", 2, GraphOptions{})
	require.NoError(t, err)
	for _, ed := range region.Edges {
		assert.Contains(t, CFGEdgeKinds(), ed.Kind)
	}
}

func TestSearch_FallsBackToPaths(t *testing.T) {
	t.Parallel()
	_, q := indexFixture(t, map[string]string{
		"pkg/handler.py": "def handle():\n    pass\n",
	})

	hits, err := q.Search("handler", "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "pkg/handler.py", hits[0].Path)
}
