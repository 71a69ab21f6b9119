package arbor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/lang"
)

// newTestEngine creates an Engine over a fresh temp database, with blob
// storage on so that content-dependent queries work.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithStoreBlobs(true)}, opts...)
	e, err := New(filepath.Join(t.TempDir(), "arbor.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeRepo materializes files (slash-relative path -> content) under a new
// temp root and returns the root.
func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for p, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func crossFileRepo(t *testing.T) string {
	t.Helper()
	return writeRepo(t, map[string]string{
		"a.py": "def helper():\n    return 1\n",
		"b.py": "from a import helper\n\ndef main():\n    return helper()\n",
	})
}

func TestIndexRepository_EndToEnd(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := crossFileRepo(t)

	stats, err := e.IndexRepository(context.Background(), root, "head", "")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Files)
	assert.EqualValues(t, 2, stats.FileVersions)
	assert.Positive(t, stats.Nodes)
	assert.Positive(t, stats.Edges)
	assert.Positive(t, stats.Symbols)
	assert.Positive(t, stats.Calls)

	q := e.Query()

	// Exactly one declared symbol named helper, in a.py.
	res, err := q.SymbolSearch("", "helper", "", 0)
	require.NoError(t, err)
	require.Len(t, res.Symbols, 1)
	helper := res.Symbols[0]
	assert.Equal(t, "a.py", helper.Location.FilePath)
	assert.Equal(t, "function", helper.Kind)

	// The call site in b.py shows up resolved against it.
	require.NotEmpty(t, res.CallSites)
	var resolved bool
	var callNode string
	for _, cs := range res.CallSites {
		if cs.Resolved && cs.DstSym == helper.SymbolID {
			resolved = true
			callNode = cs.SrcNode
		}
	}
	require.True(t, resolved, "call to helper should resolve to its symbol")

	// Strict import resolution proves the import in b.py.
	proof, err := e.ResolveImport(context.Background(), ResolveRequest{
		Lang: lang.Python, FromModule: "a", Name: "helper", RepoRootHint: root,
	})
	require.NoError(t, err)
	require.NotEmpty(t, proof.Matches)
	assert.Equal(t, "a.py", proof.Matches[0].Path)

	// The call graph from main's call site reaches helper's symbol.
	cg, err := q.Callgraph("", callNode, "out", 0, GraphOptions{})
	require.NoError(t, err)
	var reached bool
	for _, ed := range cg.Edges {
		if ed.Dst == helper.SymbolID && (ed.Kind == "CALL" || ed.Kind == "CFG_IP_CALL") {
			reached = true
		}
	}
	assert.True(t, reached, "callgraph should reach helper's symbol id")
}

func TestIndexRepository_Idempotent(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := crossFileRepo(t)
	ctx := context.Background()

	first, err := e.IndexRepository(ctx, root, "head", "")
	require.NoError(t, err)
	second, err := e.IndexRepository(ctx, root, "head", "")
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-indexing identical content must not add rows")
}

func TestIndexRepository_BlobReuseAcrossRevisions(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := crossFileRepo(t)
	ctx := context.Background()

	base, err := e.IndexRepository(ctx, root, "base", "")
	require.NoError(t, err)
	head, err := e.IndexRepository(ctx, root, "head", "base")
	require.NoError(t, err)

	assert.Equal(t, base.FileVersions+2, head.FileVersions)
	assert.Equal(t, base.Nodes, head.Nodes, "byte-identical blobs must not re-derive nodes")
	assert.Equal(t, base.Blobs, head.Blobs)
}

func TestIndexRepository_ScanExclusion(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := writeRepo(t, map[string]string{
		"main.py":                "x = 1\n",
		"node_modules/dep.py":    "y = 2\n",
		".git/hooks/trap.py":     "z = 3\n",
	})

	stats, err := e.IndexRepository(context.Background(), root, "head", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Files)

	_, err = e.Query().ASTIndex(context.Background(), "", "node_modules/dep.py")
	require.Error(t, err)
}

func TestIndexRepository_LanguageFilter(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, WithLanguages(lang.Go))
	root := writeRepo(t, map[string]string{
		"main.go":  "package main\n\nfunc Fine() {}\n",
		"extra.py": "def f():\n    pass\n",
	})

	stats, err := e.IndexRepository(context.Background(), root, "head", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Files)

	res, err := e.Query().SymbolSearch("", "Fine", "", 0)
	require.NoError(t, err)
	assert.Len(t, res.Symbols, 1)
}

func TestQuery_UnknownRevisionIsHardFailure(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := crossFileRepo(t)
	_, err := e.IndexRepository(context.Background(), root, "head", "")
	require.NoError(t, err)

	_, err = e.Query().SymbolSearch("ghost", "helper", "", 0)
	require.Error(t, err)
	res := Envelope(nil, err)
	require.False(t, res.OK)
	assert.Equal(t, "unknown_revision", res.Error.Details["kind"])
}

func TestSignatureAndSummary(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := writeRepo(t, map[string]string{
		"svc.py": "def run(cmd):\n    import os\n    os.system(cmd)\n    return 0\n",
	})
	_, err := e.IndexRepository(context.Background(), root, "head", "")
	require.NoError(t, err)
	q := e.Query()

	res, err := q.SymbolSearch("", "run", "", 0)
	require.NoError(t, err)
	require.Len(t, res.Symbols, 1)
	symID := res.Symbols[0].SymbolID

	sig, err := q.Signature("", symID)
	require.NoError(t, err)
	assert.Equal(t, "def run(cmd):", sig.Signature)
	assert.Equal(t, "svc.py", sig.Location.FilePath)

	sum, err := q.Summary("", symID)
	require.NoError(t, err)
	assert.True(t, sum.HasReturn)
	assert.True(t, sum.HasSideEffects)
	assert.False(t, sum.MayThrow)
}

func TestASTIndex_DefsCallsImports(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := crossFileRepo(t)
	_, err := e.IndexRepository(context.Background(), root, "head", "")
	require.NoError(t, err)

	data, err := e.Query().ASTIndex(context.Background(), "", "b.py")
	require.NoError(t, err)
	assert.Equal(t, "python", data.Lang)

	var defNames []string
	for _, d := range data.Defs {
		defNames = append(defNames, d.Name)
	}
	assert.Contains(t, defNames, "main")

	var callNames []string
	for _, c := range data.Calls {
		callNames = append(callNames, c.DstName)
	}
	assert.Contains(t, callNames, "helper")

	require.Len(t, data.Imports, 1)
	assert.Equal(t, "a", data.Imports[0].Module)
	assert.Equal(t, "from a import helper", data.Imports[0].Text)
}

func TestStats(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)
	root := crossFileRepo(t)
	want, err := e.IndexRepository(context.Background(), root, "head", "")
	require.NoError(t, err)

	got, err := e.Store().Stats()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
