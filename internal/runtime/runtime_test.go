package runtime

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/store"
)

const fixtureSource = "def handler(x):\n    return escape(x)\n"

// newTestRuntime seeds a store with one indexed python file so every host
// function has something to return.
func newTestRuntime(t *testing.T) (*Runtime, string) {
	t.Helper()

	s, err := store.NewStore(filepath.Join(t.TempDir(), "runtime.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	content := []byte(fixtureSource)
	hash := store.ContentHash(content)
	defNode := hash + ":0-37"
	callNode := hash + ":27-36"

	ctx := context.Background()
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.BeginRevision(tx, "head", ""))

	fid, err := s.UpsertFile(tx, "handler.py", "python")
	require.NoError(t, err)
	require.NoError(t, s.UpsertFileVersion(tx, "head", fid, hash, int64(len(content)), 0))
	require.NoError(t, s.UpsertBlob(tx, hash, content))

	err = s.PutFileArtifacts(tx, hash, fid, store.Artifacts{
		Path:    "handler.py",
		Lang:    "python",
		Content: content,
		Nodes: []store.Node{
			{NodeID: defNode, BlobHash: hash, FileID: fid, Lang: "python", Kind: "function_definition",
				StartByte: 0, EndByte: 37, StartLine: 1, StartCol: 1, EndLine: 2, EndCol: 21, Attrs: "{}"},
			{NodeID: callNode, BlobHash: hash, FileID: fid, Lang: "python", Kind: "call",
				StartByte: 27, EndByte: 36, StartLine: 2, StartCol: 12, EndLine: 2, EndCol: 21, Attrs: "{}"},
		},
		Edges: []store.Edge{
			{BlobHash: hash, FileID: fid, Src: defNode, Dst: callNode, Kind: "AST", Attrs: "{}"},
		},
		Symbols: []store.Symbol{
			{SymbolID: defNode, BlobHash: hash, FileID: fid, Lang: "python", Name: "handler",
				Kind: "function", StartLine: 1, StartCol: 1, EndLine: 2, EndCol: 21, Attrs: "{}"},
		},
		Calls: []store.Call{
			{BlobHash: hash, FileID: fid, SrcNode: callNode, DstName: "escape", Attrs: "{}"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	return NewRuntime(s), hash
}

func TestRunSource_LatestRevAndRevisions(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	out, err := r.RunSource(context.Background(), `latest_rev() == "head"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", out)

	out, err = r.RunSource(context.Background(), `len(revisions())`, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", out)
}

func TestRunSource_SymbolSearch(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	script := `
hits := symbol_search(latest_rev(), "handler")
len(hits) == 1 && hits[0]["kind"] == "function" && hits[0]["path"] == "handler.py"
`
	out, err := r.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", out)
}

func TestRunSource_SymbolSearchSubstringFallback(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	out, err := r.RunSource(context.Background(),
		`len(symbol_search(latest_rev(), "hand", "python", 10))`, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", out)
}

func TestRunSource_NeighborsAndLocations(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	script := `
sym := symbol_search(latest_rev(), "handler")[0]
edges := neighbors(latest_rev(), [sym["symbol_id"]], "out", ["AST"], 10)
locs := node_locations([edges[0]["dst"]])
len(edges) == 1 && locs[edges[0]["dst"]]["file_path"] == "handler.py"
`
	out, err := r.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", out)
}

func TestRunSource_CallSites(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	script := `
sites := callsites(latest_rev(), ["escape"], "python")
len(sites) == 1 && sites[0]["dst_name"] == "escape" && !sites[0]["resolved"]
`
	out, err := r.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", out)
}

func TestRunSource_BlobContentAndStats(t *testing.T) {
	t.Parallel()
	r, hash := newTestRuntime(t)

	out, err := r.RunSource(context.Background(),
		`len(blob_content("`+hash+`"))`, nil)
	require.NoError(t, err)
	assert.Equal(t, "37", out)

	out, err = r.RunSource(context.Background(),
		`st := stats(); st["symbols"] == 1 && st["files"] == 1 && st["nodes"] == 2`, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", out)
}

func TestRunSource_SearchCode(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	// "handler" appears in both the path and the content, so the assertion
	// holds whether or not the sqlite build carries FTS5.
	out, err := r.RunSource(context.Background(),
		`len(search_code("handler", "", 10)) >= 1`, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", out)
}

func TestRunSource_UnknownRevisionErrors(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	_, err := r.RunSource(context.Background(), `symbol_search("nope", "handler")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRunSource_ExtraGlobals(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	out, err := r.RunSource(context.Background(), `limit * 2`, map[string]any{"limit": 21})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestRunScript_MissingFile(t *testing.T) {
	t.Parallel()
	r, _ := newTestRuntime(t)

	_, err := r.RunScript(context.Background(), filepath.Join(t.TempDir(), "absent.risor"), nil)
	require.Error(t, err)
}
