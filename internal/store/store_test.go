package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a migrated store backed by a temp file database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTx opens a transaction that is rolled back unless committed.
func beginTx(t *testing.T, s *Store) *sql.Tx {
	t.Helper()
	tx, err := s.BeginTx(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

func ptr(s string) *string { return &s }

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	tables := []string{"meta", "revisions", "files", "file_versions", "blobs", "nodes", "edges", "symbols", "calls"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMigrate_SchemaVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, ok, err := s.GetMeta("schema_version")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestUpsertFile_UpdatesLang(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx := beginTx(t, s)

	id1, err := s.UpsertFile(tx, "a.py", "python")
	require.NoError(t, err)
	id2, err := s.UpsertFile(tx, "a.py", "ruby")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var lang string
	require.NoError(t, tx.QueryRow(`SELECT lang FROM files WHERE file_id=?`, id1).Scan(&lang))
	assert.Equal(t, "ruby", lang)
}

func TestBlobRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx := beginTx(t, s)

	content := []byte("def foo():\n    return 1\n")
	hash := ContentHash(content)
	require.NoError(t, s.UpsertBlob(tx, hash, content))
	// Second upsert of the same hash is a no-op, not an error.
	require.NoError(t, s.UpsertBlob(tx, hash, content))
	require.NoError(t, tx.Commit())

	got, err := s.BlobContent(hash)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = s.BlobContent("deadbeef")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHasBlobArtifacts_Gate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx := beginTx(t, s)

	ok, err := s.HasBlobArtifacts(tx, "b1")
	require.NoError(t, err)
	assert.False(t, ok)

	fileID, err := s.UpsertFile(tx, "a.py", "python")
	require.NoError(t, err)
	require.NoError(t, s.PutFileArtifacts(tx, "b1", fileID, Artifacts{
		Nodes: []Node{{NodeID: "b1:0-10", Kind: "module", Attrs: "{}"}},
	}))

	ok, err = s.HasBlobArtifacts(tx, "b1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequireRevision(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.LatestRevision()
	assert.True(t, errors.Is(err, ErrNoRevisions))

	tx := beginTx(t, s)
	require.NoError(t, s.BeginRevision(tx, "base", ""))
	require.NoError(t, s.BeginRevision(tx, "head", "base"))
	require.NoError(t, tx.Commit())

	rev, err := s.RequireRevision("")
	require.NoError(t, err)
	assert.Equal(t, "head", rev)

	rev, err = s.RequireRevision("base")
	require.NoError(t, err)
	assert.Equal(t, "base", rev)

	_, err = s.RequireRevision("nope")
	assert.True(t, errors.Is(err, ErrUnknownRevision))
}

// seedCallFixture writes two files into rev "r1": a.py declaring helper and
// b.py calling it, with the call still unresolved.
func seedCallFixture(t *testing.T, s *Store) (helperSym string) {
	t.Helper()
	tx := beginTx(t, s)
	require.NoError(t, s.BeginRevision(tx, "r1", ""))

	aID, err := s.UpsertFile(tx, "a.py", "python")
	require.NoError(t, err)
	bID, err := s.UpsertFile(tx, "b.py", "python")
	require.NoError(t, err)
	require.NoError(t, s.UpsertFileVersion(tx, "r1", aID, "blobA", 10, 0))
	require.NoError(t, s.UpsertFileVersion(tx, "r1", bID, "blobB", 10, 0))

	helperSym = "blobA:0-20"
	require.NoError(t, s.PutFileArtifacts(tx, "blobA", aID, Artifacts{
		Nodes:   []Node{{NodeID: "blobA:0-20", Lang: "python", Kind: "function_definition", Attrs: "{}"}},
		Symbols: []Symbol{{SymbolID: helperSym, Lang: "python", Name: "helper", Kind: "function", Attrs: "{}"}},
	}))
	require.NoError(t, s.PutFileArtifacts(tx, "blobB", bID, Artifacts{
		Nodes: []Node{{NodeID: "blobB:5-15", Lang: "python", Kind: "call", Attrs: "{}"}},
		Calls: []Call{{SrcNode: "blobB:5-15", DstName: "helper", Attrs: "{}"},
			{SrcNode: "blobB:5-15", DstName: "unknown_fn", Attrs: "{}"}},
	}))
	require.NoError(t, s.ResolveCalls(tx, ""))
	require.NoError(t, tx.Commit())
	return helperSym
}

func TestResolveCalls_Convergence(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	helperSym := seedCallFixture(t, s)

	rows, err := s.CallsByBlob("blobB")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, c := range rows {
		switch c.DstName {
		case "helper":
			assert.True(t, c.Resolved)
			require.NotNil(t, c.DstSymbol)
			assert.Equal(t, helperSym, *c.DstSymbol)
		case "unknown_fn":
			assert.False(t, c.Resolved)
			assert.Nil(t, c.DstSymbol)
		}
	}
}

func TestResolveCalls_RebuildsDerivedEdges(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	helperSym := seedCallFixture(t, s)

	edges, err := s.Neighbors("blobB:5-15", DirOut, []string{"CALL", "CFG_IP_CALL"}, 0)
	require.NoError(t, err)

	var call, ipCall, unresolved bool
	for _, e := range edges {
		switch {
		case e.Kind == "CALL" && e.Dst == helperSym:
			call = true
		case e.Kind == "CFG_IP_CALL" && e.Dst == helperSym:
			ipCall = true
		case e.Kind == "CALL" && e.Dst == "unknown_fn":
			unresolved = true
			assert.Contains(t, e.Attrs, "unresolved")
		}
	}
	assert.True(t, call)
	assert.True(t, ipCall)
	assert.True(t, unresolved)

	ret, err := s.Neighbors(helperSym, DirOut, []string{"CFG_IP_RET"}, 0)
	require.NoError(t, err)
	require.Len(t, ret, 1)
	assert.Equal(t, "blobB:5-15", ret[0].Dst)

	// Running resolution again must not duplicate derived edges.
	tx := beginTx(t, s)
	require.NoError(t, s.ResolveCalls(tx, ""))
	require.NoError(t, tx.Commit())
	again, err := s.Neighbors("blobB:5-15", DirOut, []string{"CALL", "CFG_IP_CALL"}, 0)
	require.NoError(t, err)
	assert.Len(t, again, len(edges))
}

func TestResolveCalls_FirstSymbolIDWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx := beginTx(t, s)
	require.NoError(t, s.BeginRevision(tx, "r1", ""))

	fID, err := s.UpsertFile(tx, "dup.py", "python")
	require.NoError(t, err)
	require.NoError(t, s.UpsertFileVersion(tx, "r1", fID, "blobD", 1, 0))
	require.NoError(t, s.PutFileArtifacts(tx, "blobD", fID, Artifacts{
		Nodes: []Node{{NodeID: "blobD:0-1", Kind: "call", Attrs: "{}"}},
		Symbols: []Symbol{
			{SymbolID: "blobD:50-60", Lang: "python", Name: "dup", Kind: "function", Attrs: "{}"},
			{SymbolID: "blobD:10-20", Lang: "python", Name: "dup", Kind: "function", Attrs: "{}"},
		},
		Calls: []Call{{SrcNode: "blobD:0-1", DstName: "dup", Attrs: "{}"}},
	}))
	require.NoError(t, s.ResolveCalls(tx, ""))
	require.NoError(t, tx.Commit())

	rows, err := s.CallsByBlob("blobD")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].DstSymbol)
	assert.Equal(t, "blobD:10-20", *rows[0].DstSymbol)
}

func TestNeighbors_DirectionAndKinds(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx := beginTx(t, s)
	require.NoError(t, s.BeginRevision(tx, "r1", ""))
	fID, err := s.UpsertFile(tx, "n.py", "python")
	require.NoError(t, err)
	require.NoError(t, s.PutFileArtifacts(tx, "blobN", fID, Artifacts{
		Edges: []Edge{
			{Src: "n1", Dst: "n2", Kind: "DDG", Attrs: "{}"},
			{Src: "n1", Dst: "n3", Kind: "AST", Attrs: "{}"},
			{Src: "n4", Dst: "n1", Kind: "DDG", Attrs: "{}"},
		},
	}))
	require.NoError(t, tx.Commit())

	out, err := s.Neighbors("n1", DirOut, []string{"DDG"}, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "n2", out[0].Dst)

	in, err := s.Neighbors("n1", DirIn, nil, 0)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "n4", in[0].Src)

	limited, err := s.Neighbors("n1", DirOut, nil, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCallSitesByNames(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedCallFixture(t, s)

	sites, err := s.CallSitesByNames("r1", []string{"helper"}, "python")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "blobB:5-15", sites[0].SrcNode)
	assert.Equal(t, "b.py", sites[0].Path)

	none, err := s.CallSitesByNames("r1", []string{"helper"}, "go")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSymbolsByName_RevScoped(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedCallFixture(t, s)

	hits, err := s.SymbolsByName("r1", "helper", "", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.py", hits[0].Path)

	// A revision that does not include blobA sees no symbol.
	tx := beginTx(t, s)
	require.NoError(t, s.BeginRevision(tx, "r2", "r1"))
	require.NoError(t, tx.Commit())
	hits, err = s.SymbolsByName("r2", "helper", "", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	like, err := s.SymbolsLike("r1", "help%", "python", 0)
	require.NoError(t, err)
	assert.Len(t, like, 1)
}

func TestSearchCode_FTSAndFallback(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx := beginTx(t, s)
	require.NoError(t, s.BeginRevision(tx, "r1", ""))
	fID, err := s.UpsertFile(tx, "greeting.py", "python")
	require.NoError(t, err)
	require.NoError(t, s.UpsertFileVersion(tx, "r1", fID, "blobG", 1, 0))
	require.NoError(t, s.PutFileArtifacts(tx, "blobG", fID, Artifacts{
		Path: "greeting.py", Lang: "python",
		Content: []byte("def salute():\n    return 'hello world'\n"),
		Nodes:   []Node{{NodeID: "blobG:0-1", Kind: "module", Attrs: "{}"}},
	}))
	require.NoError(t, tx.Commit())

	if s.FTSEnabled() {
		hits, err := s.SearchCode("salute", "", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "greeting.py", hits[0].Path)
		assert.Contains(t, hits[0].Snippet, "salute")
	}

	// Path fallback works regardless of FTS availability.
	s.fts = false
	hits, err := s.SearchCode("greeting", "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "greeting.py", hits[0].Path)
	assert.Empty(t, hits[0].Snippet)
}

func TestStats(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedCallFixture(t, s)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Files)
	assert.Equal(t, int64(2), st.FileVersions)
	assert.Equal(t, int64(2), st.Nodes)
	assert.Equal(t, int64(1), st.Symbols)
	assert.Equal(t, int64(2), st.Calls)
}

func TestNodeLocations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tx := beginTx(t, s)
	require.NoError(t, s.BeginRevision(tx, "r1", ""))
	fID, err := s.UpsertFile(tx, "loc.py", "python")
	require.NoError(t, err)
	require.NoError(t, s.PutFileArtifacts(tx, "blobL", fID, Artifacts{
		Nodes: []Node{{NodeID: "blobL:0-9", Kind: "module", StartLine: 1, StartCol: 1, EndLine: 2, EndCol: 5, Attrs: "{}"}},
	}))
	require.NoError(t, tx.Commit())

	locs, err := s.NodeLocations([]string{"blobL:0-9", "missing"})
	require.NoError(t, err)
	require.Contains(t, locs, "blobL:0-9")
	assert.Equal(t, Location{FilePath: "loc.py", StartLine: 1, StartCol: 1, EndLine: 2, EndCol: 5}, locs["blobL:0-9"])
	assert.NotContains(t, locs, "missing")
}

func TestLock_Reentrant(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Lock())
	require.NoError(t, s.Lock())
	s.Unlock()
}

func TestRepoFingerprint_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := RepoFingerprint(map[string]string{"a.py": "h1", "b.py": "h2"})
	b := RepoFingerprint(map[string]string{"b.py": "h2", "a.py": "h1"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, RepoFingerprint(map[string]string{"a.py": "h1"}))
}
