package resolve

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/cpg"
	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/store"
)

// seedRepo indexes the given files into a fresh store at revision "head" and
// returns a resolver over it.
func seedRepo(t *testing.T, files map[string]string) *Resolver {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "resolve.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })

	parsers := lang.NewParserFactory()
	builder := cpg.NewBuilder(nil)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.BeginRevision(tx, "head", ""))

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		content := []byte(files[p])
		l, known := lang.ForFile(p)
		langName := ""
		if known {
			langName = string(l)
		}
		blobHash := store.ContentHash(content)
		fileID, err := s.UpsertFile(tx, p, langName)
		require.NoError(t, err)
		require.NoError(t, s.UpsertFileVersion(tx, "head", fileID, blobHash, int64(len(content)), 0))
		require.NoError(t, s.UpsertBlob(tx, blobHash, content))
		if !known {
			continue
		}
		tree, err := parsers.Parse(ctx, l, content)
		require.NoError(t, err)
		g := builder.Build([]cpg.ParsedFile{{Path: p, Lang: l, BlobHash: blobHash, Source: content, Tree: tree}}, false)
		arts := store.Artifacts{Path: p, Lang: langName, Content: content}
		for _, sym := range g.Symbols {
			arts.Symbols = append(arts.Symbols, store.Symbol{
				SymbolID: sym.ID, BlobHash: blobHash, FileID: fileID,
				Lang: string(sym.Lang), Name: sym.Name, Kind: sym.Kind,
				StartLine: sym.Span.StartLine, StartCol: sym.Span.StartCol,
				EndLine: sym.Span.EndLine, EndCol: sym.Span.EndCol,
				Attrs: "{}",
			})
		}
		require.NoError(t, s.PutFileArtifacts(tx, blobHash, fileID, arts))
		tree.Close()
	}
	require.NoError(t, tx.Commit())

	return New(s, parsers)
}

func resolveOne(t *testing.T, r *Resolver, req Request) (*Proof, error) {
	t.Helper()
	req.Rev = "head"
	return r.Resolve(context.Background(), req)
}

func TestResolve_RequiredFields(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{})

	_, err := resolveOne(t, r, Request{Lang: lang.Python, FromModule: "mod"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")

	_, err = resolveOne(t, r, Request{Lang: lang.Python, Name: "f"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from_module is required")
}

func TestResolvePython_ModuleScopeDef(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"pkg/util.py": "def helper(x):\n    return x\n\nVALUE = 3\n",
	})

	proof, err := resolveOne(t, r, Request{Lang: lang.Python, FromModule: "pkg.util", Name: "helper"})
	require.NoError(t, err)
	assert.Equal(t, "pkg/util.py", proof.Path)
	assert.Equal(t, "module-scope binding", proof.Evidence)
	require.Len(t, proof.Matches, 1)
	assert.Equal(t, 1, proof.Matches[0].Location.StartLine)

	proof, err = resolveOne(t, r, Request{Lang: lang.Python, FromModule: "pkg.util", Name: "VALUE"})
	require.NoError(t, err)
	assert.Equal(t, "module-scope binding", proof.Evidence)
}

func TestResolvePython_EmptyAllDoesNotHideBindings(t *testing.T) {
	t.Parallel()
	// __all__ narrows `from m import *`, not explicit imports: a
	// module-scope def resolves no matter what __all__ says.
	r := seedRepo(t, map[string]string{
		"m.py": "__all__ = []\n\ndef visible():\n    pass\n",
	})

	proof, err := resolveOne(t, r, Request{Lang: lang.Python, FromModule: "m", Name: "visible"})
	require.NoError(t, err)
	assert.Equal(t, "module-scope binding", proof.Evidence)
}

func TestResolvePython_AllWithGetattr(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"lazy.py": "__all__ = [\"loads\", \"dumps\"]\n\ndef __getattr__(name):\n    return _load(name)\n",
	})

	proof, err := resolveOne(t, r, Request{Lang: lang.Python, FromModule: "lazy", Name: "loads"})
	require.NoError(t, err)
	assert.Equal(t, "__all__ entry with module __getattr__", proof.Evidence)

	// listed in no binding and absent from __all__: unprovable
	_, err = resolveOne(t, r, Request{Lang: lang.Python, FromModule: "lazy", Name: "other"})
	require.ErrorIs(t, err, ErrNameNotExported)
}

func TestResolvePython_AllWithoutGetattrProvesNothingExtra(t *testing.T) {
	t.Parallel()
	// An __all__ entry with no binding and no __getattr__ would raise
	// ImportError at runtime, so it must not count as proof.
	r := seedRepo(t, map[string]string{
		"m.py": "__all__ = [\"ghost\"]\n\ndef real():\n    pass\n",
	})

	_, err := resolveOne(t, r, Request{Lang: lang.Python, FromModule: "m", Name: "ghost"})
	require.ErrorIs(t, err, ErrNameNotExported)
}

func TestResolvePython_PackageSubmodule(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/child.py":    "def f():\n    pass\n",
	})

	proof, err := resolveOne(t, r, Request{Lang: lang.Python, FromModule: "pkg", Name: "child"})
	require.NoError(t, err)
	assert.Equal(t, "package submodule", proof.Evidence)
	assert.Equal(t, "pkg/__init__.py", proof.Path)
}

func TestResolvePython_RelativeImport(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"pkg/a.py": "from .b import thing\n",
		"pkg/b.py": "thing = 1\n",
	})

	proof, err := resolveOne(t, r, Request{
		Lang: lang.Python, FromModule: ".b", Name: "thing", ImporterPath: "pkg/a.py",
	})
	require.NoError(t, err)
	assert.Equal(t, "pkg/b.py", proof.Path)
}

func TestResolvePython_ModuleNotFound(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{"m.py": "x = 1\n"})

	_, err := resolveOne(t, r, Request{Lang: lang.Python, FromModule: "nope", Name: "x"})
	require.ErrorIs(t, err, ErrModuleNotFound)
}

func TestResolveTypeScript_DirectExport(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"src/app.ts": "import { loadConfig } from \"./config\";\n",
		"src/config.ts": "export function loadConfig(path: string) {\n  return path;\n}\n" +
			"export const defaults = {};\n",
	})

	proof, err := resolveOne(t, r, Request{
		Lang: lang.TypeScript, FromModule: "./config", Name: "loadConfig", ImporterPath: "src/app.ts",
	})
	require.NoError(t, err)
	assert.Equal(t, "src/config.ts", proof.Path)
	assert.Equal(t, "export declaration", proof.Evidence)

	proof, err = resolveOne(t, r, Request{
		Lang: lang.TypeScript, FromModule: "./config", Name: "defaults", ImporterPath: "src/app.ts",
	})
	require.NoError(t, err)
	assert.Equal(t, "export declaration", proof.Evidence)
}

func TestResolveTypeScript_NamedReexportChain(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"src/index.ts": "export { parse as parseDoc } from \"./parser\";\n",
		"src/parser.ts": "export function parse(s: string) {\n  return s;\n}\n",
	})

	proof, err := resolveOne(t, r, Request{
		Lang: lang.TypeScript, FromModule: "./index", Name: "parseDoc", ImporterPath: "src/main.ts",
	})
	require.NoError(t, err)
	assert.Equal(t, "named re-export chain", proof.Evidence)
}

func TestResolveTypeScript_StarReexport(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"src/index.ts": "export * from \"./inner\";\n",
		"src/inner.ts": "export class Widget {}\n",
	})

	proof, err := resolveOne(t, r, Request{
		Lang: lang.TypeScript, FromModule: "./index", Name: "Widget", ImporterPath: "src/main.ts",
	})
	require.NoError(t, err)
	assert.Equal(t, "star re-export chain", proof.Evidence)
}

func TestResolveTypeScript_StarDepthBound(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"a.ts": "export * from \"./b\";\n",
		"b.ts": "export * from \"./a\";\n",
	})

	_, err := resolveOne(t, r, Request{
		Lang: lang.TypeScript, FromModule: "./a", Name: "missing", ImporterPath: "main.ts", MaxDepth: 3,
	})
	require.ErrorIs(t, err, ErrNameNotExported)
}

func TestResolveTypeScript_BareSpecifierRejected(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{"src/app.ts": "import fs from \"fs\";\n"})

	_, err := resolveOne(t, r, Request{
		Lang: lang.TypeScript, FromModule: "react", Name: "useState", ImporterPath: "src/app.ts",
	})
	require.ErrorIs(t, err, ErrUnsupportedSpecifier)
}

func TestResolveTypeScript_MissingImporterPath(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{})

	_, err := resolveOne(t, r, Request{Lang: lang.TypeScript, FromModule: "./x", Name: "y"})
	require.ErrorIs(t, err, ErrMissingHint)
}

func TestResolveGo_PackageSymbol(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"myrepo/internal/util/strings.go": "package util\n\nfunc Reverse(s string) string {\n\treturn s\n}\n",
	})

	proof, err := resolveOne(t, r, Request{
		Lang: lang.Go, FromModule: "example.com/myrepo/internal/util", Name: "Reverse",
		RepoRootHint: "/work/myrepo",
	})
	require.NoError(t, err)
	assert.Equal(t, "myrepo/internal/util/strings.go", proof.Path)
	assert.Equal(t, "package declaration", proof.Evidence)
}

func TestResolveGo_NameNotExported(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"util/strings.go": "package util\n\nfunc Reverse(s string) string {\n\treturn s\n}\n",
	})

	_, err := resolveOne(t, r, Request{
		Lang: lang.Go, FromModule: "util", Name: "Missing", RepoRootHint: "/work/repo",
	})
	require.ErrorIs(t, err, ErrNameNotExported)
}

func TestResolveGo_MissingHint(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{})

	_, err := resolveOne(t, r, Request{Lang: lang.Go, FromModule: "util", Name: "Reverse"})
	require.ErrorIs(t, err, ErrMissingHint)
}

func TestResolveJava_TypeInPackageDirectory(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"src/main/java/com/acme/api/Client.java": "package com.acme.api;\n\npublic class Client {\n}\n",
	})

	proof, err := resolveOne(t, r, Request{
		Lang: lang.Java, FromModule: "com.acme.api", Name: "Client", RepoRootHint: "/work/acme",
	})
	require.NoError(t, err)
	assert.Equal(t, "src/main/java/com/acme/api/Client.java", proof.Path)
	assert.Equal(t, "type declaration in package directory", proof.Evidence)
}

func TestResolveJava_ModuleNotFound(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{})

	_, err := resolveOne(t, r, Request{
		Lang: lang.Java, FromModule: "com.acme.api", Name: "Client", RepoRootHint: "/work/acme",
	})
	require.ErrorIs(t, err, ErrModuleNotFound)
}

func TestResolveRuby_RequireLibLayout(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"lib/widget.rb": "class Widget\n  def run\n  end\nend\n",
	})

	proof, err := resolveOne(t, r, Request{Lang: lang.Ruby, FromModule: "widget", Name: "Widget"})
	require.NoError(t, err)
	assert.Equal(t, "lib/widget.rb", proof.Path)
	assert.Equal(t, "definition in required file", proof.Evidence)
}

func TestResolveRuby_RequireRelative(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"app/main.rb":   "require_relative \"./helpers\"\n",
		"app/helpers.rb": "MAX_RETRIES = 5\n",
	})

	proof, err := resolveOne(t, r, Request{
		Lang: lang.Ruby, FromModule: "./helpers", Name: "MAX_RETRIES", ImporterPath: "app/main.rb",
	})
	require.NoError(t, err)
	assert.Equal(t, "app/helpers.rb", proof.Path)
	assert.Equal(t, "constant assignment in required file", proof.Evidence)
}

func TestResolveRuby_RelativeNeedsImporter(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{})

	_, err := resolveOne(t, r, Request{Lang: lang.Ruby, FromModule: "./helpers", Name: "X"})
	require.ErrorIs(t, err, ErrMissingHint)
}

func TestResolveRuby_NameNotDefined(t *testing.T) {
	t.Parallel()
	r := seedRepo(t, map[string]string{
		"lib/widget.rb": "class Widget\nend\n",
	})

	_, err := resolveOne(t, r, Request{Lang: lang.Ruby, FromModule: "widget", Name: "Gadget"})
	require.ErrorIs(t, err, ErrNameNotExported)
}
