package cpg

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/lang"
	"github.com/jward/arbor/internal/sourcesink"
)

// ParsedFile is one source file ready for graph construction.
type ParsedFile struct {
	Path     string
	Lang     lang.Lang
	BlobHash string
	Source   []byte
	Tree     *sitter.Tree
}

// Builder turns parsed files into a Graph. Zero value is usable; Taint
// defaults to the built-in source/sink tables.
type Builder struct {
	Taint *sourcesink.Tables
}

// NewBuilder returns a Builder using the given taint tables, or the built-in
// defaults when t is nil.
func NewBuilder(t *sourcesink.Tables) *Builder {
	if t == nil {
		t = sourcesink.Defaults()
	}
	return &Builder{Taint: t}
}

// Build runs the two-pass construction over files. Pass one collects every
// declaration into the symbol table so that pass two can resolve calls across
// files. With interprocedural set, resolved calls additionally materialize
// CFG_IP_CALL and CFG_IP_RET edges. On a callee-name collision the
// first-declared symbol wins; deterministic, but a heuristic.
func (b *Builder) Build(files []ParsedFile, interprocedural bool) *Graph {
	tables := b.Taint
	if tables == nil {
		tables = sourcesink.Defaults()
	}
	g := NewGraph()

	for _, f := range files {
		for _, s := range collectSymbols(f) {
			g.AddSymbol(s)
		}
	}

	for _, f := range files {
		flatten(g, f)
		buildCFG(g, f)

		// Late declarations: enrich the table with anything pass one missed
		// for this file before resolving its calls.
		for _, s := range collectSymbols(f) {
			g.AddSymbol(s)
		}

		for _, site := range collectCalls(f) {
			dst := g.ResolveName(site.name, f.Lang)
			if dst != "" {
				g.AddEdge(Edge{Src: site.id, Dst: dst, Kind: EdgeCall})
				g.Calls = append(g.Calls, Call{Src: site.id, DstName: site.name, DstSym: dst, Resolved: true})
				if interprocedural {
					g.AddEdge(Edge{Src: site.id, Dst: dst, Kind: EdgeIPCall})
					g.AddEdge(Edge{Src: dst, Dst: site.id, Kind: EdgeIPRet})
				}
				continue
			}
			g.AddEdge(Edge{Src: site.id, Dst: site.name, Kind: EdgeCall, Attrs: map[string]string{"unresolved": "true"}})
			g.Calls = append(g.Calls, Call{Src: site.id, DstName: site.name})
		}

		sources := tables.SourceSet(f.Lang)
		sinks := tables.SinkSet(f.Lang)
		for _, s := range g.Symbols {
			if s.File != f.Path {
				continue
			}
			if sources[s.Name] {
				s.Kind = SymbolSource
			} else if sinks[s.Name] {
				s.Kind = SymbolSink
			}
		}
	}
	return g
}
