// Package cpg defines the lite code property graph: flattened syntax nodes,
// typed edges (AST, control flow, calls, data dependencies), a symbol table,
// and the two-pass builder that produces them from parsed source files.
package cpg

import (
	"fmt"

	"github.com/jward/arbor/internal/lang"
)

// Edge kinds. CFG_IP_CALL and CFG_IP_RET cross function boundaries and are
// materialized only after call-name resolution.
const (
	EdgeAST       = "AST"
	EdgeCFG       = "CFG"
	EdgeCFGBranch = "CFG_BRANCH"
	EdgeCall      = "CALL"
	EdgeIPCall    = "CFG_IP_CALL"
	EdgeIPRet     = "CFG_IP_RET"
	EdgeDDG       = "DDG"
)

// Symbol kinds. "source" and "sink" overwrite the declared kind when the
// taint configuration matches a symbol's name.
const (
	SymbolFunction = "function"
	SymbolType     = "type"
	SymbolSource   = "source"
	SymbolSink     = "sink"
)

// Span locates a graph element in a file. Lines and columns are 1-indexed.
type Span struct {
	File      string `json:"file_path"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// Node is one syntax-tree node flattened into the graph. IDs follow the
// "<blob_sha256>:<start_byte>-<end_byte>" scheme: unique within one blob,
// deliberately shared across revisions whose file content is byte-identical.
type Node struct {
	ID    string
	Kind  string
	Span  Span
	Text  string
	Lang  lang.Lang
	Attrs map[string]string
}

// Edge is a directed labeled relation between two node (or symbol) ids.
// Multiple edges between the same pair with different kinds are distinct.
type Edge struct {
	Src   string
	Dst   string
	Kind  string
	Attrs map[string]string
}

// Symbol is a named declaration. Identity is the id; name collisions across
// files are expected and resolved contextually at query time.
type Symbol struct {
	ID   string
	Name string
	Kind string
	Span Span
	Lang lang.Lang
	File string
}

// Call is one call site and its (possibly unresolved) target.
type Call struct {
	Src      string
	DstName  string
	DstSym   string
	Resolved bool
	Attrs    map[string]string
}

// NodeID builds the deterministic id for a byte range within a blob.
func NodeID(blobHash string, startByte, endByte uint32) string {
	return fmt.Sprintf("%s:%d-%d", blobHash, startByte, endByte)
}

// Graph is the in-memory aggregate produced by one Build call. It is owned
// exclusively by that call and never mutated concurrently.
type Graph struct {
	Nodes   map[string]*Node
	Edges   []Edge
	Symbols map[string]*Symbol

	// nameIndex maps symbol name to symbol ids in insertion order. Call
	// resolution takes the first matching entry; a deterministic heuristic,
	// not a scoping guarantee.
	nameIndex map[string][]string
	nameOrder []string

	Calls []Call
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:     make(map[string]*Node),
		Symbols:   make(map[string]*Symbol),
		nameIndex: make(map[string][]string),
	}
}

// AddNode inserts n, keeping the first node seen for an id.
func (g *Graph) AddNode(n *Node) {
	if _, ok := g.Nodes[n.ID]; !ok {
		g.Nodes[n.ID] = n
	}
}

// AddEdge appends e.
func (g *Graph) AddEdge(e Edge) {
	g.Edges = append(g.Edges, e)
}

// AddSymbol inserts s and indexes it by name. Re-adding an existing id
// refreshes the stored symbol without duplicating the name index entry.
func (g *Graph) AddSymbol(s *Symbol) {
	if _, ok := g.Symbols[s.ID]; !ok {
		g.nameIndex[s.Name] = append(g.nameIndex[s.Name], s.ID)
	}
	g.Symbols[s.ID] = s
}

// ResolveName returns the first-declared symbol id with the given name and
// language, or "" when none matches.
func (g *Graph) ResolveName(name string, l lang.Lang) string {
	for _, id := range g.nameIndex[name] {
		if s := g.Symbols[id]; s != nil && s.Lang == l {
			return id
		}
	}
	return ""
}

// SymbolsByName returns all symbol ids indexed under name, in declaration
// order.
func (g *Graph) SymbolsByName(name string) []string {
	return g.nameIndex[name]
}
