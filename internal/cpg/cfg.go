package cpg

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// branch target body wrappers per grammar: the node holding a control
// construct's statements when it is neither a statement nor a clause.
var bodyKinds = map[string]bool{
	"block":           true,
	"statement_block": true,
	"body_statement":  true,
	"then":            true,
	"do":              true,
}

// buildCFG wires statement-shaped nodes in document order with CFG edges and
// adds a CFG_BRANCH edge from each control construct to every branch-target
// child.
func buildCFG(g *Graph, f ParsedFile) {
	var blocks []string
	walk(f.Tree.RootNode(), func(n *sitter.Node) {
		kind := n.Type()
		if isStatement(kind) {
			blocks = append(blocks, nodeID(f.BlobHash, n))
		}
		if isControl(f.Lang, kind) {
			src := nodeID(f.BlobHash, n)
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				ck := child.Type()
				if isStatement(ck) || isControl(f.Lang, ck) || bodyKinds[ck] || strings.HasSuffix(ck, "_clause") {
					g.AddEdge(Edge{Src: src, Dst: nodeID(f.BlobHash, child), Kind: EdgeCFGBranch})
				}
			}
		}
	})
	for i := 1; i < len(blocks); i++ {
		g.AddEdge(Edge{Src: blocks[i-1], Dst: blocks[i], Kind: EdgeCFG})
	}
}
