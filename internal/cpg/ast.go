package cpg

import (
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"
)

// spanFor converts tree-sitter's 0-indexed points to a 1-indexed Span.
func spanFor(path string, n *sitter.Node) Span {
	sp, ep := n.StartPoint(), n.EndPoint()
	return Span{
		File:      path,
		StartLine: int(sp.Row) + 1,
		StartCol:  int(sp.Column) + 1,
		EndLine:   int(ep.Row) + 1,
		EndCol:    int(ep.Column) + 1,
	}
}

// nodeText returns the verbatim source slice for n.
func nodeText(n *sitter.Node, src []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if int(end) > len(src) || start > end {
		return ""
	}
	return string(src[start:end])
}

// nodeID builds the deterministic id for a syntax node within f's blob.
func nodeID(blobHash string, n *sitter.Node) string {
	return NodeID(blobHash, n.StartByte(), n.EndByte())
}

// walk visits every named node of the tree in preorder using an explicit
// stack; recursion depth is not a function of tree depth.
func walk(root *sitter.Node, visit func(n *sitter.Node)) {
	if root == nil {
		return
	}
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(n)
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.NamedChild(i))
		}
	}
}

// flatten adds one graph node per named syntax node and an AST edge per
// parent/child pair, in preorder.
func flatten(g *Graph, f ParsedFile) {
	root := f.Tree.RootNode()
	type frame struct {
		node   *sitter.Node
		parent string
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := fr.node
		id := nodeID(f.BlobHash, n)
		g.AddNode(&Node{
			ID:   id,
			Kind: n.Type(),
			Span: spanFor(f.Path, n),
			Text: nodeText(n, f.Source),
			Lang: f.Lang,
			Attrs: map[string]string{
				"path":       f.Path,
				"start_byte": strconv.FormatUint(uint64(n.StartByte()), 10),
				"end_byte":   strconv.FormatUint(uint64(n.EndByte()), 10),
			},
		})
		if fr.parent != "" {
			g.AddEdge(Edge{Src: fr.parent, Dst: id, Kind: EdgeAST})
		}
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: n.NamedChild(i), parent: id})
		}
	}
}
