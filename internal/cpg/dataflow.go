package cpg

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/lang"
)

// firstIdentIn returns the first identifier-shaped node in n's subtree.
func firstIdentIn(l lang.Lang, n *sitter.Node) *sitter.Node {
	var found *sitter.Node
	walk(n, func(c *sitter.Node) {
		if found == nil && isIdent(l, c.Type()) {
			found = c
		}
	})
	return found
}

// firstCallIn returns the first call-shaped node in n's subtree.
func firstCallIn(l lang.Lang, n *sitter.Node) *sitter.Node {
	var found *sitter.Node
	walk(n, func(c *sitter.Node) {
		if found == nil && isCall(l, c.Type()) {
			found = c
		}
	})
	return found
}

// assignParts splits an assignment-shaped node into its target and value
// sides, tolerating the field-name differences between grammars.
func assignParts(n *sitter.Node) (left, right *sitter.Node) {
	left = n.ChildByFieldName("left")
	if left == nil {
		left = n.ChildByFieldName("name")
	}
	right = n.ChildByFieldName("right")
	if right == nil {
		right = n.ChildByFieldName("value")
	}
	return left, right
}

// BuildDefUse runs the def-use pass over one file, appending DDG edges to g.
// It tracks a last-definition-per-variable-name map in document order:
// definition to use (attrs var), right-hand-side call to definition (attrs
// via=rhs_call), and live argument definition to call (attrs via=arg). Not
// SSA, not alias-aware; an approximation serving slicing and taint only.
func BuildDefUse(g *Graph, f ParsedFile) {
	lastDef := make(map[string]string)
	walk(f.Tree.RootNode(), func(n *sitter.Node) {
		kind := n.Type()
		switch {
		case isAssign(f.Lang, kind):
			left, right := assignParts(n)
			if left == nil {
				return
			}
			target := firstIdentIn(f.Lang, left)
			if target == nil {
				return
			}
			defID := nodeID(f.BlobHash, n)
			if right != nil {
				if call := firstCallIn(f.Lang, right); call != nil {
					g.AddEdge(Edge{Src: nodeID(f.BlobHash, call), Dst: defID, Kind: EdgeDDG, Attrs: map[string]string{"via": "rhs_call"}})
				}
			}
			lastDef[nodeText(target, f.Source)] = defID
		case isCall(f.Lang, kind):
			callID := nodeID(f.BlobHash, n)
			walk(n, func(c *sitter.Node) {
				if !isIdent(f.Lang, c.Type()) {
					return
				}
				name := nodeText(c, f.Source)
				if d, ok := lastDef[name]; ok {
					g.AddEdge(Edge{Src: d, Dst: callID, Kind: EdgeDDG, Attrs: map[string]string{"via": "arg", "var": name}})
				}
			})
		case isIdent(f.Lang, kind):
			name := nodeText(n, f.Source)
			if d, ok := lastDef[name]; ok {
				g.AddEdge(Edge{Src: d, Dst: nodeID(f.BlobHash, n), Kind: EdgeDDG, Attrs: map[string]string{"var": name}})
			}
		}
	})
}

// TaintOptions bounds the in-memory taint search.
type TaintOptions struct {
	MaxSteps int // maximum path length, default 64
	MaxPaths int // global cap on recorded paths, default 1000
}

func (o TaintOptions) withDefaults() TaintOptions {
	if o.MaxSteps <= 0 {
		o.MaxSteps = 64
	}
	if o.MaxPaths <= 0 {
		o.MaxPaths = 1000
	}
	return o
}

// PropagateTaint explores g depth-first from each source node over DDG and
// resolved call edges, recording every path that reaches a sink. Paths stop
// at a sink (recorded) or a sanitizer (pruned).
func PropagateTaint(g *Graph, sources, sinks, sanitizers map[string]bool, opt TaintOptions) [][]string {
	opt = opt.withDefaults()
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		switch e.Kind {
		case EdgeDDG, EdgeIPCall:
		case EdgeCall:
			if e.Attrs["unresolved"] == "true" {
				continue
			}
		default:
			continue
		}
		adj[e.Src] = append(adj[e.Src], e.Dst)
	}

	var paths [][]string
	type frame struct {
		node string
		path []string
	}
	for src := range sources {
		stack := []frame{{node: src, path: []string{src}}}
		for len(stack) > 0 && len(paths) < opt.MaxPaths {
			fr := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if sinks[fr.node] && len(fr.path) > 1 {
				paths = append(paths, fr.path)
				continue
			}
			if sanitizers[fr.node] && len(fr.path) > 1 {
				continue
			}
			if len(fr.path) >= opt.MaxSteps {
				continue
			}
			for _, next := range adj[fr.node] {
				if containsID(fr.path, next) {
					continue
				}
				path := make([]string, len(fr.path), len(fr.path)+1)
				copy(path, fr.path)
				stack = append(stack, frame{node: next, path: append(path, next)})
			}
		}
	}
	return paths
}

func containsID(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
