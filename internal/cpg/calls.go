package cpg

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/lang"
)

// identExtras are identifier-flavored node types accepted when hunting for a
// callee name, beyond the language's declared identifier shapes.
var identExtras = map[string]bool{
	"property_identifier": true,
	"method_identifier":   true,
	"type_identifier":     true,
	"field_identifier":    true,
}

// calleeName extracts a best-effort callee name from a call-shaped node.
// Member-style callees (obj.method, pkg.Func) keep their full dotted text so
// source/sink tables can match qualified names; otherwise the first
// identifier-like child wins. Returns "" when no name is recoverable.
func calleeName(l lang.Lang, n *sitter.Node, src []byte) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if isMember(l, child.Type()) {
			return strings.TrimSpace(nodeText(child, src))
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		ck := child.Type()
		if isIdent(l, ck) || identExtras[ck] || strings.Contains(ck, "identifier") {
			return strings.TrimSpace(nodeText(child, src))
		}
	}
	return ""
}

// callSite is a call-shaped node paired with its extracted callee name.
type callSite struct {
	id   string
	name string
}

// collectCalls gathers every named call site in f, in document order.
func collectCalls(f ParsedFile) []callSite {
	var sites []callSite
	walk(f.Tree.RootNode(), func(n *sitter.Node) {
		if !isCall(f.Lang, n.Type()) {
			return
		}
		name := calleeName(f.Lang, n, f.Source)
		if name == "" {
			return
		}
		sites = append(sites, callSite{id: nodeID(f.BlobHash, n), name: name})
	})
	return sites
}
