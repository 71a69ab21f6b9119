package cpg

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/arbor/internal/lang"
)

// functionInitKinds are the TypeScript initializer shapes that make a
// variable_declarator count as a function declaration (const f = () => ...).
var functionInitKinds = map[string]bool{
	"arrow_function":      true,
	"function":            true,
	"function_expression": true,
}

// declName picks the declared name of a declaration-shaped node: the "name"
// field when the grammar provides one, else the first identifier-like child.
func declName(l lang.Lang, n *sitter.Node, src []byte) string {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		return strings.TrimSpace(nodeText(nameNode, src))
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		ck := child.Type()
		if isIdent(l, ck) || identExtras[ck] {
			return strings.TrimSpace(nodeText(child, src))
		}
	}
	return ""
}

// collectSymbols walks f's tree and returns one Symbol per declaration-shaped
// node, in document order.
func collectSymbols(f ParsedFile) []*Symbol {
	var syms []*Symbol
	walk(f.Tree.RootNode(), func(n *sitter.Node) {
		kind := n.Type()
		if !isDecl(f.Lang, kind) {
			return
		}
		symKind := declKind(kind)
		if kind == "variable_declarator" {
			// Only the "const f = function/arrow" pattern declares a symbol;
			// plain declarators are data-flow defs, not declarations.
			if f.Lang != lang.TypeScript {
				return
			}
			value := n.ChildByFieldName("value")
			if value == nil || !functionInitKinds[value.Type()] {
				return
			}
			symKind = SymbolFunction
		}
		name := declName(f.Lang, n, f.Source)
		if name == "" {
			return
		}
		syms = append(syms, &Symbol{
			ID:   nodeID(f.BlobHash, n),
			Name: name,
			Kind: symKind,
			Span: spanFor(f.Path, n),
			Lang: f.Lang,
			File: f.Path,
		})
	})
	return syms
}
